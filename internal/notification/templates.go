package notification

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/birdlens/birdlens/internal/collection"
)

// Default templates for collection notifications.
const (
	DefaultTitleTemplate   = `New bird: {{.CommonName}}`
	DefaultMessageTemplate = `{{.CommonName}} ({{.ScientificName}}) was added to the collection of {{.OwnerID}}.{{if .ImageURL}} Photo: {{.ImageURL}}{{end}}`
)

// TemplateData is the data available to notification templates.
type TemplateData struct {
	OwnerID        string
	CommonName     string
	ScientificName string
	Family         string
	SpeciesCode    string
	ImageURL       string
	SavedAt        string
}

// NewTemplateData builds template data from a saved entry.
func NewTemplateData(entry *collection.Entry) TemplateData {
	return TemplateData{
		OwnerID:        entry.OwnerID,
		CommonName:     entry.CommonName,
		ScientificName: entry.ScientificName,
		Family:         entry.Family,
		SpeciesCode:    entry.SpeciesCode,
		ImageURL:       entry.ImageURL,
		SavedAt:        entry.CreatedAt.Format(time.RFC3339),
	}
}

// RenderTemplate renders a Go template string with the provided data.
func RenderTemplate(name, tmplStr string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
