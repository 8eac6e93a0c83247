// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateEBirdSettings,
		validateVisionSettings,
		validateImagingSettings,
		validateIdentificationSettings,
		validateStorageSettings,
		validateCollectionSettings,
		validateWebServerSettings,
		validateMQTTSettings,
		validateNotificationSettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateEBirdSettings(s *Settings) []string {
	var errs []string
	if _, err := url.ParseRequestURI(s.EBird.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("ebird.baseurl is not a valid URL: %q", s.EBird.BaseURL))
	}
	if s.EBird.MaxRetries < 1 {
		errs = append(errs, "ebird.maxretries must be at least 1")
	}
	if s.EBird.RateLimitMS < 0 {
		errs = append(errs, "ebird.ratelimitms must not be negative")
	}
	return errs
}

func validateVisionSettings(s *Settings) []string {
	var errs []string
	if _, err := url.ParseRequestURI(s.Vision.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("vision.baseurl is not a valid URL: %q", s.Vision.BaseURL))
	}
	if s.Vision.Model == "" {
		errs = append(errs, "vision.model must be set")
	}
	if s.Vision.MaxTokens <= 0 {
		errs = append(errs, "vision.maxtokens must be positive")
	}
	return errs
}

func validateImagingSettings(s *Settings) []string {
	var errs []string
	if s.Imaging.MaxDimension <= 0 {
		errs = append(errs, "imaging.maxdimension must be positive")
	}
	if s.Imaging.Quality < 1 || s.Imaging.Quality > 100 {
		errs = append(errs, "imaging.quality must be between 1 and 100")
	}
	if s.Imaging.MaxPixels <= 0 {
		errs = append(errs, "imaging.maxpixels must be positive")
	}
	return errs
}

func validateIdentificationSettings(s *Settings) []string {
	if s.Identification.DefaultRegion != "" && !IsValidRegionCode(s.Identification.DefaultRegion) {
		return []string{fmt.Sprintf("identification.defaultregion %q is not an eBird region code", s.Identification.DefaultRegion)}
	}
	return nil
}

func validateStorageSettings(s *Settings) []string {
	var errs []string
	switch strings.ToLower(s.Storage.Type) {
	case "local":
		if s.Storage.Local.Path == "" {
			errs = append(errs, "storage.local.path must be set")
		}
	case "s3":
		if s.Storage.S3.Bucket == "" {
			errs = append(errs, "storage.s3.bucket must be set")
		}
	case "sftp":
		if s.Storage.SFTP.Host == "" {
			errs = append(errs, "storage.sftp.host must be set")
		}
		if s.Storage.SFTP.Password == "" && s.Storage.SFTP.PrivateKeyPath == "" {
			errs = append(errs, "storage.sftp requires a password or privatekeypath")
		}
	case "ftp":
		if s.Storage.FTP.Host == "" {
			errs = append(errs, "storage.ftp.host must be set")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.type %q is not supported", s.Storage.Type))
	}
	return errs
}

func validateCollectionSettings(s *Settings) []string {
	var errs []string
	switch strings.ToLower(s.Collection.Type) {
	case "sqlite":
		if s.Collection.SQLite.Path == "" {
			errs = append(errs, "collection.sqlite.path must be set")
		}
	case "mysql":
		if s.Collection.MySQL.Host == "" || s.Collection.MySQL.Database == "" {
			errs = append(errs, "collection.mysql requires host and database")
		}
	case "mongodb":
		if s.Collection.MongoDB.URI == "" || s.Collection.MongoDB.Database == "" {
			errs = append(errs, "collection.mongodb requires uri and database")
		}
	default:
		errs = append(errs, fmt.Sprintf("collection.type %q is not supported", s.Collection.Type))
	}
	return errs
}

func validateWebServerSettings(s *Settings) []string {
	if !s.WebServer.Enabled {
		return nil
	}
	var errs []string
	if s.WebServer.Port == "" {
		errs = append(errs, "webserver.port must be set")
	}
	if s.WebServer.OwnerHeader == "" {
		errs = append(errs, "webserver.ownerheader must be set")
	}
	return errs
}

func validateMQTTSettings(s *Settings) []string {
	if s.MQTT.Enabled && (s.MQTT.Broker == "" || s.MQTT.Topic == "") {
		return []string{"mqtt requires broker and topic when enabled"}
	}
	return nil
}

func validateNotificationSettings(s *Settings) []string {
	if s.Notification.Enabled && len(s.Notification.URLs) == 0 {
		return []string{"notification requires at least one URL when enabled"}
	}
	return nil
}
