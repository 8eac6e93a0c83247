// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIRDLENS_DEBUG", validateEnvBool},

		{"ebird.apikey", "BIRDLENS_EBIRD_APIKEY", nil},
		{"ebird.baseurl", "BIRDLENS_EBIRD_BASEURL", validateEnvURL},

		{"vision.apikey", "BIRDLENS_VISION_APIKEY", nil},
		{"vision.baseurl", "BIRDLENS_VISION_BASEURL", validateEnvURL},
		{"vision.model", "BIRDLENS_VISION_MODEL", nil},
		{"vision.maxtokens", "BIRDLENS_VISION_MAXTOKENS", validateEnvPositiveInt},

		{"identification.defaultregion", "BIRDLENS_REGION", validateEnvRegion},

		{"storage.type", "BIRDLENS_STORAGE_TYPE", validateEnvStorageType},
		{"storage.s3.accesskeyid", "BIRDLENS_S3_ACCESSKEYID", nil},
		{"storage.s3.secretaccesskey", "BIRDLENS_S3_SECRETACCESSKEY", nil},

		{"collection.type", "BIRDLENS_COLLECTION_TYPE", validateEnvCollectionType},
		{"collection.mysql.password", "BIRDLENS_MYSQL_PASSWORD", nil},
		{"collection.mongodb.uri", "BIRDLENS_MONGODB_URI", nil},

		{"webserver.port", "BIRDLENS_PORT", validateEnvPositiveInt},
		{"sentry.dsn", "BIRDLENS_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and collects validation warnings
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

// regionPattern accepts eBird region codes: country, subnational1 and subnational2 (US, US-NY, US-NY-109)
var regionPattern = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3}(-[A-Z0-9]{1,3})?)?$`)

func validateEnvRegion(value string) error {
	if !regionPattern.MatchString(value) {
		return fmt.Errorf("must be an eBird region code such as US or US-NY")
	}
	return nil
}

func validateEnvStorageType(value string) error {
	switch strings.ToLower(value) {
	case "local", "s3", "sftp", "ftp":
		return nil
	}
	return fmt.Errorf("must be one of local, s3, sftp, ftp")
}

func validateEnvCollectionType(value string) error {
	switch strings.ToLower(value) {
	case "sqlite", "mysql", "mongodb":
		return nil
	}
	return fmt.Errorf("must be one of sqlite, mysql, mongodb")
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix("BIRDLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}

// IsValidRegionCode reports whether code looks like an eBird region code.
func IsValidRegionCode(code string) bool {
	return regionPattern.MatchString(code)
}
