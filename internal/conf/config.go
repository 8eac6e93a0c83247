// Package conf loads birdlens settings from the embedded defaults, config.yaml and the environment.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// EBirdSettings configures the regional species registry client
type EBirdSettings struct {
	APIKey      string        `yaml:"apikey"`      // eBird API token
	BaseURL     string        `yaml:"baseurl"`     // API root, normally https://api.ebird.org/v2
	Timeout     time.Duration `yaml:"timeout"`     // per-request timeout
	CacheTTL    time.Duration `yaml:"cachettl"`    // lifetime of the memoized global taxonomy
	RateLimitMS int           `yaml:"ratelimitms"` // minimum spacing between requests
	MaxRetries  int           `yaml:"maxretries"`  // attempts for transient failures
}

// VisionSettings configures the vision model endpoint
type VisionSettings struct {
	BaseURL   string        `yaml:"baseurl"`   // chat completions API root
	APIKey    string        `yaml:"apikey"`    // bearer token
	Model     string        `yaml:"model"`     // model identifier
	MaxTokens int           `yaml:"maxtokens"` // output token cap
	Timeout   time.Duration `yaml:"timeout"`   // request timeout
}

// ImagingSettings bounds the payload sent to the vision model
type ImagingSettings struct {
	MaxDimension int `yaml:"maxdimension"` // longest side in pixels
	Quality      int `yaml:"quality"`      // JPEG quality 1-100
	MaxPixels    int `yaml:"maxpixels"`    // decoded source budget, width × height
}

// IdentificationSettings holds pipeline-wide options
type IdentificationSettings struct {
	DefaultRegion string `yaml:"defaultregion"` // eBird region used when a request omits one
}

// LocalStorageSettings stores images on the local filesystem
type LocalStorageSettings struct {
	Path      string `yaml:"path"`      // root directory
	BaseURL   string `yaml:"baseurl"`   // public URL prefix for stored files
	MinFreeMB uint64 `yaml:"minfreemb"` // refuse writes that would leave less free space; 0 disables
}

// S3StorageSettings stores images in an S3 compatible bucket
type S3StorageSettings struct {
	Endpoint        string        `yaml:"endpoint"`        // custom endpoint for MinIO and friends
	Region          string        `yaml:"region"`          // bucket region
	Bucket          string        `yaml:"bucket"`          // bucket name
	AccessKeyID     string        `yaml:"accesskeyid"`     // static credentials
	SecretAccessKey string        `yaml:"secretaccesskey"` // static credentials
	UsePathStyle    bool          `yaml:"usepathstyle"`    // path-style addressing
	PresignExpiry   time.Duration `yaml:"presignexpiry"`   // lifetime of returned GET URLs
}

// SFTPStorageSettings stores images on an SFTP server
type SFTPStorageSettings struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	PrivateKeyPath string        `yaml:"privatekeypath"`
	KnownHostFile  string        `yaml:"knownhostfile"`
	BasePath       string        `yaml:"basepath"`
	BaseURL        string        `yaml:"baseurl"` // URL prefix the files are served under
	Timeout        time.Duration `yaml:"timeout"`
}

// FTPStorageSettings stores images on an FTP server
type FTPStorageSettings struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	BasePath string        `yaml:"basepath"`
	BaseURL  string        `yaml:"baseurl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageSettings selects and configures the blob store for collection images
type StorageSettings struct {
	Type  string               `yaml:"type"` // local, s3, sftp or ftp
	Local LocalStorageSettings `yaml:"local"`
	S3    S3StorageSettings    `yaml:"s3"`
	SFTP  SFTPStorageSettings  `yaml:"sftp"`
	FTP   FTPStorageSettings   `yaml:"ftp"`
}

// SQLiteSettings contains settings for the SQLite collection store
type SQLiteSettings struct {
	Path string `yaml:"path"`
}

// MySQLSettings contains settings for the MySQL collection store
type MySQLSettings struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
}

// MongoDBSettings contains settings for the MongoDB collection store
type MongoDBSettings struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// CollectionSettings selects the per-owner document store
type CollectionSettings struct {
	Type    string          `yaml:"type"` // sqlite, mysql or mongodb
	SQLite  SQLiteSettings  `yaml:"sqlite"`
	MySQL   MySQLSettings   `yaml:"mysql"`
	MongoDB MongoDBSettings `yaml:"mongodb"`
}

// WebServerSettings configures the HTTP API
type WebServerSettings struct {
	Enabled        bool     `yaml:"enabled"`
	Port           string   `yaml:"port"`
	OwnerHeader    string   `yaml:"ownerheader"` // header carrying the resolved owner id
	MaxUploadMB    int      `yaml:"maxuploadmb"`
	AllowedOrigins []string `yaml:"allowedorigins"` // CORS origins; "*" allows any
}

// MQTTSettings contains settings for publishing saved entries over MQTT
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientid"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retain   bool   `yaml:"retain"`
}

// NotificationSettings configures shoutrrr push notifications
type NotificationSettings struct {
	Enabled bool          `yaml:"enabled"`
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

// SentrySettings configures error telemetry
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool `yaml:"enabled"`
}

// Settings contains all configuration options for birdlens
type Settings struct {
	Debug bool `yaml:"debug"`

	Main struct {
		Name string `yaml:"name"`
	} `yaml:"main"`

	Logging        logger.LoggingConfig   `yaml:"logging"`
	EBird          EBirdSettings          `yaml:"ebird"`
	Vision         VisionSettings         `yaml:"vision"`
	Imaging        ImagingSettings        `yaml:"imaging"`
	Identification IdentificationSettings `yaml:"identification"`
	Storage        StorageSettings        `yaml:"storage"`
	Collection     CollectionSettings     `yaml:"collection"`
	WebServer      WebServerSettings      `yaml:"webserver"`
	MQTT           MQTTSettings           `yaml:"mqtt"`
	Notification   NotificationSettings   `yaml:"notification"`
	Sentry         SentrySettings         `yaml:"sentry"`
	Metrics        MetricsSettings        `yaml:"metrics"`
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the settings instance.
func Load() (*Settings, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file; an empty path searches the default locations.
func LoadFile(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults, environment bindings and reads the config file.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		logger.Global().Module("conf").Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml to dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading it on first use
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				logger.Global().Module("conf").Error("error loading settings", logger.Error(err))
				os.Exit(1)
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig writes settings to configPath atomically through a temporary file.
// Comments in an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// resolveSecrets expands ${VAR} references and file: secret paths in credential settings.
func resolveSecrets(s *Settings) error {
	return secrets.ResolveFields(map[string]*string{
		"ebird.apikey":               &s.EBird.APIKey,
		"vision.apikey":              &s.Vision.APIKey,
		"storage.s3.accesskeyid":     &s.Storage.S3.AccessKeyID,
		"storage.s3.secretaccesskey": &s.Storage.S3.SecretAccessKey,
		"storage.sftp.password":      &s.Storage.SFTP.Password,
		"storage.ftp.password":       &s.Storage.FTP.Password,
		"collection.mysql.password":  &s.Collection.MySQL.Password,
		"collection.mongodb.uri":     &s.Collection.MongoDB.URI,
		"mqtt.password":              &s.MQTT.Password,
		"sentry.dsn":                 &s.Sentry.DSN,
	})
}
