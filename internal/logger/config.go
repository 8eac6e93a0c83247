package logger

// LoggingConfig is the logging section of the application settings.
type LoggingConfig struct {
	DefaultLevel  string                  `yaml:"defaultlevel"`
	Timezone      string                  `yaml:"timezone"` // "Local", "UTC" or an IANA name
	Console       *ConsoleOutput          `yaml:"console"`
	FileOutput    *FileOutput             `yaml:"fileoutput"`
	ModuleOutputs map[string]ModuleOutput `yaml:"modules" mapstructure:"modules"`
	ModuleLevels  map[string]string       `yaml:"modulelevels"`
}

// ConsoleOutput writes text to stdout, without timestamps.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// FileOutput writes JSON lines with RFC3339 timestamps.
type FileOutput struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Level   string `yaml:"level"`
}

// ModuleOutput sends one module to a file of its own instead of the main outputs.
type ModuleOutput struct {
	Enabled     bool   `yaml:"enabled"`
	FilePath    string `yaml:"filepath"`
	Level       string `yaml:"level"`
	ConsoleAlso bool   `yaml:"consolealso"` // keep writing to the console as well
}

const (
	DefaultLogLevel = "info"
	DefaultLogPath  = "logs/birdlens.log"
)

// applyConfigDefaults fills the sections a hand-written config may leave out: console on,
// file off, both at DefaultLogLevel.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}
	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{Path: DefaultLogPath, Level: cfg.DefaultLevel}
	}
	if cfg.ModuleOutputs == nil {
		cfg.ModuleOutputs = map[string]ModuleOutput{}
	}
}
