// Package config handles configuration loading and management.
package config

// Config holds all terrain tooling settings.
type Config struct {
	Maps    MapsConfig    `yaml:"maps"`
	Logging LoggingConfig `yaml:"logging"`
}

// MapsConfig holds terrain map lookup and decoding settings.
type MapsConfig struct {
	// SearchPaths are the directories scanned for terrain files.
	// Later entries take priority over earlier ones.
	SearchPaths []string `yaml:"search_paths"`

	// Strict rejects terrain revisions above the last known one instead
	// of decoding them with the newest layout.
	Strict bool `yaml:"strict"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Maps: MapsConfig{
			SearchPaths: []string{"maps"},
			Strict:      false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
