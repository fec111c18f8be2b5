// Package logger provides the structured logger injected into every
// component of the crawler.
package logger

// Level represents the logging level.
type Level string

const (
	// DebugLevel logs debug messages.
	DebugLevel Level = "debug"
	// InfoLevel logs info messages.
	InfoLevel Level = "info"
	// WarnLevel logs warning messages.
	WarnLevel Level = "warn"
	// ErrorLevel logs error messages.
	ErrorLevel Level = "error"
)

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum logging level.
	Level Level `yaml:"level"`
	// Development enables colored, human-oriented console output.
	Development bool `yaml:"development"`
	// Encoding is "console" or "json".
	Encoding string `yaml:"encoding"`
	// OutputPaths is a list of file paths (or "stdout"/"stderr") to write
	// logging output to.
	OutputPaths []string `yaml:"output_paths"`
	// MuteComponents lists component names whose debug output is dropped,
	// e.g. the per-listing date parser which is very chatty.
	MuteComponents []string `yaml:"mute_components"`
}

// DefaultConfig returns the console logger configuration used when no
// configuration file overrides it.
func DefaultConfig() Config {
	return Config{
		Level:       InfoLevel,
		Encoding:    "console",
		OutputPaths: []string{"stdout"},
	}
}
