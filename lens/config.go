package lens

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the resolved run configuration for the instrumentation tools.
// Values come from a config file, overridden by CLI flags.
type Config struct {
	TargetDir        string            `yaml:"dir"`     // tree to instrument
	Mode             string            `yaml:"mode"`    // "all" or "none"
	CoroutineAlias   string            `yaml:"alias"`   // coroutine result alias
	YieldIdent       string            `yaml:"yield"`   // suspension call identifier
	Write            bool              `yaml:"write"`   // rewrite files in place
	Diff             bool              `yaml:"diff"`    // print unified diffs
	OutDir           string            `yaml:"out"`     // mirror output directory
	CacheMB          int               `yaml:"cachemb"` // instrumented-output cache budget
	StorageDir       string            `yaml:"storage"` // session storage directory
	ReportJsonFile   string            `yaml:"json"`    // trace report JSON output
	ReportChartsFile string            `yaml:"charts"`  // trace report chart output
	SessionLabel     string            `yaml:"session"` // label for stored sessions
	CustomFlags      map[string]string `yaml:"-"`       // extension-defined flags
}

// LoadConfigFile reads a YAML config file into the given Config, leaving
// fields absent from the file untouched.
func LoadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config read failure: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("config parse failure %s: %w", path, err)
	}
	return nil
}

// EngineOptions converts the configured identifiers into engine Options.
func (c *Config) EngineOptions() Options {
	return Options{
		CoroutineAlias: c.CoroutineAlias,
		YieldIdent:     c.YieldIdent,
	}
}
