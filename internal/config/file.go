package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// AttrList is a list of attribute names. In YAML it may be written either as
// a single string or as a sequence; both forms decode identically.
type AttrList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *AttrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return err
		}
		*a = AttrList{name}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*a = AttrList(names)
		return nil
	default:
		return fmt.Errorf("line %d: attribute list must be a string or a list of strings", value.Line)
	}
}

// FileHTML is the html section of the configuration file.
type FileHTML struct {
	// Pattern is a doublestar glob selecting documents to scan.
	Pattern string `yaml:"pattern,omitempty"`

	// Tags maps tag names to one or many attribute names.
	Tags map[string]AttrList `yaml:"tags,omitempty"`
}

// FileTor is the tor section of the configuration file.
type FileTor struct {
	Enabled        bool          `yaml:"enabled,omitempty"`
	Proxy          string        `yaml:"proxy,omitempty"`
	StartupTimeout time.Duration `yaml:"startupTimeout,omitempty"`
}

// File represents the structure of the .linkcheck.yaml configuration file.
// Durations are Go duration strings such as "10s".
type File struct {
	HTML        FileHTML      `yaml:"html,omitempty"`
	Ignore      []string      `yaml:"ignore,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	UserAgent   string        `yaml:"userAgent,omitempty"`
	Parallelism int           `yaml:"parallelism,omitempty"`
	Proxy       string        `yaml:"proxy,omitempty"`
	Tor         FileTor       `yaml:"tor,omitempty"`

	// History enables or disables the run history database.
	// Nil keeps the default.
	History *bool `yaml:"history,omitempty"`
}
