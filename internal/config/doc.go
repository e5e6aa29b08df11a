// Package config provides the configuration of the link checker.
//
// Configuration is layered: NewConfig supplies defaults, an optional
// .linkcheck.yaml file is merged over them with Config.Merge, and CLI flags
// are applied last. The resulting Config is validated once before a run.
package config
