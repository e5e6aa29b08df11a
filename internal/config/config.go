package config

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "linkcheck"

	// DefaultPattern selects every HTML document in the tree.
	DefaultPattern = "**/*.html"

	// DefaultTimeout bounds each remote probe, including a GET retry.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is sent with every remote probe. Some hosts reject
	// requests without a browser-like User-Agent, so the default mimics one.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// parallelismPerCPU multiplies the CPU count to get the default number of
	// in-flight remote probes. Probes are I/O bound.
	parallelismPerCPU = 4
)

// DefaultParallelism returns the default cap on in-flight remote probes:
// four per available CPU.
func DefaultParallelism() int {
	return parallelismPerCPU * runtime.NumCPU()
}

// DefaultTags returns the default tag to attribute mapping: hyperlinks,
// images, stylesheets and scripts.
func DefaultTags() map[string]AttrList {
	return map[string]AttrList{
		"a":      {"href"},
		"img":    {"src"},
		"link":   {"href"},
		"script": {"src"},
	}
}

// HTMLConfig selects documents and the attributes read from them.
type HTMLConfig struct {
	// Pattern is a doublestar glob selecting which documents are scanned.
	Pattern string

	// Tags maps a tag name to the attribute names holding references.
	Tags map[string]AttrList
}

// TorConfig controls how references to .onion hosts are probed.
type TorConfig struct {
	// Enabled starts an embedded Tor daemon for .onion references.
	Enabled bool

	// Proxy is the address of an external Tor SOCKS5 proxy ("host:port").
	// When set, the embedded daemon is not started.
	Proxy string

	// StartupTimeout bounds the embedded daemon's bootstrap.
	StartupTimeout time.Duration
}

// Config holds all options of a link check run.
type Config struct {
	// Root is the directory loaded into the file set by the CLI.
	Root string

	// HTML selects documents and reference-bearing attributes.
	HTML HTMLConfig

	// Ignore lists regular expressions; matching references are skipped
	// entirely.
	Ignore []string

	// Timeout is the per-request network timeout of remote probes.
	Timeout time.Duration

	// UserAgent is the User-Agent header sent on remote probes.
	UserAgent string

	// Parallelism caps the number of in-flight remote probes.
	Parallelism int

	// Proxy is an optional SOCKS5 proxy ("host:port") for all remote probes.
	Proxy string

	// Tor configures probing of .onion references.
	Tor TorConfig

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit configuration file path, if any.
	ConfigFilePath string

	// JSONReport selects JSON report output.
	JSONReport bool

	// MarkdownReport selects Markdown report output.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// SaveHistory records each run in the history database.
	SaveHistory bool

	// DBDir is the directory holding the history database.
	DBDir string
}

// NewConfig creates a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Root: ".",
		HTML: HTMLConfig{
			Pattern: DefaultPattern,
			Tags:    DefaultTags(),
		},
		Timeout:     DefaultTimeout,
		UserAgent:   DefaultUserAgent,
		Parallelism: DefaultParallelism(),
		Tor: TorConfig{
			StartupTimeout: DefaultTorStartupTimeout,
		},
		SaveHistory: true,
		DBDir:       XDGDataDir(),
	}
}

// Merge overlays the values set in a configuration file onto c.
// Unset file values keep the current value. Tags and ignore patterns from the
// file replace the current ones rather than being appended.
func (c *Config) Merge(f *File) {
	if f == nil {
		return
	}
	if f.HTML.Pattern != "" {
		c.HTML.Pattern = f.HTML.Pattern
	}
	if len(f.HTML.Tags) > 0 {
		c.HTML.Tags = make(map[string]AttrList, len(f.HTML.Tags))
		for tag, attrs := range f.HTML.Tags {
			c.HTML.Tags[tag] = append(AttrList(nil), attrs...)
		}
	}
	if len(f.Ignore) > 0 {
		c.Ignore = append([]string(nil), f.Ignore...)
	}
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.Parallelism != 0 {
		c.Parallelism = f.Parallelism
	}
	if f.Proxy != "" {
		c.Proxy = f.Proxy
	}
	if f.Tor.Enabled {
		c.Tor.Enabled = true
	}
	if f.Tor.Proxy != "" {
		c.Tor.Proxy = f.Tor.Proxy
	}
	if f.Tor.StartupTimeout > 0 {
		c.Tor.StartupTimeout = f.Tor.StartupTimeout
	}
	if f.History != nil {
		c.SaveHistory = *f.History
	}
}

// XDGDataDir returns the XDG data directory for linkcheck.
// On Linux: ~/.local/share/linkcheck
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for linkcheck.
// On Linux: ~/.config/linkcheck
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks that the configuration can drive a run.
// It returns the first problem found.
//
// Ignore patterns and the glob are not compiled here; the checker compiles
// them at construction and fails the run if they are malformed.
func (c *Config) Validate() error {
	if c.HTML.Pattern == "" {
		return ErrEmptyPattern
	}
	if len(c.HTML.Tags) == 0 {
		return ErrNoTags
	}
	for tag, attrs := range c.HTML.Tags {
		if tag == "" || len(attrs) == 0 {
			return ErrInvalidTags
		}
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Parallelism <= 0 {
		return ErrInvalidParallelism
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.Tor.Enabled && c.Tor.StartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}
	return nil
}
