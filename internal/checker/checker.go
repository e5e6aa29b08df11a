package checker

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/linkcheck/internal/config"
	"github.com/nao1215/linkcheck/internal/extract"
	"github.com/nao1215/linkcheck/internal/fileset"
	"github.com/nao1215/linkcheck/internal/model"
	"github.com/nao1215/linkcheck/internal/pipeline"
	"github.com/nao1215/linkcheck/internal/remote"
	"github.com/nao1215/linkcheck/internal/tor"
)

// Checker validates the references of a file set.
// A Checker may be reused across runs; runs must not overlap.
type Checker struct {
	extractor *extract.Extractor
	ignore    []*regexp.Regexp
	validator *remote.Validator
	logger    *slog.Logger
	root      string

	mu      sync.Mutex
	lastRun *model.Run
}

// Option configures a Checker.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	root          string
	remoteOptions []remote.Option
}

// WithLogger sets the logger for the checker and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRoot records the directory the file set was loaded from in run
// summaries.
func WithRoot(root string) Option {
	return func(o *options) {
		o.root = root
	}
}

// WithRemoteOptions passes additional options to the remote validator.
// They are applied after the options derived from the configuration.
func WithRemoteOptions(opts ...remote.Option) Option {
	return func(o *options) {
		o.remoteOptions = append(o.remoteOptions, opts...)
	}
}

// New creates a Checker from cfg.
//
// Ignore patterns and the document glob are compiled here; a malformed
// pattern is returned as an error. When cfg.Proxy is set all remote probes go
// through that SOCKS5 proxy, and when cfg.Tor.Proxy is set .onion references
// are probed through Tor.
func New(cfg *config.Config, opts ...Option) (*Checker, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	tags := make(map[string][]string, len(cfg.HTML.Tags))
	for tag, attrs := range cfg.HTML.Tags {
		tags[tag] = []string(attrs)
	}
	extractor, err := extract.New(cfg.HTML.Pattern, tags, extract.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	ignore := make([]*regexp.Regexp, 0, len(cfg.Ignore))
	for _, pattern := range cfg.Ignore {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		ignore = append(ignore, re)
	}

	remoteOpts := []remote.Option{
		remote.WithTimeout(cfg.Timeout),
		remote.WithUserAgent(cfg.UserAgent),
		remote.WithParallelism(cfg.Parallelism),
		remote.WithLogger(o.logger),
	}
	if cfg.Proxy != "" {
		client, err := tor.NewClient(cfg.Proxy, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("proxy %q: %w", cfg.Proxy, err)
		}
		remoteOpts = append(remoteOpts, remote.WithHTTPClient(client.NewHTTPClient()))
	}
	if cfg.Tor.Proxy != "" {
		client, err := tor.NewClient(cfg.Tor.Proxy, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("tor proxy %q: %w", cfg.Tor.Proxy, err)
		}
		remoteOpts = append(remoteOpts, remote.WithOnionClient(client.NewHTTPClient()))
	}
	remoteOpts = append(remoteOpts, o.remoteOptions...)

	return &Checker{
		extractor: extractor,
		ignore:    ignore,
		validator: remote.New(remoteOpts...),
		logger:    o.logger,
		root:      o.root,
	}, nil
}

// Run checks every reference in set and returns the report of broken
// references. An empty report means every reference resolved.
//
// The returned error is an operational failure, such as cancellation of ctx;
// it is never used to signal broken references.
func (c *Checker) Run(ctx context.Context, set *fileset.FileSet) (*model.LinkReport, error) {
	started := time.Now()
	probesBefore := c.validator.Stats()

	state := &runState{set: set}
	p := pipeline.New(c.steps(), pipeline.WithLogger(c.logger))
	c.logger.Debug("running checker pipeline", "steps", p.StepNames())
	if err := p.Execute(ctx, state); err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:           uuid.NewString(),
		Root:         c.root,
		StartedAt:    started,
		Duration:     time.Since(started),
		Documents:    len(state.refsByDoc),
		References:   state.idx.Len(),
		Ignored:      state.ignored,
		RemoteProbes: int(c.validator.Stats() - probesBefore),
		Digest:       set.Digest(),
		Steps:        state.steps,
		Report:       state.report,
	}

	c.mu.Lock()
	c.lastRun = run
	c.mu.Unlock()

	c.logger.Info("link check complete",
		"documents", run.Documents,
		"references", run.References,
		"ignored", run.Ignored,
		"broken", run.Report.BrokenCount(),
		"probes", run.RemoteProbes,
		"elapsed", run.Duration,
	)
	return state.report, nil
}

// Check runs the checker and returns a *BrokenLinksError if any reference
// is broken.
func (c *Checker) Check(ctx context.Context, set *fileset.FileSet) error {
	report, err := c.Run(ctx, set)
	if err != nil {
		return err
	}
	if !report.Empty() {
		return &BrokenLinksError{Report: report}
	}
	return nil
}

// Matches reports whether the document at path is scanned for references.
// Hosts that load file sets lazily use it to read only matching documents.
func (c *Checker) Matches(path string) bool {
	return c.extractor.Matches(path)
}

// LastRun returns the summary of the most recent successful run, or nil.
func (c *Checker) LastRun() *model.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

// ignored reports whether ref matches an ignore pattern.
func (c *Checker) ignored(ref string) bool {
	for _, re := range c.ignore {
		if re.MatchString(ref) {
			return true
		}
	}
	return false
}

// filterRefs returns a copy of refsByDoc without ignored references.
func (c *Checker) filterRefs(refsByDoc map[string][]string) map[string][]string {
	if len(c.ignore) == 0 {
		return maps.Clone(refsByDoc)
	}
	filtered := make(map[string][]string, len(refsByDoc))
	for doc, refs := range refsByDoc {
		kept := make([]string, 0, len(refs))
		for _, ref := range refs {
			if !c.ignored(ref) {
				kept = append(kept, ref)
			}
		}
		filtered[doc] = kept
	}
	return filtered
}
