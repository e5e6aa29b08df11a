package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nao1215/linkcheck/internal/model"
	"github.com/nao1215/linkcheck/internal/tor"
	"golang.org/x/sync/errgroup"
)

// Failure reasons that are not derived from an HTTP status or error message.
const (
	// ReasonNoResponse is used when a probe fails without an error message.
	ReasonNoResponse = "no response"

	// ReasonInvalidURL is used when a reference cannot be turned into a request.
	ReasonInvalidURL = "invalid URL"

	// ReasonNoOnionRoute is used for .onion references when no Tor proxy is
	// configured.
	ReasonNoOnionRoute = "onion service unreachable without Tor proxy"
)

// DefaultTimeout bounds a single probe when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Validator probes remote references with bounded concurrency.
type Validator struct {
	client      *http.Client
	onionClient *http.Client
	userAgent   string
	timeout     time.Duration
	parallelism int
	logger      *slog.Logger

	// probes counts HTTP requests issued, HEAD and GET separately.
	probes atomic.Int64
}

// Option configures a Validator.
type Option func(*Validator)

// WithHTTPClient sets the client used for clearnet probes.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) {
		if client != nil {
			v.client = client
		}
	}
}

// WithOnionClient sets the client used for .onion hosts, typically one built
// by tor.Client.NewHTTPClient.
func WithOnionClient(client *http.Client) Option {
	return func(v *Validator) {
		v.onionClient = client
	}
}

// WithUserAgent sets the User-Agent header sent with every probe.
func WithUserAgent(userAgent string) Option {
	return func(v *Validator) {
		v.userAgent = userAgent
	}
}

// WithTimeout sets the per-probe timeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(v *Validator) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

// WithParallelism sets the maximum number of concurrent probes.
// Non-positive values are ignored.
func WithParallelism(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.parallelism = n
		}
	}
}

// WithLogger sets the logger for probe diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New creates a Validator. Without WithHTTPClient, a client is created that
// does not follow redirects and does not verify certificates.
func New(opts ...Option) *Validator {
	v := &Validator{
		timeout:     DefaultTimeout,
		parallelism: 4 * runtime.NumCPU(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.client == nil {
		v.client = newDefaultClient()
	}
	return v
}

func newDefaultClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is *http.Transport
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // Certificate trust is not checked
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Stats returns the number of HTTP requests issued so far.
func (v *Validator) Stats() int64 {
	return v.probes.Load()
}

// ValidateAll probes every reference in refs and returns one outcome per
// reference. refs is expected to hold distinct references; duplicates are
// probed once.
//
// The only error is cancellation of ctx, in which case no outcomes are
// returned.
func (v *Validator) ValidateAll(ctx context.Context, refs []string) (map[string]model.Outcome, error) {
	distinct := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		distinct = append(distinct, ref)
	}

	v.logger.Debug("validating remote references",
		"count", len(distinct),
		"parallelism", v.parallelism,
	)
	startTime := time.Now()

	// Each goroutine writes only its own slot.
	slots := make([]model.Outcome, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.parallelism)

	for i, ref := range distinct {
		g.Go(func() error {
			outcome, err := v.Probe(gctx, ref)
			if err != nil {
				return err
			}
			slots[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string]model.Outcome, len(distinct))
	for i, ref := range distinct {
		results[ref] = slots[i]
	}

	v.logger.Debug("remote validation complete",
		"count", len(distinct),
		"elapsed", time.Since(startTime),
	)
	return results, nil
}

// Probe validates a single remote reference.
//
// Status codes 400 through 599 are broken with reason "HTTP <code>". Transport
// failures, including the per-probe timeout, are broken with the underlying
// error message. Any other response is valid. The returned error is non-nil
// only when ctx itself is done.
func (v *Validator) Probe(ctx context.Context, rawURL string) (model.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return model.Outcome{}, err
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return model.Broken(ReasonInvalidURL), nil
	}

	client := v.client
	if host := u.Hostname(); tor.IsOnionHost(host) {
		if err := tor.CheckHost(host); err != nil {
			return model.Broken(err.Error()), nil
		}
		if v.onionClient == nil {
			return model.Broken(ReasonNoOnionRoute), nil
		}
		client = v.onionClient
	}

	// The timeout covers the HEAD request and its GET retry together.
	probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	status, err := v.send(probeCtx, client, http.MethodHead, rawURL)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = v.send(probeCtx, client, http.MethodGet, rawURL)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Outcome{}, ctxErr
		}
		v.logger.Debug("probe failed", "url", rawURL, "error", err)
		return model.Broken(failureReason(err)), nil
	}

	if status >= 400 && status <= 599 {
		v.logger.Debug("probe returned error status", "url", rawURL, "status", status)
		return model.Broken("HTTP " + strconv.Itoa(status)), nil
	}
	return model.Valid(), nil
}

// send issues one request and returns the response status. The body is
// discarded.
func (v *Validator) send(ctx context.Context, client *http.Client, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return 0, err
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	v.probes.Add(1)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // Body content is irrelevant

	return resp.StatusCode, nil
}

// failureReason extracts the most specific message from a transport error.
func failureReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return ReasonNoResponse
}
