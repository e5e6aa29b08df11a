package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/linkcheck/internal/config"
	"github.com/nao1215/linkcheck/internal/database"
	"github.com/nao1215/linkcheck/internal/report"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTree creates files below dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(p, []byte(contents), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

// TestNewCheckCmd tests the check command creation.
func TestNewCheckCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCheckCmd()

	if cmd.Use != "check [dir]" {
		t.Errorf("expected use 'check [dir]', got %q", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("expected non-empty descriptions")
	}

	flags := []struct {
		name      string
		shorthand string
	}{
		{"pattern", "p"},
		{"tag", ""},
		{"ignore", "i"},
		{"timeout", "t"},
		{"user-agent", "u"},
		{"parallelism", "P"},
		{"proxy", ""},
		{"tor", ""},
		{"external-tor", "e"},
		{"tor-timeout", "T"},
		{"config", "c"},
		{"json", "j"},
		{"markdown", "m"},
		{"output", "o"},
		{"summary", "s"},
		{"tee", ""},
		{"watch", "w"},
		{"no-history", ""},
	}
	for _, tt := range flags {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
		})
	}
}

func TestParseTagFlags(t *testing.T) {
	t.Parallel()

	t.Run("single and multiple attributes", func(t *testing.T) {
		t.Parallel()
		tags, err := parseTagFlags([]string{"a=href", "video = src, poster", "a=ping"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.Join(tags["a"], ","); got != "href,ping" {
			t.Errorf("a = %q, want %q", got, "href,ping")
		}
		if got := strings.Join(tags["video"], ","); got != "src,poster" {
			t.Errorf("video = %q, want %q", got, "src,poster")
		}
	})

	for _, spec := range []string{"a", "=href", "a=", "a= , "} {
		t.Run("rejects "+spec, func(t *testing.T) {
			t.Parallel()
			if _, err := parseTagFlags([]string{spec}); err == nil {
				t.Errorf("expected error for %q", spec)
			}
		})
	}
}

func TestBuildCheckConfig(t *testing.T) {
	t.Parallel()

	configFile := filepath.Join(t.TempDir(), "linkcheck.yaml")
	writeTree(t, filepath.Dir(configFile), map[string]string{
		"linkcheck.yaml": `html:
  pattern: "**/*.htm"
ignore:
  - "^https://example\\.org/"
timeout: 3s
parallelism: 2
history: false
`,
	})

	t.Run("file values over defaults", func(t *testing.T) {
		t.Parallel()
		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"-c", configFile}); err != nil {
			t.Fatalf("ParseFlags: %v", err)
		}
		cfg, err := buildCheckConfig(cmd, []string{"site"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Root != "site" {
			t.Errorf("Root = %q, want %q", cfg.Root, "site")
		}
		if cfg.HTML.Pattern != "**/*.htm" {
			t.Errorf("Pattern = %q", cfg.HTML.Pattern)
		}
		if cfg.Timeout != 3*time.Second {
			t.Errorf("Timeout = %v", cfg.Timeout)
		}
		if cfg.Parallelism != 2 {
			t.Errorf("Parallelism = %d", cfg.Parallelism)
		}
		if len(cfg.Ignore) != 1 {
			t.Errorf("Ignore = %v", cfg.Ignore)
		}
		if cfg.SaveHistory {
			t.Error("expected history to be disabled by the file")
		}
		if cfg.UserAgent != config.DefaultUserAgent {
			t.Errorf("UserAgent = %q, want default", cfg.UserAgent)
		}
	})

	t.Run("explicit flags over file values", func(t *testing.T) {
		t.Parallel()
		cmd := NewCheckCmd()
		err := cmd.ParseFlags([]string{
			"-c", configFile,
			"--pattern", "docs/**/*.html",
			"--timeout", "5s",
			"--tag", "img=src,srcset",
			"-i", "^mailto:",
			"-i", "^tel:",
			"--external-tor", "127.0.0.1:9050",
			"--json",
			"-o", "out/report.json",
		})
		if err != nil {
			t.Fatalf("ParseFlags: %v", err)
		}
		cfg, err := buildCheckConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Root != "." {
			t.Errorf("Root = %q, want %q", cfg.Root, ".")
		}
		if cfg.HTML.Pattern != "docs/**/*.html" {
			t.Errorf("Pattern = %q", cfg.HTML.Pattern)
		}
		if cfg.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v", cfg.Timeout)
		}
		if cfg.Parallelism != 2 {
			t.Errorf("Parallelism = %d, want file value", cfg.Parallelism)
		}
		if len(cfg.HTML.Tags) != 1 || len(cfg.HTML.Tags["img"]) != 2 {
			t.Errorf("Tags = %v", cfg.HTML.Tags)
		}
		if len(cfg.Ignore) != 2 {
			t.Errorf("Ignore = %v", cfg.Ignore)
		}
		if cfg.Tor.Proxy != "127.0.0.1:9050" {
			t.Errorf("Tor.Proxy = %q", cfg.Tor.Proxy)
		}
		if !cfg.JSONReport || cfg.ReportFile != "out/report.json" {
			t.Errorf("JSONReport = %v, ReportFile = %q", cfg.JSONReport, cfg.ReportFile)
		}
	})

	t.Run("no-history disables history", func(t *testing.T) {
		t.Parallel()
		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"-c", configFile, "--no-history"}); err != nil {
			t.Fatalf("ParseFlags: %v", err)
		}
		cfg, err := buildCheckConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.SaveHistory {
			t.Error("expected history to be disabled")
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()
		cmd := NewCheckCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"-c", missing}); err != nil {
			t.Fatalf("ParseFlags: %v", err)
		}
		_, err := buildCheckConfig(cmd, nil)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("invalid tag flag", func(t *testing.T) {
		t.Parallel()
		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"-c", configFile, "--tag", "img"}); err != nil {
			t.Fatalf("ParseFlags: %v", err)
		}
		if _, err := buildCheckConfig(cmd, nil); err == nil {
			t.Error("expected error for invalid --tag")
		}
	})
}

// newSite writes a small document tree whose remote references point at an
// httptest server.
func newSite(t *testing.T) (root string, server *httptest.Server) {
	t.Helper()

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	root = t.TempDir()
	writeTree(t, root, map[string]string{
		"index.html": `<a href="about/">About</a>
<a href="missing.html">Missing</a>
<img src="logo.png">
<a href="` + server.URL + `/ok">ok</a>
<a href="` + server.URL + `/gone">gone</a>
<a href="mailto:team@example.com">mail</a>`,
		"about/index.html": `<a href="../index.html">Home</a>`,
		"logo.png":         "png",
		".git/config":      "[core]",
	})
	return root, server
}

func TestRunCheck(t *testing.T) {
	t.Parallel()

	t.Run("reports broken references and records the run", func(t *testing.T) {
		t.Parallel()
		root, server := newSite(t)
		dbDir := t.TempDir()

		cfg := config.NewConfig()
		cfg.Root = root
		cfg.DBDir = dbDir

		var out bytes.Buffer
		err := runCheck(context.Background(), &out, cfg, checkOptions{}, discardLogger())
		if !errors.Is(err, errBrokenLinks) {
			t.Fatalf("expected errBrokenLinks, got %v", err)
		}
		if !strings.Contains(err.Error(), "2 in 1 documents") {
			t.Errorf("unexpected error message: %v", err)
		}

		want := "index.html\n" +
			"  " + server.URL + "/gone (HTTP 404)\n" +
			"  missing.html (not found)\n"
		if out.String() != want {
			t.Errorf("output = %q, want %q", out.String(), want)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open history: %v", err)
		}
		defer db.Close()
		runs, err := db.LatestRuns(context.Background(), root, 0)
		if err != nil {
			t.Fatalf("LatestRuns: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 recorded run, got %d", len(runs))
		}
		if runs[0].BrokenCount != 2 || runs[0].Documents != 2 {
			t.Errorf("recorded run = %+v", runs[0])
		}
	})

	t.Run("passing tree writes nothing", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"index.html": `<a href="docs/">Docs</a><a href="#top">Top</a>`,
			"docs/index.html": `<a href="/index.html">Home</a>`,
		})

		cfg := config.NewConfig()
		cfg.Root = root
		cfg.SaveHistory = false

		var out bytes.Buffer
		if err := runCheck(context.Background(), &out, cfg, checkOptions{}, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("expected no output, got %q", out.String())
		}
	})

	t.Run("summary line", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeTree(t, root, map[string]string{"index.html": `<a href="index.html">self</a>`})

		cfg := config.NewConfig()
		cfg.Root = root
		cfg.SaveHistory = false

		var out bytes.Buffer
		if err := runCheck(context.Background(), &out, cfg, checkOptions{summary: true}, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out.String(), "1 documents, 1 references (0 ignored), 0 broken") {
			t.Errorf("unexpected summary %q", out.String())
		}
	})

	t.Run("json report to file", func(t *testing.T) {
		t.Parallel()
		root, _ := newSite(t)
		reportFile := filepath.Join(t.TempDir(), "reports", "links.json")

		cfg := config.NewConfig()
		cfg.Root = root
		cfg.SaveHistory = false
		cfg.JSONReport = true
		cfg.ReportFile = reportFile
		cfg.Ignore = []string{"/gone$"}

		var out bytes.Buffer
		err := runCheck(context.Background(), &out, cfg, checkOptions{}, discardLogger())
		if !errors.Is(err, errBrokenLinks) {
			t.Fatalf("expected errBrokenLinks, got %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("expected nothing on stdout, got %q", out.String())
		}

		data, err := os.ReadFile(reportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		var got report.JSONReport
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("invalid JSON report: %v", err)
		}
		if got.Success {
			t.Error("expected success to be false")
		}
		if got.Run == nil || got.Run.Ignored != 1 {
			t.Fatalf("unexpected run %+v", got.Run)
		}
		if lines := got.Run.Report.Broken["index.html"]; len(lines) != 1 || lines[0] != "missing.html (not found)" {
			t.Errorf("unexpected report lines %v", lines)
		}
	})

	t.Run("tee prints the text report next to the file", func(t *testing.T) {
		t.Parallel()
		root, _ := newSite(t)
		reportFile := filepath.Join(t.TempDir(), "links.md")

		cfg := config.NewConfig()
		cfg.Root = root
		cfg.SaveHistory = false
		cfg.MarkdownReport = true
		cfg.ReportFile = reportFile
		cfg.Ignore = []string{"/gone$"}

		var out bytes.Buffer
		err := runCheck(context.Background(), &out, cfg, checkOptions{tee: true}, discardLogger())
		if !errors.Is(err, errBrokenLinks) {
			t.Fatalf("expected errBrokenLinks, got %v", err)
		}
		if want := "index.html\n  missing.html (not found)\n"; out.String() != want {
			t.Errorf("output = %q, want %q", out.String(), want)
		}

		data, err := os.ReadFile(reportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "# Link Check Report") {
			t.Errorf("expected markdown report in file, got %q", data)
		}
	})

	t.Run("markdown report", func(t *testing.T) {
		t.Parallel()
		root, _ := newSite(t)

		cfg := config.NewConfig()
		cfg.Root = root
		cfg.SaveHistory = false
		cfg.MarkdownReport = true

		var out bytes.Buffer
		_ = runCheck(context.Background(), &out, cfg, checkOptions{}, discardLogger())
		if !strings.Contains(out.String(), "# Link Check Report") {
			t.Errorf("expected markdown heading, got %q", out.String())
		}
	})

	t.Run("invalid ignore pattern", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Root = t.TempDir()
		cfg.SaveHistory = false
		cfg.Ignore = []string{"("}

		err := runCheck(context.Background(), io.Discard, cfg, checkOptions{}, discardLogger())
		if err == nil || errors.Is(err, errBrokenLinks) {
			t.Errorf("expected configuration error, got %v", err)
		}
	})

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Root = filepath.Join(t.TempDir(), "missing")
		cfg.SaveHistory = false

		err := runCheck(context.Background(), io.Discard, cfg, checkOptions{}, discardLogger())
		if err == nil || errors.Is(err, errBrokenLinks) {
			t.Errorf("expected load error, got %v", err)
		}
	})

	t.Run("watch ignores its own report file", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeTree(t, root, map[string]string{"index.html": `<a href="index.html">self</a>`})

		cfg := config.NewConfig()
		cfg.Root = root
		cfg.SaveHistory = false
		cfg.ReportFile = filepath.Join(root, "report.txt")

		// The watch loop logs on the calling goroutine only.
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))

		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()

		edited := time.AfterFunc(time.Second, func() {
			page := filepath.Join(root, "index.html")
			if err := os.WriteFile(page, []byte(`<a href="#top">top</a>`), 0600); err != nil {
				t.Errorf("failed to edit index.html: %v", err)
			}
		})
		defer edited.Stop()

		if err := runCheck(ctx, io.Discard, cfg, checkOptions{watch: true}, logger); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := strings.Count(logs.String(), "change detected"); got != 1 {
			t.Errorf("expected 1 re-check for 1 edit, got %d", got)
		}
		if _, err := os.Stat(cfg.ReportFile); err != nil {
			t.Errorf("expected report file: %v", err)
		}
	})

	t.Run("unreachable external tor proxy", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Root = t.TempDir()
		cfg.SaveHistory = false
		cfg.Timeout = time.Second
		cfg.Tor.Proxy = "127.0.0.1:1"

		err := runCheck(context.Background(), io.Discard, cfg, checkOptions{}, discardLogger())
		if err == nil || !strings.Contains(err.Error(), "tor proxy check failed") {
			t.Errorf("expected tor proxy error, got %v", err)
		}
	})
}

func TestCheckCmdExecute(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"index.html": `<img src="missing.png">`})
	configFile := filepath.Join(t.TempDir(), "linkcheck.yaml")
	writeTree(t, filepath.Dir(configFile), map[string]string{"linkcheck.yaml": "history: false\n"})

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"check", "-c", configFile, root})

	err := cmd.Execute()
	if !errors.Is(err, errBrokenLinks) {
		t.Fatalf("expected errBrokenLinks, got %v", err)
	}
	if want := "index.html\n  missing.png (not found)\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestCheckCmdLogFormat(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"index.html": `<a href="index.html">self</a>`})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		var out, errOut bytes.Buffer
		cmd := NewRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetArgs([]string{"check", "-v", "--log-format", "json", "--no-history", root})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		line, _, _ := strings.Cut(errOut.String(), "\n")
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("expected a JSON log line, got %q: %v", line, err)
		}
		if entry["msg"] != "starting check" {
			t.Errorf("msg = %v, want %q", entry["msg"], "starting check")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"check", "--log-format", "xml", "--no-history", root})

		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "invalid --log-format") {
			t.Errorf("expected log format error, got %v", err)
		}
	})
}
