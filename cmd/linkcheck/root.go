package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nao1215/linkcheck/internal/log"
	"github.com/spf13/cobra"
)

// Log formats accepted by --log-format.
const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// NewRootCmd creates the root command for linkcheck.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkcheck",
		Short: "Find broken links in generated HTML documents",
		Long: `linkcheck validates the links, images, stylesheets and scripts referenced by
a tree of generated HTML documents.

Local references are resolved against the files in the tree. Remote references
are probed over HTTP, each distinct URL once, with bounded concurrency. The run
fails if any reference is broken.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", logFormatText, "Log format written to stderr (text or json)")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger creates the masking logger selected by --log-format. Logs go to
// the command's error stream.
func newLogger(cmd *cobra.Command, verbose bool) (*slog.Logger, error) {
	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		format, err = cmd.Root().PersistentFlags().GetString("log-format")
		if err != nil {
			format = logFormatText
		}
	}

	switch format {
	case logFormatText:
		return log.NewSecureLogger(cmd.ErrOrStderr(), verbose), nil
	case logFormatJSON:
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: expected %s or %s", format, logFormatText, logFormatJSON)
	}
}
