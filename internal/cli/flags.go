package cli

import (
	"github.com/spf13/cobra"

	"lawgraph/internal/conflict"
	"lawgraph/internal/lawfile"
	"lawgraph/internal/metrics"
)

func minArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < n {
			return invalidInvocationf("expected at least %d argument(s), got %d", n, len(args))
		}
		return nil
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return invalidInvocationf("expected %d argument(s), got %d", n, len(args))
		}
		return nil
	}
}

// threshold is the --severity flag, or the configured default.
func (a *app) threshold(flag string) (conflict.Severity, error) {
	raw := flag
	if raw == "" {
		raw = a.cfg.Engine.BlockingSeverity
	}
	s, err := conflict.ParseSeverity(raw)
	if err != nil {
		return 0, invalidInvocationf("invalid --severity: %v", err)
	}
	return s, nil
}

func checkFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return invalidInvocationf("invalid --format %q (expected text|json)", format)
	}
}

// collector returns a metrics collector when metrics are requested by flag
// or config, and nil otherwise.
func (a *app) collector(flag bool) (*metrics.Collector, error) {
	if !flag && !a.cfg.Metrics.Enabled {
		return nil, nil
	}
	return metrics.New(false)
}

func (a *app) writeMetrics(c *metrics.Collector) {
	if c == nil {
		return
	}
	if err := c.WriteText(a.streams.Err); err != nil {
		a.logger.Warn("cannot write metrics", "error", err)
	}
}

func globFiles(patterns []string) ([]string, error) {
	files, err := lawfile.Glob(patterns...)
	if err != nil {
		return nil, configErrorf("%v", err)
	}
	return files, nil
}
