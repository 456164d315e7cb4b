package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"lawgraph/internal/conflict"
	"lawgraph/internal/engine"
	"lawgraph/internal/metrics"
)

// FileReport is the conflict report for one law file.
type FileReport struct {
	File      string              `json:"file"`
	Error     string              `json:"error,omitempty"`
	Conflicts []conflict.Conflict `json:"conflicts"`
	Blocking  int                 `json:"blocking"`

	err error
}

type checkOptions struct {
	severity string
	format   string
	watch    bool
	metrics  bool
}

func (a *app) checkCommand() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check FILE|GLOB...",
		Short: "Detect conflicts in law files",
		Long: `check loads each law file and reports structural, dependency, arity,
polarity and shape conflicts. Patterns may use ** to match nested
directories.

The exit code is 1 when any file has a conflict at or above --severity, and
3 when a file cannot be loaded.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.severity, "severity", "", "Lowest blocking severity: low|medium|high|critical (default from config)")
	f.StringVar(&opts.format, "format", "text", "Output format: text|json")
	f.BoolVarP(&opts.watch, "watch", "w", false, "Re-check when the files change")
	f.BoolVar(&opts.metrics, "metrics", false, "Print Prometheus metrics to stderr when done")
	return cmd
}

func (a *app) runCheck(cmd *cobra.Command, args []string, opts checkOptions) error {
	threshold, err := a.threshold(opts.severity)
	if err != nil {
		return err
	}
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	patterns := make([]string, len(args))
	for i, arg := range args {
		if patterns[i], err = resolveUnderWorkDir(a.workDir, arg); err != nil {
			return err
		}
	}

	collector, err := a.collector(opts.metrics)
	if err != nil {
		return err
	}

	once := func() error {
		reports, err := a.checkFiles(patterns, threshold, collector)
		if err != nil {
			return err
		}
		a.result.Reports = reports
		if err := writeReports(cmd.OutOrStdout(), opts.format, reports); err != nil {
			return err
		}
		return reportsError(reports)
	}

	if !opts.watch {
		err := once()
		a.writeMetrics(collector)
		return err
	}

	if err := once(); err != nil {
		a.logger.Warn("check failed", "error", err)
	}
	return watchFiles(cmd.Context(), patterns, a.cfg.Watch.Debounce, a.logger, func() {
		if err := once(); err != nil {
			a.logger.Warn("check failed", "error", err)
		}
		a.writeMetrics(collector)
	})
}

// checkFiles loads and checks every file matched by patterns. Load errors are
// recorded per file; only a pattern that matches nothing is returned as an
// error.
func (a *app) checkFiles(patterns []string, threshold conflict.Severity, collector *metrics.Collector) ([]FileReport, error) {
	files, err := globFiles(patterns)
	if err != nil {
		return nil, err
	}
	reports := make([]FileReport, 0, len(files))
	for _, file := range files {
		r := FileReport{File: file}
		doc, err := a.loader.Load(file)
		if err != nil {
			r.Error = err.Error()
			r.err = err
			a.logger.Error("cannot load law file", "file", file, "error", err)
			reports = append(reports, r)
			continue
		}
		all, blocking := engine.Check(doc.Nodes, doc.Edges,
			engine.WithBlockingSeverity(threshold),
			engine.WithMetrics(collector),
		)
		r.Conflicts = all
		if r.Conflicts == nil {
			r.Conflicts = []conflict.Conflict{}
		}
		r.Blocking = len(blocking)
		a.logger.Debug("checked law file", "file", file, "conflicts", len(all), "blocking", len(blocking))
		reports = append(reports, r)
	}
	return reports, nil
}

// reportsError turns the worst outcome into an error: load errors first,
// then blocking conflicts.
func reportsError(reports []FileReport) error {
	for _, r := range reports {
		if r.err != nil {
			return r.err
		}
	}
	blocked := 0
	for _, r := range reports {
		if r.Blocking > 0 {
			blocked++
		}
	}
	if blocked > 0 {
		return &InvocationError{ExitCode: ExitGraphFailure, Message: fmt.Sprintf("%d file(s) with blocking conflicts", blocked)}
	}
	return nil
}

func writeReports(w io.Writer, format string, reports []FileReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, r := range reports {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "%s: error: %s\n", r.File, r.Error)
		case len(r.Conflicts) == 0:
			fmt.Fprintf(w, "%s: ok\n", r.File)
		default:
			fmt.Fprintf(w, "%s: %d conflict(s), %d blocking (%s)\n", r.File, len(r.Conflicts), r.Blocking, summaryLine(r.Conflicts))
			for _, c := range r.Conflicts {
				fmt.Fprintf(w, "  %s\n", c)
				if c.Suggestion != "" {
					fmt.Fprintf(w, "    suggestion: %s\n", c.Suggestion)
				}
			}
		}
	}
	return nil
}

func summaryLine(conflicts []conflict.Conflict) string {
	counts := conflict.Summary(conflicts)
	var parts []string
	for sev := conflict.SeverityCritical; sev >= conflict.SeverityLow; sev-- {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", sev, n))
		}
	}
	return strings.Join(parts, " ")
}
