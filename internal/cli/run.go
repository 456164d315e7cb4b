package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lawgraph/internal/dag"
	"lawgraph/internal/engine"
	"lawgraph/internal/failure"
	"lawgraph/internal/lawfile"
	lawtrace "lawgraph/internal/trace"
	"lawgraph/internal/value"
)

type runOptions struct {
	seeds    []string
	parallel int
	severity string
	format   string
	trace    string
	verify   string
	metrics  bool
}

func (a *app) runCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a law graph",
		Long: `run checks the graph for conflicts, then executes it in dependency order
and prints every node's outcome and the terminal value.

Seeds from the file can be replaced with --seed node=JSON. A JSON array is
the argument list; any other JSON value is a single argument.`,
		Example: `  lawgraph run pricing.yaml --seed base=250
  lawgraph run pricing.yaml --parallel 4 --format json --trace out/trace.json
  lawgraph run pricing.yaml --verify out/trace.json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGraph(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.seeds, "seed", nil, "Seed a source node: node=JSON (repeatable)")
	f.IntVarP(&opts.parallel, "parallel", "p", 0, "Nodes to run at once (default from config)")
	f.StringVar(&opts.severity, "severity", "", "Lowest blocking severity: low|medium|high|critical (default from config)")
	f.StringVar(&opts.format, "format", "text", "Output format: text|json")
	f.StringVar(&opts.trace, "trace", "", "Write the canonical execution trace to this path")
	f.StringVar(&opts.verify, "verify", "", "Fail unless the run reproduces the trace recorded at this path")
	f.BoolVar(&opts.metrics, "metrics", false, "Print Prometheus metrics to stderr when done")
	return cmd
}

func (a *app) runGraph(cmd *cobra.Command, file string, opts runOptions) error {
	threshold, err := a.threshold(opts.severity)
	if err != nil {
		return err
	}
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	parallel := a.cfg.Engine.Parallelism
	if cmd.Flags().Changed("parallel") {
		if opts.parallel < 1 {
			return invalidInvocationf("--parallel must be at least 1, got %d", opts.parallel)
		}
		parallel = opts.parallel
	}
	path, err := resolveUnderWorkDir(a.workDir, file)
	if err != nil {
		return err
	}
	tracePath, verifyPath := "", ""
	if strings.TrimSpace(opts.trace) != "" {
		if tracePath, err = resolveUnderWorkDir(a.workDir, opts.trace); err != nil {
			return err
		}
	}
	var recorded lawtrace.ExecutionTrace
	if strings.TrimSpace(opts.verify) != "" {
		if verifyPath, err = resolveUnderWorkDir(a.workDir, opts.verify); err != nil {
			return err
		}
		if recorded, err = lawtrace.ReadFile(verifyPath); err != nil {
			return configErrorf("read recorded trace: %v", err)
		}
	}

	doc, err := a.loader.Load(path)
	if err != nil {
		return err
	}
	seeds, err := mergeSeeds(doc.Seeds, opts.seeds)
	if err != nil {
		return err
	}
	collector, err := a.collector(opts.metrics)
	if err != nil {
		return err
	}
	defer a.writeMetrics(collector)

	rec := lawtrace.NewRecorder()
	res, runErr := engine.ExecuteGraph(cmd.Context(), doc.Nodes, doc.Edges, seeds,
		engine.WithLogger(a.logger),
		engine.WithMetrics(collector),
		engine.WithTraceSink(rec),
		engine.WithBlockingSeverity(threshold),
		engine.WithParallelism(parallel),
	)
	a.result.GraphResult = res

	if res != nil || errors.Is(runErr, engine.ErrBlocked) {
		graphHash := doc.Digest
		if res != nil {
			graphHash = res.GraphHash.String()
		}
		tr := rec.Trace(graphHash)
		if tracePath != "" {
			if err := lawtrace.WriteFile(tracePath, tr); err != nil {
				a.logger.Error("cannot write trace", "path", tracePath, "error", err)
				if runErr == nil {
					runErr = err
				}
			}
		}
		if verifyPath != "" {
			if err := lawtrace.Verify(recorded, tr); err != nil {
				return &InvocationError{ExitCode: ExitGraphFailure, Message: fmt.Sprintf("%s: %v", verifyPath, err)}
			}
			a.logger.Info("run reproduced recorded trace", "path", verifyPath, "events", len(tr.Events))
		}
	}

	var blocked *engine.BlockedError
	if errors.As(runErr, &blocked) {
		rep := []FileReport{{File: path, Conflicts: blocked.Conflicts, Blocking: len(blocked.Conflicts)}}
		if err := writeReports(cmd.OutOrStdout(), opts.format, rep); err != nil {
			return err
		}
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	if err := writeRun(cmd.OutOrStdout(), opts.format, doc, res); err != nil {
		return err
	}
	return failure.FromResult(res)
}

// mergeSeeds overlays --seed flags on the file's seeds.
func mergeSeeds(fromFile map[string][]value.Value, flags []string) (map[string][]value.Value, error) {
	seeds := make(map[string][]value.Value, len(fromFile)+len(flags))
	for id, args := range fromFile {
		seeds[id] = args
	}
	for _, raw := range flags {
		id, data, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, invalidInvocationf("invalid --seed %q (expected node=JSON)", raw)
		}
		var v value.Value
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, invalidInvocationf("invalid --seed %q: %v", raw, err)
		}
		if items, isList := v.AsList(); isList {
			seeds[strings.TrimSpace(id)] = items
		} else {
			seeds[strings.TrimSpace(id)] = []value.Value{v}
		}
	}
	return seeds, nil
}

type nodeReport struct {
	ID    string       `json:"id"`
	State string       `json:"state"`
	Value *value.Value `json:"value,omitempty"`
	Error string       `json:"error,omitempty"`
}

type runReport struct {
	File       string       `json:"file"`
	RunID      string       `json:"runId"`
	GraphHash  string       `json:"graphHash"`
	Success    bool         `json:"success"`
	Value      value.Value  `json:"value"`
	Nodes      []nodeReport `json:"nodes"`
	DurationMS int64        `json:"durationMs"`
}

func writeRun(w io.Writer, format string, doc *lawfile.Document, res *dag.GraphResult) error {
	rep := runReport{
		File:       doc.Path,
		RunID:      res.RunID,
		GraphHash:  res.GraphHash.String(),
		Success:    res.Success,
		Value:      res.Value,
		DurationMS: res.Duration.Milliseconds(),
	}
	for _, n := range doc.Nodes {
		r := res.Results[n.ID]
		nr := nodeReport{ID: n.ID, State: string(res.FinalState[n.ID])}
		if r.Success {
			v := r.Value
			nr.Value = &v
		} else {
			nr.Error = r.Error
		}
		rep.Nodes = append(rep.Nodes, nr)
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "run %s  graph %s  success=%t\n", rep.RunID, shortHash(rep.GraphHash), rep.Success)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range rep.Nodes {
		detail := n.Error
		if n.Value != nil {
			detail = n.Value.String()
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", n.ID, n.State, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "value: %s\n", rep.Value)
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
