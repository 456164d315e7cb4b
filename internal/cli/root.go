// Package cli implements the lawgraph command line: check law files for
// conflicts and run law graphs.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"

	"lawgraph/internal/config"
	"lawgraph/internal/dag"
	"lawgraph/internal/lawfile"
)

// Version is set at build time with -ldflags "-X lawgraph/internal/cli.Version=...".
var Version = "dev"

// CLIResult is the outcome of one invocation.
type CLIResult struct {
	ExitCode    int
	GraphResult *dag.GraphResult
	Reports     []FileReport
}

// Streams are the writers a command prints to.
type Streams struct {
	Out io.Writer
	Err io.Writer
}

// app holds what PersistentPreRunE resolves for the subcommands.
type app struct {
	streams Streams
	result  *CLIResult

	configPath string
	workDir    string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
	loader *lawfile.Loader
}

// Run executes the command line args (without argv[0]) and returns the
// semantic exit code together with any error.
func Run(ctx context.Context, args []string, streams Streams) (res CLIResult, err error) {
	if streams.Out == nil {
		streams.Out = io.Discard
	}
	if streams.Err == nil {
		streams.Err = io.Discard
	}
	res.ExitCode = ExitInternalError

	defer func() {
		if r := recover(); r != nil {
			res = CLIResult{ExitCode: ExitInternalError}
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	a := &app{streams: streams, result: &res}
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)

	started := false
	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		started = true
		return a.setup(c)
	}

	execErr := cmd.ExecuteContext(ctx)
	if execErr == nil {
		res.ExitCode = ExitSuccess
		return res, nil
	}
	if !started {
		var invErr *InvocationError
		if !errors.As(execErr, &invErr) {
			execErr = invalidInvocationf("%v", execErr)
		}
	}
	res.ExitCode = ExitCode(execErr)
	return res, execErr
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lawgraph",
		Short: "Compose laws into graphs, detect conflicts and execute them",
		Long: `lawgraph loads law graphs from YAML or JSON files.

Each file declares laws as CEL expressions, graph nodes that run a law or
compose their operands (conjunction, disjunction, implication, sequence,
parallel), the edges between nodes and seeds for source nodes.

Exit codes: 0 success, 1 blocked or failed graph, 2 invalid invocation,
3 configuration or law file error, 4 internal error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Config file (layered over ~/.config/lawgraph/config.yaml and lawgraph.yaml)")
	pf.StringVar(&a.workDir, "workdir", "", "Directory relative paths are resolved against (default: current directory)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: text|json|tint")

	cmd.AddCommand(a.checkCommand(), a.runCommand(), a.versionCommand())
	return cmd
}

// setup loads the configuration, applies the global flag overrides and
// builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if a.workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		a.workDir = wd
	}
	if !filepath.IsAbs(a.workDir) {
		return invalidInvocationf("--workdir must be an absolute path (got %q)", a.workDir)
	}
	a.workDir = filepath.Clean(a.workDir)

	if cmd.Name() == "version" {
		a.cfg = config.DefaultConfig()
		return nil
	}

	configPath := a.configPath
	if configPath != "" {
		p, err := resolveUnderWorkDir(a.workDir, configPath)
		if err != nil {
			return err
		}
		configPath = p
	}
	loader := config.NewLoader(nil)
	loader.WorkDir = a.workDir
	cfg, err := loader.Load(configPath)
	if err != nil {
		return configErrorf("load config: %v", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return invalidInvocationf("%v", err)
	}

	a.cfg = cfg
	a.logger = newLogger(a.streams.Err, cfg.Log)
	a.loader = &lawfile.Loader{}
	return nil
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  noArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lawgraph version %s (law files %s)\n", Version, lawfile.SupportedAPIVersions)
		},
	}
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalidInvocationf("unexpected arguments: %q", args)
	}
	return nil
}
