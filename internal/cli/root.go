// Package cli implements the honeycluster command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/melonattacker/honeycluster/internal/cliui"
	"github.com/melonattacker/honeycluster/internal/config"
	"github.com/melonattacker/honeycluster/internal/logging"
	"github.com/melonattacker/honeycluster/internal/pipeline"
	"github.com/melonattacker/honeycluster/internal/vocab"
	"github.com/melonattacker/honeycluster/internal/workspace"
)

const rootLong = `honeycluster turns Cowrie honeypot session dumps into behavioural
feature vectors and clusters them incrementally.

Pipeline:
  original/*.json.gz  --clean-->  cleaned/*.jsonl  --process-->  processed/features.sqlite
  features.sqlite  --cluster-->  artifacts/ (scaler, models) + runs/<run-id>/

Runs against one workspace must not overlap: honeycluster takes no locks.

Environment:
  HONEYCLUSTER_HOME   Workspace directory (default: ~/.honeycluster)
  NO_COLOR            Disable colored output`

const rootExample = `  honeycluster run
  honeycluster cluster --refit
  honeycluster summarize last --view expertise
  honeycluster status --json`

type options struct {
	home     string
	config   string
	logLevel string
	logFile  string
	logJSON  bool
	color    string
	argv     []string
}

// Execute runs the command tree with args (without the program name).
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func NewRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "honeycluster",
		Short:         "Cluster Cowrie honeypot sessions by attacker behaviour",
		Long:          rootLong,
		Example:       rootExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.argv = append([]string{cmd.CommandPath()}, args...)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.home, "home", "", "workspace directory (default: $HONEYCLUSTER_HOME or ~/.honeycluster)")
	pf.StringVar(&o.config, "config", "", "config file (default: <home>/honeycluster.yaml if present)")
	pf.StringVar(&o.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&o.logFile, "log-file", "", "also write JSON logs to this file")
	pf.BoolVar(&o.logJSON, "log-json", false, "write console logs as JSON")
	pf.StringVar(&o.color, "color", "auto", "colorize output: auto|always|never")

	root.AddCommand(
		newCleanCommand(o),
		newProcessCommand(o),
		newClusterCommand(o),
		newAssignCommand(o),
		newRunCommand(o),
		newSummarizeCommand(o),
		newRunsCommand(o),
		newStatusCommand(o),
	)
	return root
}

// env is what every command needs once global flags are resolved.
type env struct {
	ws    workspace.Workspace
	cfg   config.Config
	log   *zap.Logger
	color cliui.Colorizer
	out   io.Writer
	close func()
}

func (o *options) setup(cmd *cobra.Command) (*env, error) {
	mode, err := cliui.ParseColorMode(o.color)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Open(o.home)
	if err != nil {
		return nil, err
	}
	cfgPath, required := strings.TrimSpace(o.config), true
	if cfgPath == "" {
		cfgPath, required = ws.ConfigPath(), false
	}
	cfg, err := config.Load(cfgPath, required)
	if err != nil {
		return nil, err
	}
	log, closeLog, err := logging.New(logging.Options{
		Level:   o.logLevel,
		File:    o.logFile,
		JSON:    o.logJSON,
		Color:   cliui.NewColorizer(mode, false, cmd.ErrOrStderr()).Enabled,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return &env{
		ws:    ws,
		cfg:   cfg,
		log:   log.With(zap.String("cmd", cmd.Name())),
		color: cliui.NewColorizer(mode, false, cmd.OutOrStdout()),
		out:   cmd.OutOrStdout(),
		close: closeLog,
	}, nil
}

func (e *env) pipeline(argv []string) (*pipeline.Pipeline, error) {
	var (
		v   *vocab.Vocabulary
		err error
	)
	if path := strings.TrimSpace(e.cfg.Vocabulary); path != "" {
		v, err = vocab.Load(path)
	} else {
		v, err = vocab.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("vocabulary: %w", err)
	}
	p, err := pipeline.New(e.ws, e.cfg, v, e.log)
	if err != nil {
		return nil, err
	}
	p.Argv = argv
	return p, nil
}
