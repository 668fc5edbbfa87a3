package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/engine"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/execctx"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/metastore"
	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/pipeline"
	"github.com/kbukum/capsule/workflow"
)

type pipelineFlags struct {
	sets      []string
	pipelines []string
	label     string
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.sets, "set", "s", nil, "parameter value as name=value or node.plug=value (values are YAML)")
	cmd.Flags().StringSliceVarP(&f.pipelines, "pipelines", "p", nil, "directories of sub-pipeline schemas")
	cmd.Flags().StringVar(&f.label, "label", "", "execution label (default: the pipeline definition)")
}

// compile loads the schema at path, applies the values and compiles it.
func (f *pipelineFlags) compile(cfg *config.Config, log *logger.Logger, path string) (*workflow.Workflow, error) {
	reg := pipeline.NewRegistry()
	for _, dir := range f.pipelines {
		if err := reg.RegisterDir(dir); err != nil {
			return nil, err
		}
	}
	schema, err := pipeline.LoadSchema(path)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.FromSchema(schema, pipeline.WithRegistry(reg), pipeline.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := applySets(p, f.sets); err != nil {
		return nil, err
	}

	opts := []workflow.Option{
		workflow.WithScratchRoot(cfg.Execution.ScratchRoot),
		workflow.WithLogger(log),
	}
	if f.label != "" {
		opts = append(opts, workflow.WithLabel(f.label))
	}
	if cfg.Execution.DirectoryJobs {
		opts = append(opts, workflow.WithDirectoryJobs())
	}
	if len(cfg.Context.TransferRoots) > 0 {
		opts = append(opts, workflow.WithTransferRoots(cfg.Context.TransferRoots...))
	}
	return workflow.Compile(p, opts...)
}

// applySets assigns --set values. Names with a dot address a node plug.
func applySets(p *pipeline.Pipeline, sets []string) error {
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return errors.InvalidInput("set", fmt.Sprintf("%q is not name=value", s))
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return errors.InvalidInput("set", fmt.Sprintf("value of %s: %v", name, err))
		}
		if value == nil {
			value = raw
		}
		var err error
		if node, plug, nested := cutLast(name, "."); nested {
			err = p.SetNodeValue(node, plug, value)
		} else {
			err = p.Set(name, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

func newCompileCommand(g *globalFlags) *cobra.Command {
	var f pipelineFlags
	var format, output string
	cmd := &cobra.Command{
		Use:   "compile PIPELINE.yaml",
		Short: "Compile a pipeline into a workflow without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			wf, err := f.compile(cfg, log, args[0])
			if err != nil {
				return err
			}
			data, err := wf.Encode(workflow.Format(format))
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", string(workflow.FormatJSON), "output format: json or msgpack")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newRunCommand(g *globalFlags) *cobra.Command {
	var f pipelineFlags
	cmd := &cobra.Command{
		Use:   "run PIPELINE.yaml",
		Short: "Compile a pipeline and run it with the local engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load(config.WithFlags(cmd.Flags(), map[string]string{
				"execution.workers": "workers",
				"execution.timeout": "timeout",
			}))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			wf, err := f.compile(cfg, log, args[0])
			if err != nil {
				return err
			}
			report, err := execute(ctx, cfg, log, wf)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report)
			if report.Status != workflow.StatusDone {
				return fmt.Errorf("execution %s %s", report.ExecutionID, report.Status)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().Duration("timeout", 0, "workflow timeout (overrides execution.timeout)")
	cmd.Flags().IntP("workers", "j", 0, "parallel jobs (overrides execution.workers)")
	return cmd
}

// execute runs wf inside the configured execution context, recording it
// in the metastore.
func execute(ctx context.Context, cfg *config.Config, log *logger.Logger, wf *workflow.Workflow) (*engine.Report, error) {
	store, err := metastore.New(cfg.Metastore)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	opts := []engine.Option{engine.WithStore(store), engine.WithLogger(log)}
	shutdown, metrics, err := telemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer shutdown()
	if metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics))
	}

	scope, err := execctx.FromConfig(cfg.Context).Enter()
	if err != nil {
		return nil, err
	}
	defer scope.Exit()

	return engine.FromConfig(cfg, opts...).Submit(ctx, wf)
}

// telemetry installs the OTLP tracer and meter providers when tracing is
// enabled.
func telemetry(ctx context.Context, cfg *config.Config) (func(), *observability.Metrics, error) {
	if !cfg.Tracing.Enabled {
		return func() {}, nil, nil
	}
	tp, err := observability.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, nil, err
	}
	mc := observability.MeterConfigFrom(cfg.Tracing)
	mp, err := observability.InitMeter(ctx, &mc)
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	metrics, err := observability.NewMetrics(observability.Meter("capsule"))
	if err != nil {
		return nil, nil, err
	}
	return func() {
		flush, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = mp.Shutdown(flush)
		_ = tp.Shutdown(flush)
	}, metrics, nil
}
