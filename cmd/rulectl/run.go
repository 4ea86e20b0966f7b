package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rulekit/engine"
	"rulekit/internal/config"
	"rulekit/internal/scenario"
	"rulekit/internal/watch"
)

var (
	scenarioPath string
	maxFires     int
	traceLevel   int
	watchMode    bool
)

func init() {
	runCmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario yaml file (overrides config)")
	runCmd.Flags().IntVar(&maxFires, "max-fires", -1, "fire limit, 0 for quiescence (overrides config)")
	runCmd.Flags().IntVar(&traceLevel, "trace", -1, "trace level 0..3 (overrides config)")
	runCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "reload and re-run when the scenario file changes")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Assert a scenario and drain the agenda",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if scenarioPath != "" {
			cfg.Scenario = scenarioPath
		}
		if maxFires >= 0 {
			cfg.Run.MaxFires = maxFires
		}
		if traceLevel >= 0 {
			cfg.Trace = traceLevel
		}
		if cfg.Scenario == "" {
			return fmt.Errorf("no scenario file: pass --scenario or set it in %s", configPath)
		}

		e := engine.New(
			engine.WithTracer(engine.NewZapTracer(logger)),
			engine.WithTraceLevel(engine.TraceLevel(cfg.Trace)),
		)
		if err := installDiagnosisRules(e); err != nil {
			return err
		}

		if err := loadAndRun(e, cfg); err != nil {
			return err
		}
		if !watchMode {
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := watch.New(cfg.Scenario, logger, func(path string) {
			if err := loadAndRun(e, cfg); err != nil {
				logger.Error("reload failed", zap.String("path", path), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()

		logger.Info("watching for scenario changes, ctrl-c to exit")
		<-ctx.Done()
		return nil
	},
}

// loadAndRun resets working memory, asserts the scenario, and drains the
// agenda, printing per-rule statistics when done.
func loadAndRun(e *engine.Engine, cfg config.Config) error {
	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}
	if err := e.Reset(); err != nil {
		return err
	}
	facts, err := sc.Apply(e)
	if err != nil {
		return err
	}
	logger.Info("scenario loaded",
		zap.String("path", cfg.Scenario),
		zap.Int("facts", len(facts)))

	policy := engine.HaltOnError
	if cfg.Run.ContinueOnError {
		policy = engine.ContinueOnError
	}
	res, err := e.Run(context.Background(), engine.RunOptions{
		MaxFires: cfg.Run.MaxFires,
		Yield:    cfg.Run.Yield,
		OnError:  policy,
	})
	if err != nil {
		return err
	}
	logger.Info("run complete",
		zap.Int("fires", res.Fires),
		zap.Int("remaining", res.Remaining),
		zap.Duration("took", res.Duration))

	printStats(e)
	return nil
}

func printStats(e *engine.Engine) {
	fmt.Printf("%-12s %12s %10s %12s %8s\n", "rule", "max bindings", "tests", "activations", "fires")
	for _, r := range e.Rules() {
		s := r.Stats()
		fmt.Printf("%-12s %12d %10d %12d %8d\n",
			r.Name(), s.MaxBindings, s.Tests, s.Activations, s.Fires)
	}
}
