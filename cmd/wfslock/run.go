package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/san-kum/wfslock/internal/bench"
	"github.com/san-kum/wfslock/internal/config"
	"github.com/san-kum/wfslock/internal/logging"
	"github.com/san-kum/wfslock/internal/metrics"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/session"
	"github.com/san-kum/wfslock/internal/stabilize"
	"github.com/san-kum/wfslock/internal/storage"
	"github.com/san-kum/wfslock/internal/target"
	"github.com/san-kum/wfslock/internal/viz"
)

const seriesLen = 2000

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	b, err := newBench(cfg)
	if err != nil {
		return err
	}

	console := operator.NewConsole(os.Stdin, os.Stdout)
	collector := metrics.NewCollector(seriesLen, metrics.Defaults(cfg.Controller.Tolerance)...)
	opts := []session.Option{
		session.WithLogger(log),
		session.WithConsole(console),
		session.WithObserver(collector),
		session.WithObserver(stabilize.PrintDerived(console.Writer())),
	}
	var rec *storage.Recorder
	if cfg.RecordDir != "" {
		rec = storage.NewRecorder()
		opts = append(opts, session.WithObserver(rec))
	}

	sess, err := session.New(cfg.SessionConfig(), b.Devices(), target.NewSpecifier(console), operator.Prompt{Console: console}, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("preset", cfg.Preset).Float64("tolerance", cfg.Controller.Tolerance).Msg("session starting")
	start := time.Now()
	runErr := sess.Run(ctx)
	elapsed := time.Since(start)

	stats := sess.Stats()
	fmt.Printf("\ncompleted in %v: %d iterations, %d targets, %d convergences, %d escalations\n",
		elapsed.Round(time.Millisecond), stats.Iterations, stats.Targets, stats.Convergences, stats.Escalations)
	fmt.Println(viz.Summary("metrics", collector.Summary()))
	if plot := viz.Plot(collector.Series(), "derived mode RMS (um)", 0, 0); plot != "" {
		fmt.Println(plot)
	}

	if rec != nil {
		if err := saveRun(log, cfg, stats, collector, rec, runErr); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func newBench(cfg *config.Config) (*bench.Bench, error) {
	params, err := cfg.BenchParams()
	if err != nil {
		return nil, err
	}
	return bench.New(params)
}

func saveRun(log zerolog.Logger, cfg *config.Config, stats session.Stats, c *metrics.Collector, rec *storage.Recorder, runErr error) error {
	st := storage.New(cfg.RecordDir)
	if err := st.Init(); err != nil {
		return err
	}

	results := c.Summary()
	values := make(map[string]float64, len(results))
	for _, r := range results {
		values[r.Name] = r.Value
	}
	meta := storage.RunMetadata{
		Preset:          cfg.Preset,
		Seed:            cfg.Bench.Seed,
		Tolerance:       cfg.Controller.Tolerance,
		EscalationLimit: cfg.Controller.EscalationLimit,
		ResetOnContinue: cfg.Controller.ResetOnContinue,
		Iterations:      stats.Iterations,
		Targets:         stats.Targets,
		Convergences:    stats.Convergences,
		Escalations:     stats.Escalations,
		Outcome:         outcome(runErr),
		Metrics:         values,
	}
	id, err := st.Save(meta, rec.Rows())
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	log.Info().Str("run_id", id).Str("dir", cfg.RecordDir).Msg("run recorded")
	fmt.Printf("run id: %s\n", id)
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "stopped"
	case errors.Is(err, operator.ErrAborted):
		return "aborted"
	default:
		return "failed"
	}
}
