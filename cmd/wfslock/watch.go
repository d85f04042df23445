package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/wfslock/internal/logging"
	"github.com/san-kum/wfslock/internal/metrics"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/session"
	"github.com/san-kum/wfslock/internal/target"
	"github.com/san-kum/wfslock/internal/viz"
)

const (
	feedSize = 256
	watchLog = "watch.log"
)

func watchSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	targets, err := cfg.WatchTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("preset %q has no watch targets", cfg.Preset)
	}
	decision, err := cfg.WatchEscalation()
	if err != nil {
		return err
	}

	// the monitor owns the terminal, so logs go to a file
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(dataDir, watchLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log, err := logging.New(cfg.LogLevel, logFile)
	if err != nil {
		return err
	}

	b, err := newBench(cfg)
	if err != nil {
		return err
	}
	feed := viz.NewFeed(feedSize)
	collector := metrics.NewCollector(seriesLen, metrics.Defaults(cfg.Controller.Tolerance)...)
	sess, err := session.New(cfg.SessionConfig(), b.Devices(), target.NewScript(targets...), operator.Fixed(decision),
		session.WithLogger(log),
		session.WithObserver(feed),
		session.WithObserver(collector),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := viz.NewMonitor("wfslock "+cfg.Preset, feed, sess.Controller(), cancel,
		cfg.Controller.Tolerance, cfg.Watch.Interval, cfg.Watch.History)
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := sess.Run(ctx)
		p.Send(viz.DoneMsg{Err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return err
	}
	cancel()
	runErr := <-done

	stats := sess.Stats()
	fmt.Printf("%d iterations, %d targets, %d convergences, %d escalations\n",
		stats.Iterations, stats.Targets, stats.Convergences, stats.Escalations)
	fmt.Println(viz.Summary("metrics", collector.Summary()))
	return runErr
}
