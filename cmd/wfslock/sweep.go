package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/wfslock/internal/logging"
	"github.com/san-kum/wfslock/internal/metrics"
	"github.com/san-kum/wfslock/internal/sweep"
	"github.com/san-kum/wfslock/internal/viz"
)

func runSweep(cmd *cobra.Command, args []string) error {
	if len(sweepParams) == 0 {
		return fmt.Errorf("at least one --param is required (available: %v)", sweep.Params())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(sweepParams))
	ranges := make([][]float64, 0, len(sweepParams))
	for _, p := range sweepParams {
		name, values, err := sweep.ParseParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	sw, err := sweep.New(cfg, names, ranges,
		sweep.WithSeeds(sweepSeeds),
		sweep.WithMaxIterations(sweepMaxIter),
		sweep.WithWorkers(sweepWorkers),
		sweep.WithLogger(log),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	points := len(sw.Points())
	fmt.Printf("sweeping %d points x %d seeds on preset %s...\n", points, sweepSeeds, cfg.Preset)
	start := time.Now()
	results, err := sw.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start).Round(time.Millisecond))

	sums := sweep.Summarize(results)
	for _, s := range sums {
		fmt.Printf("%s  locked %.0f%%\n", s.Point, 100*s.LockRate)
		if len(s.Mean) == 0 {
			continue
		}
		names := make([]string, 0, len(s.Mean))
		for name := range s.Mean {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("    %-16s %.4f\n", name, s.Mean[name])
		}
	}

	best, ok := sweep.Best(sums, sweepMetric)
	if !ok {
		fmt.Println(viz.Notice("no point locked on every run"))
		return nil
	}
	means := make([]metrics.Result, 0, len(best.Mean))
	for name, v := range best.Mean {
		means = append(means, metrics.Result{Name: name, Value: v})
	}
	sort.Slice(means, func(i, j int) bool { return means[i].Name < means[j].Name })
	fmt.Println()
	fmt.Println(viz.Summary("best by "+sweepMetric+": "+best.Point.String(), means))
	return nil
}
