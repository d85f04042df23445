package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/san-kum/wfslock/internal/config"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/sweep"
	"github.com/san-kum/wfslock/internal/viz"
)

var (
	configFile string
	preset     string
	logLevel   string
	dataDir    string

	tolerance       float64
	limit           int
	resetOnContinue bool
	characterize    bool
	recordDir       string
	seed            int64
	noise           float64

	plotWidth  int
	plotHeight int
	savePath   string
	svgPath    string

	sweepParams  []string
	sweepSeeds   int
	sweepMaxIter int
	sweepWorkers int
	sweepMetric  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "wfslock",
		Short:         "closed-loop wavefront stabilization on a deformable mirror",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "bench preset")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".wfslock", "recorded runs directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run an interactive session on the simulated bench",
		Args:  cobra.NoArgs,
		RunE:  runSession,
	}
	runCmd.Flags().Float64Var(&tolerance, "tolerance", 0.01, "stability band in um")
	runCmd.Flags().IntVar(&limit, "limit", 10, "unstable iterations tolerated before escalation")
	runCmd.Flags().BoolVar(&resetOnContinue, "reset-on-continue", true, "reset the unstable counter when the operator continues")
	runCmd.Flags().BoolVar(&characterize, "characterize", true, "measure mirror parameters before closing the loop")
	runCmd.Flags().StringVar(&recordDir, "record", "", "record the run into this directory")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "bench random seed")
	runCmd.Flags().Float64Var(&noise, "noise", 0, "bench fit noise in um")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "watch the loop lock onto scripted targets",
		Args:  cobra.NoArgs,
		RunE:  watchSession,
	}
	watchCmd.Flags().Float64Var(&tolerance, "tolerance", 0.01, "stability band in um")
	watchCmd.Flags().IntVar(&limit, "limit", 10, "unstable iterations tolerated before escalation")
	watchCmd.Flags().Int64Var(&seed, "seed", 0, "bench random seed")
	watchCmd.Flags().Float64Var(&noise, "noise", 0, "bench fit noise in um")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list bench presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}
	presetsCmd.Flags().StringVar(&savePath, "save", "", "write the resolved config to this file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot residual RMS of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotWidth, "width", 60, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 10, "plot height")
	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the plot as SVG to this file")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a recorded run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run unattended sessions over a parameter grid",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringArrayVar(&sweepParams, "param", nil, "swept parameter as name=v1,v2,... (repeatable)")
	sweepCmd.Flags().IntVar(&sweepSeeds, "seeds", 1, "runs per grid point, with consecutive seeds")
	sweepCmd.Flags().IntVar(&sweepMaxIter, "max-iter", sweep.DefaultMaxIterations, "iterations a target may take to converge")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", runtime.NumCPU(), "parallel runs")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "lock_iterations", "metric to minimise when picking the best point")
	sweepCmd.Flags().Int64Var(&seed, "seed", 0, "first bench seed")
	sweepCmd.Flags().Float64Var(&noise, "noise", 0, "bench fit noise in um")

	rootCmd.AddCommand(runCmd, watchCmd, sweepCmd, presetsCmd, listCmd, plotCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, operator.ErrAborted) {
			fmt.Fprintln(os.Stderr, viz.Notice("session aborted"))
		} else {
			fmt.Fprintln(os.Stderr, viz.Error(err))
		}
		os.Exit(1)
	}
}

// loadConfig resolves the preset, config file, environment and command
// line, in that order of precedence from lowest to highest.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Resolve(configFile, preset)
	if err != nil {
		if errors.Is(err, config.ErrUnknownPreset) {
			return nil, fmt.Errorf("%w (available: %v)", err, config.ListPresets())
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("tolerance") {
		cfg.Controller.Tolerance = tolerance
	}
	if flags.Changed("limit") {
		cfg.Controller.EscalationLimit = limit
	}
	if flags.Changed("reset-on-continue") {
		cfg.Controller.ResetOnContinue = resetOnContinue
	}
	if flags.Changed("characterize") {
		cfg.Session.Characterize = characterize
	}
	if flags.Changed("record") {
		cfg.RecordDir = recordDir
	}
	if flags.Changed("seed") {
		cfg.Bench.Seed = seed
	}
	if flags.Changed("noise") {
		cfg.Bench.Noise = noise
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
