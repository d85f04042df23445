package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/wfslock/internal/config"
	"github.com/san-kum/wfslock/internal/export"
	"github.com/san-kum/wfslock/internal/storage"
	"github.com/san-kum/wfslock/internal/viz"
)

func listPresets(cmd *cobra.Command, args []string) error {
	fmt.Println("presets:")
	for _, name := range config.ListPresets() {
		fmt.Printf("  %-12s %s\n", name, config.GetPreset(name).Description)
	}
	if savePath == "" {
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Save(savePath, cfg); err != nil {
		return err
	}
	fmt.Printf("config written to %s\n", savePath)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	fmt.Printf("%-32s %-10s %-20s %6s %6s %s\n", "ID", "PRESET", "TIMESTAMP", "ITERS", "LOCKS", "OUTCOME")
	for _, r := range runs {
		fmt.Printf("%-32s %-10s %-20s %6d %6d %s\n",
			r.ID, r.Preset, r.Timestamp.Format("2006-01-02 15:04:05"), r.Iterations, r.Convergences, r.Outcome)
	}
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	rows, err := st.LoadIterations(runID)
	if err != nil {
		return err
	}

	series := storage.Series(rows)
	fmt.Printf("run: %s (%s, tolerance %g um)\n", meta.ID, meta.Preset, meta.Tolerance)
	chart := viz.Plot(series, "derived mode RMS (um)", plotWidth, plotHeight)
	if chart == "" {
		fmt.Println("not enough iterations to plot")
		return nil
	}
	fmt.Println(chart)

	if svgPath == "" {
		return nil
	}
	f, err := os.Create(svgPath)
	if err != nil {
		return err
	}
	defer f.Close()
	// pixels per terminal cell
	if err := export.WriteSeriesSVG(f, series, meta.Tolerance, plotWidth*10, plotHeight*20); err != nil {
		return err
	}
	fmt.Printf("svg written to %s\n", svgPath)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).Export(os.Stdout, args[0])
}
