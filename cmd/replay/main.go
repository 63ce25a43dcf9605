package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Raiff1982/TheAi-sub000/internal/replay"
	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

// #region main
type options struct {
	backend string
	jsonOut bool
	steps   bool
}

var errMismatch = errors.New("fixture expectations not met")

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "replay FIXTURE...",
		Short: "Replay context fixtures through a fresh tension engine",
		Long: `Feeds each fixture's contexts through a seeded engine, summarises
convergence, glyphs and attractors, and checks the fixture's expectations.

Exit codes:
  0 - every fixture matched
  1 - a fixture did not match, or a command error`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return run(opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.backend, "backend", vecmath.PureName, "vector backend (pure|gonum)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&opts.steps, "steps", false, "print every step")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region fixture-mode
type report struct {
	Fixture string          `json:"fixture"`
	Summary replay.Summary  `json:"summary"`
	Steps   []replay.Result `json:"steps,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func run(opts *options, paths []string) error {
	backend, err := vecmath.NewBackend(opts.backend)
	if err != nil {
		return err
	}

	reports := make([]report, 0, len(paths))
	failed := false
	for _, path := range paths {
		f, err := replay.LoadFixture(path)
		if err != nil {
			return err
		}
		r, err := replay.Replay(f, backend)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		rep := report{Fixture: path, Summary: replay.Summarize(r)}
		if opts.steps {
			rep.Steps = r.Results
		}
		if err := replay.Check(f.Expect, rep.Summary); err != nil {
			rep.Error = err.Error()
			failed = true
		}
		reports = append(reports, rep)
	}

	if opts.jsonOut {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		fmt.Println(string(data))
	} else {
		printReports(reports)
	}
	if failed {
		return errMismatch
	}
	return nil
}

func printReports(reports []report) {
	for _, rep := range reports {
		status := "PASS"
		if rep.Error != "" {
			status = "FAIL"
		}
		s := rep.Summary
		fmt.Printf("%s  %s\n", status, rep.Fixture)
		fmt.Printf("  steps=%d converging=%d first=%d glyphs=%d attractors=%d\n",
			s.Steps, s.ConvergingSteps, s.FirstConvergence, s.Glyphs, s.Attractors)
		for _, st := range rep.Steps {
			fmt.Printf("    %4d  xi=%.6f  conv=%-5v  %s\n", st.Step, st.Xi, st.Converging, st.GlyphID)
		}
		if rep.Error != "" {
			fmt.Printf("  %s\n", rep.Error)
		}
	}
}

// #endregion fixture-mode
