package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Raiff1982/TheAi-sub000/internal/config"
	"github.com/Raiff1982/TheAi-sub000/internal/journal"
	"github.com/Raiff1982/TheAi-sub000/internal/logging"
	"github.com/Raiff1982/TheAi-sub000/internal/state"
	"github.com/Raiff1982/TheAi-sub000/internal/vecmath"
)

// #region main
type rootOptions struct {
	configPath string
	jsonOut    bool
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "inspect",
		Short:        "Inspect the cocoon journal and identity snapshots",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "output as JSON instead of table")

	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newLatestCommand(opts))
	cmd.AddCommand(newIndexCommand(opts))
	cmd.AddCommand(newArchivedCommand(opts))
	cmd.AddCommand(newRotateCommand(opts))
	cmd.AddCommand(newVersionsCommand(opts))
	cmd.AddCommand(newRollbackCommand(opts))
	return cmd
}

// #endregion main

// #region journal-commands
func openJournal(opts *rootOptions) (*journal.Journal, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		return nil, err
	}
	jc := cfg.JournalConfig()
	jc.Logger = logger
	return journal.Open(jc)
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show hot and cold tier counts and sizes",
		RunE: func(*cobra.Command, []string) error {
			j, err := openJournal(opts)
			if err != nil {
				return err
			}
			st := j.Stats()
			if opts.jsonOut {
				return printJSON(st)
			}
			fmt.Printf("Journal:    %s\n", j.Dir())
			fmt.Printf("Hot:        %d (%d bytes)\n", st.Hot, st.HotBytes)
			fmt.Printf("Cold:       %d (%d bytes)\n", st.Cold, st.ArchiveBytes)
			fmt.Printf("Total:      %d\n", st.Total)
			fmt.Printf("Has state:  %v\n", st.HasState)
			return nil
		},
	}
}

func newLatestCommand(opts *rootOptions) *cobra.Command {
	var n int
	var typeFilter string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the newest hot cocoons",
		RunE: func(*cobra.Command, []string) error {
			j, err := openJournal(opts)
			if err != nil {
				return err
			}
			recs := j.GetLatest(n, typeFilter)
			if opts.jsonOut {
				return printJSON(recs)
			}
			for _, r := range recs {
				data, _ := json.Marshal(r.Data)
				fmt.Printf("%-30s  %-14s  %s\n", r.ID, r.Type, truncate(string(data), 80))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "last", "n", 10, "number of cocoons")
	cmd.Flags().StringVar(&typeFilter, "type", "", "only cocoons of this type")
	return cmd
}

func newIndexCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "List every indexed cocoon, newest first",
		RunE: func(*cobra.Command, []string) error {
			j, err := openJournal(opts)
			if err != nil {
				return err
			}
			idx := j.Index()
			if opts.jsonOut {
				return printJSON(idx)
			}
			fmt.Printf("%-30s  %-14s  %-4s  %8s  %s\n", "ID", "Type", "Tier", "Bytes", "State")
			for _, e := range idx {
				tier := "hot"
				if e.Archived {
					tier = "cold"
				}
				fmt.Printf("%-30s  %-14s  %-4s  %8d  %v\n", e.ID, e.Type, tier, e.Size, e.HasState)
			}
			return nil
		},
	}
}

func newArchivedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archived ID",
		Short: "Print one archived cocoon",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			j, err := openJournal(opts)
			if err != nil {
				return err
			}
			rec, err := j.LoadArchived(args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}

func newRotateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Archive hot cocoons beyond the retention bound",
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := openJournal(opts)
			if err != nil {
				return err
			}
			res, err := j.Rotate(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(res)
			}
			fmt.Printf("archived=%d failed=%d\n", res.Archived, res.Failed)
			return nil
		},
	}
}

// #endregion journal-commands

// #region versions
type versionRow struct {
	VersionID    string  `json:"version_id"`
	ParentID     string  `json:"parent_id,omitempty"`
	Step         int64   `json:"step"`
	Converging   bool    `json:"converging"`
	IdentityNorm float64 `json:"identity_norm"`
	Samples      int     `json:"samples"`
	CreatedAt    string  `json:"created_at"`
}

func newVersionsCommand(opts *rootOptions) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List committed identity versions",
		RunE: func(*cobra.Command, []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			versions, err := store.ListVersions(last)
			if err != nil {
				return err
			}
			rows := make([]versionRow, len(versions))
			for i, v := range versions {
				rows[i] = versionRow{
					VersionID:    v.ID,
					ParentID:     v.ParentID,
					Step:         v.Snapshot.Step,
					Converging:   v.Snapshot.Converging,
					IdentityNorm: norm(v.Snapshot.Identity),
					Samples:      len(v.Snapshot.Tension),
					CreatedAt:    v.CreatedAt.Format("2006-01-02T15:04:05Z"),
				}
			}
			if opts.jsonOut {
				return printJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(os.Stderr, "no versions found")
				return nil
			}
			fmt.Printf("%-36s  %6s  %-5s  %10s  %s\n", "Version", "Step", "Conv", "Norm", "Time")
			for _, r := range rows {
				fmt.Printf("%-36s  %6d  %-5v  %10.4f  %s\n", r.VersionID, r.Step, r.Converging, r.IdentityNorm, r.CreatedAt)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent versions")
	return cmd
}

func newRollbackCommand(opts *rootOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "rollback ID",
		Short: "Make an earlier identity version active again",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			id := args[0]
			if err := store.Rollback(id); err != nil {
				return err
			}
			if err := store.LogProvenance(state.ProvenanceEntry{
				VersionID: id,
				Trigger:   "rollback",
				Note:      note,
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("log rollback: %w", err)
			}
			if opts.jsonOut {
				return printJSON(map[string]string{"active": id})
			}
			fmt.Printf("active version: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "manual rollback", "provenance note")
	return cmd
}

func openStore(opts *rootOptions) (*state.Store, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.State.Path == "" {
		return nil, fmt.Errorf("state.path is not configured (set %s)", config.EnvStateDB)
	}
	store, err := state.NewStore(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return store, nil
}

// #endregion versions

// #region helpers
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func norm(v []float64) float64 {
	return vecmath.Pure{}.Norm(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// #endregion helpers
