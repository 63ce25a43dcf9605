package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Raiff1982/TheAi-sub000/internal/config"
	"github.com/Raiff1982/TheAi-sub000/internal/core"
	"github.com/Raiff1982/TheAi-sub000/internal/graph"
	"github.com/Raiff1982/TheAi-sub000/internal/journal"
	"github.com/Raiff1982/TheAi-sub000/internal/logging"
)

// #region main
type options struct {
	configPath  string
	metricsAddr string
	node        string
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Interactive loop over the state graph and tension engine",
		Long: `Reads one symbolic context per line from stdin and runs a step on the
current node: a tension check that drives the engine, a glyph attempt when
converging, and a reflection cocoon in the journal.

Lines starting with ':' are commands:
  :node ID              switch the current node
  :propagate [DEPTH]    list nodes reachable from the current node
  :collapse             round the current node's state
  :entangle A B         entangle two nodes
  :stats                print the telemetry snapshot as JSON
  :checkpoint [NOTE]    commit the engine identity (needs state.path)
  :restore              load the active identity version
  :quit                 exit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to YAML config")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.node, "node", graph.NodeID(0), "starting node")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Output: os.Stderr})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := core.New(cfg, core.Options{Logger: logger, Registerer: reg})
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		defer srv.Close()
	}
	if cfg.Journal.Watch {
		go func() {
			if err := rt.Journal.Watch(ctx); err != nil {
				logger.Error("journal watch stopped", slog.Any("error", err))
			}
		}()
	}

	if cfg.State.Path != "" {
		if v, err := rt.RestoreLatest(); err == nil {
			fmt.Printf("Restored identity %s (step %d)\n", v.ID, v.Snapshot.Step)
		}
	}

	fmt.Println("Cocoon controller ready.")
	fmt.Printf("  Journal: %s | Nodes: %d | Backend: %s\n", cfg.Journal.Dir, cfg.Graph.NodeCount, rt.Backend.Name())
	fmt.Println("Type a context (or ':quit' to exit):")
	return repl(ctx, rt, opts.node)
}

// #endregion main

// #region repl
func repl(ctx context.Context, rt *core.Runtime, node string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			next, quit := command(rt, node, strings.Fields(line[1:]))
			if quit {
				return nil
			}
			node = next
			continue
		}

		res, err := rt.Step(ctx, node, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("[%s] tension=%.4f xi=%.6f converging=%v", node, res.Report.Tension, res.Report.Xi, res.Report.Converging)
		if res.Glyph != nil {
			fmt.Printf(" glyph=%s", res.Glyph.ID[:12])
		}
		switch {
		case errors.Is(res.PersistErr, journal.ErrJournalBusy):
			fmt.Print(" (journal busy, cocoon skipped)")
		case res.PersistErr != nil:
			fmt.Printf(" (cocoon not saved: %v)", res.PersistErr)
		}
		fmt.Println()
	}
}

// command runs one ':' command and returns the current node.
func command(rt *core.Runtime, node string, args []string) (string, bool) {
	if len(args) == 0 {
		return node, false
	}
	switch args[0] {
	case "quit", "exit":
		return node, true
	case "node":
		if len(args) < 2 {
			fmt.Println("usage: :node ID")
			return node, false
		}
		if _, ok := rt.Graph.Node(args[1]); !ok {
			fmt.Printf("unknown node %s\n", args[1])
			return node, false
		}
		return args[1], false
	case "propagate":
		depth := graph.DefaultDepth
		if len(args) > 1 {
			if d, err := strconv.Atoi(args[1]); err == nil {
				depth = d
			}
		}
		for _, v := range rt.Graph.Propagate(node, depth) {
			fmt.Printf("  %-12s depth=%d\n", v.ID, v.Depth)
		}
	case "collapse":
		if s, ok := rt.Graph.Collapse(node); ok {
			fmt.Printf("  %s -> %v\n", node, s.Map())
		}
	case "entangle":
		if len(args) < 3 {
			fmt.Println("usage: :entangle A B")
			return node, false
		}
		if rt.Graph.Entangle(args[1], args[2]) {
			e, _ := rt.Graph.Entanglement(args[1], args[2])
			fmt.Printf("  coherence=%.4f energy=%.4f\n", e.Coherence, e.Energy)
		} else {
			fmt.Println("  not entangled (unknown node or already entangled)")
		}
	case "stats":
		if err := printJSON(rt.Telemetry()); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "checkpoint":
		v, err := rt.Checkpoint(strings.Join(args[1:], " "))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return node, false
		}
		fmt.Printf("  committed %s\n", v.ID)
	case "restore":
		v, err := rt.RestoreLatest()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return node, false
		}
		fmt.Printf("  restored %s (step %d)\n", v.ID, v.Snapshot.Step)
	default:
		fmt.Printf("unknown command :%s\n", args[0])
	}
	return node, false
}

// #endregion repl

// #region helpers
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion helpers
