package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeteolabs/zeteo/internal/backend"
	"github.com/zeteolabs/zeteo/internal/cache"
	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/explorer"
	"github.com/zeteolabs/zeteo/internal/mcp"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
	"github.com/zeteolabs/zeteo/internal/retry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zeteo",
		Short: "Zeteo - unified log exploration across search backends",
		Long: `Zeteo queries Elasticsearch, OpenObserve and Kibana through one
query model, with cached results, retries and live tailing.

Run 'zeteo search' to query a backend.
Run 'zeteo --help' for available commands.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		searchCmd(),
		streamCmd(),
		exportCmd(),
		aggregateCmd(),
		servicesCmd(),
		toolsCmd(),
		healthCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session wires the explorer from configuration for one command run.
type session struct {
	cfg *config.Config
	ex  *explorer.Explorer
	log *logger.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log := logger.New(level, cfg.Log.Format)

	backends, err := backend.NewAll(cfg.Backends, log)
	if err != nil {
		return nil, err
	}

	entries, err := cache.NewEntries(cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	ex := explorer.New(explorer.Options{
		Backends: backends,
		Cache:    entries,
		Policy:   retry.FromConfig(cfg.Retry),
		Query:    cfg.Query,
		Logger:   log,
	})

	return &session{cfg: cfg, ex: ex, log: log}, nil
}

func (s *session) close() {
	if err := s.ex.Close(); err != nil {
		s.log.WithError(err).Warn("closing explorer")
	}
}

// buildQuery assembles the query and filter from the shared search flags.
func buildQuery(cmd *cobra.Command, args []string) (model.LogQuery, model.LogFilter, error) {
	text := "*"
	if len(args) > 0 {
		text = args[0]
	}

	level, _ := cmd.Flags().GetString("level")
	service, _ := cmd.Flags().GetString("service")
	contains, _ := cmd.Flags().GetString("contains")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	max, _ := cmd.Flags().GetInt("max")

	q := model.LogQuery{Text: text, Level: level, Service: service, MaxResults: max}

	now := time.Now()
	if since != "" {
		t, err := model.ParseTime(since, now)
		if err != nil {
			return q, model.LogFilter{}, err
		}
		q.StartTime = &t
	}
	if until != "" {
		t, err := model.ParseTime(until, now)
		if err != nil {
			return q, model.LogFilter{}, err
		}
		q.EndTime = &t
	}

	return q, model.LogFilter{Substring: contains}, nil
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("backend", "b", "", "backend id from the config file")
	cmd.Flags().Bool("all", false, "query every configured backend")
	cmd.Flags().StringP("level", "l", "", "minimum log level filter (exact match)")
	cmd.Flags().StringP("service", "s", "", "service name filter")
	cmd.Flags().String("contains", "", "substring the message must contain")
	cmd.Flags().String("since", "", "start of the time range (RFC3339 or relative like 15m)")
	cmd.Flags().String("until", "", "end of the time range")
	cmd.Flags().IntP("max", "n", 0, "maximum number of entries (default 50)")
}

func runSearch(cmd *cobra.Command, s *session, q model.LogQuery, f model.LogFilter) ([]model.LogEntry, error) {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")
	if all {
		return s.ex.SearchAll(ctx, q, f)
	}

	backendID, _ := cmd.Flags().GetString("backend")
	if backendID == "" {
		ids := s.ex.Backends()
		if len(ids) != 1 {
			return nil, fmt.Errorf("--backend is required (configured: %v)", ids)
		}
		backendID = ids[0]
	}
	return s.ex.Search(ctx, backendID, q, f)
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search logs on a backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			q, f, err := buildQuery(cmd, args)
			if err != nil {
				return err
			}

			entries, err := runSearch(cmd, s, q, f)
			if err != nil {
				return err
			}
			return printEntries(cmd, entries)
		},
	}
	addSearchFlags(cmd)
	return cmd
}

func streamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream [query]",
		Short: "Tail logs from a backend until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			q, f, err := buildQuery(cmd, args)
			if err != nil {
				return err
			}

			backendID, _ := cmd.Flags().GetString("backend")
			if backendID == "" {
				ids := s.ex.Backends()
				if len(ids) != 1 {
					return fmt.Errorf("--backend is required (configured: %v)", ids)
				}
				backendID = ids[0]
			}

			interval, _ := cmd.Flags().GetDuration("interval")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return s.ex.Stream(ctx, backendID, q, f, interval, func(e model.LogEntry) error {
				printEntry(cmd.OutOrStdout(), e)
				return nil
			})
		},
	}
	addSearchFlags(cmd)
	cmd.Flags().Duration("interval", 2*time.Second, "poll interval")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [query]",
		Short: "Search and write the results to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			q, f, err := buildQuery(cmd, args)
			if err != nil {
				return err
			}

			entries, err := runSearch(cmd, s, q, f)
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				out = file
			}

			if csvOut, _ := cmd.Flags().GetBool("csv"); csvOut {
				return explorer.ExportCSV(out, entries)
			}
			return explorer.ExportJSON(out, entries)
		},
	}
	addSearchFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "output file, or - for stdout")
	cmd.Flags().Bool("csv", false, "write CSV instead of JSON")
	return cmd
}

func aggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "aggregate [query]",
		Aliases: []string{"stats"},
		Short:   "Summarize matching logs by level and service",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			q, f, err := buildQuery(cmd, args)
			if err != nil {
				return err
			}

			backendID, _ := cmd.Flags().GetString("backend")
			if backendID == "" {
				ids := s.ex.Backends()
				if len(ids) != 1 {
					return fmt.Errorf("--backend is required (configured: %v)", ids)
				}
				backendID = ids[0]
			}

			agg, err := s.ex.Aggregate(cmd.Context(), backendID, q, f)
			if err != nil {
				return err
			}

			if format, _ := cmd.Flags().GetString("format"); format == "json" {
				return printJSON(cmd, agg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total: %d\n", agg.Total)
			if agg.Total > 0 {
				fmt.Fprintf(out, "span:  %s .. %s\n",
					agg.MinTimestamp.Format(time.RFC3339), agg.MaxTimestamp.Format(time.RFC3339))
			}
			fmt.Fprintln(out, "by level:")
			for level, n := range agg.ByLevel {
				fmt.Fprintf(out, "  %-6s %d\n", level, n)
			}
			fmt.Fprintln(out, "by service:")
			for service, n := range agg.ByService {
				fmt.Fprintf(out, "  %-20s %d\n", service, n)
			}
			return nil
		},
	}
	addSearchFlags(cmd)
	return cmd
}

func servicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "List the services emitting logs in the query window",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			q, _, err := buildQuery(cmd, nil)
			if err != nil {
				return err
			}

			backendID, _ := cmd.Flags().GetString("backend")
			if backendID == "" {
				ids := s.ex.Backends()
				if len(ids) != 1 {
					return fmt.Errorf("--backend is required (configured: %v)", ids)
				}
				backendID = ids[0]
			}

			services, err := s.ex.ListServices(cmd.Context(), backendID, q)
			if err != nil {
				return err
			}

			if format, _ := cmd.Flags().GetString("format"); format == "json" {
				return printJSON(cmd, services)
			}
			for _, svc := range services {
				fmt.Fprintln(cmd.OutOrStdout(), svc)
			}
			return nil
		},
	}
	addSearchFlags(cmd)
	return cmd
}

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of a configured MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if verbose {
				level = "debug"
			}
			log := logger.New(level, cfg.Log.Format)

			name, _ := cmd.Flags().GetString("server")
			serverCfg, ok := cfg.MCPServers[name]
			if !ok {
				return fmt.Errorf("unknown mcp server: %s", name)
			}

			client, err := mcp.Spawn(name, serverCfg, log)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := client.Initialize(ctx); err != nil {
				return err
			}
			tools, err := client.ListTools(ctx)
			if err != nil {
				return err
			}

			if format, _ := cmd.Flags().GetString("format"); format == "json" {
				return printJSON(cmd, tools)
			}
			for _, tool := range tools {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", tool.Name, tool.Description)
			}
			return nil
		},
	}
	cmd.Flags().String("server", "", "mcp server name from the config file")
	cmd.MarkFlagRequired("server")
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			results := s.ex.HealthCheck(ctx)
			out := cmd.OutOrStdout()

			failed := false
			for _, id := range s.ex.Backends() {
				if err := results[id]; err != nil {
					failed = true
					fmt.Fprintf(out, "%-16s DOWN  %v\n", id, err)
				} else {
					fmt.Fprintf(out, "%-16s OK\n", id)
				}
			}
			if failed {
				return fmt.Errorf("one or more backends are unhealthy")
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zeteo %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

func printEntries(cmd *cobra.Command, entries []model.LogEntry) error {
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return explorer.ExportJSON(cmd.OutOrStdout(), entries)
	}
	for _, e := range entries {
		printEntry(cmd.OutOrStdout(), e)
	}
	return nil
}

func printEntry(w io.Writer, e model.LogEntry) {
	ts := e.Timestamp.UTC().Format(time.RFC3339)
	if e.Service != "" {
		fmt.Fprintf(w, "%s %-5s [%s] %s\n", ts, e.Level, e.Service, e.Message)
		return
	}
	fmt.Fprintf(w, "%s %-5s %s\n", ts, e.Level, e.Message)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
