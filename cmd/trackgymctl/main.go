package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trackgym/internal/logging"
	"trackgym/internal/policy"
	"trackgym/internal/scape"
	"trackgym/internal/storage"
	"trackgym/pkg/trackgym"
)

type rootOptions struct {
	configPath string
	envFile    string
	sets       []string
	storeKind  string
	dbPath     string
	runsDir    string
	exportsDir string
	logLevel   string
	logDev     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "trackgymctl",
		Short:         "Run, serve and inspect the procedural track environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			logger, err := logging.New(opts.logLevel, opts.logDev)
			if err != nil {
				return err
			}
			logging.SetLogger(logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.L().Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "JSON file of environment parameters")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with TRACKGYM_ parameters; skipped when missing")
	flags.StringArrayVar(&opts.sets, "set", nil, "parameter override key=value (repeatable)")
	flags.StringVar(&opts.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", "trackgym.db", "sqlite database path")
	flags.StringVar(&opts.runsDir, "runs-dir", "runs", "run artifacts directory")
	flags.StringVar(&opts.exportsDir, "exports-dir", "exports", "export output directory")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	flags.BoolVar(&opts.logDev, "log-dev", false, "human-readable console logs")

	root.AddCommand(
		newRunCmd(opts),
		newRunsCmd(opts),
		newExportCmd(opts),
		newTrackCmd(opts),
		newServeCmd(opts),
		newParamsCmd(opts),
		newPoliciesCmd(),
	)
	return root
}

func (o *rootOptions) client() (*trackgym.Client, error) {
	return trackgym.New(trackgym.Options{
		StoreKind:  o.storeKind,
		DBPath:     o.dbPath,
		RunsDir:    o.runsDir,
		ExportsDir: o.exportsDir,
	})
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		policyName string
		mode       string
		seed       int64
		episodes   int
		useIO      bool
		plot       bool
		network    string
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a built-in policy and store the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.parameters()
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			out := cmd.OutOrStdout()
			summary, err := client.Run(cmd.Context(), trackgym.RunRequest{
				Mode:       mode,
				Policy:     policyName,
				Seed:       seed,
				Episodes:   episodes,
				Parameters: params,
				UseIO:      useIO,
				Plot:       plot,
				Network:    network,
				OnEpisode: func(r scape.EpisodeResult) {
					if jsonOut {
						return
					}
					fmt.Fprintf(out, "episode=%d seed=%d status=%s steps=%d return=%.6f progress=%.4f accidents=%d\n",
						r.Index, r.Seed, r.Status, r.Steps, r.Return, r.Progress, len(r.Accidents))
				},
			})
			if err != nil {
				return err
			}
			logging.L().Info("run complete", zap.String("run_id", summary.RunID), zap.Float64("fitness", summary.Fitness))

			if jsonOut {
				return writeJSON(out, summary)
			}
			s := summary.Summary
			fmt.Fprintf(out, "run_id=%s fitness=%.6f return_std=%.6f failures=%d successes=%d truncations=%d artifacts=%s\n",
				summary.RunID, summary.Fitness, s.ReturnStd, s.Failures, s.Successes, s.Truncations, summary.ArtifactsDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&policyName, "policy", "follow", "policy name (see policies)")
	cmd.Flags().StringVar(&mode, "mode", "gt", "evaluation mode: gt|validation|test|benchmark")
	cmd.Flags().Int64Var(&seed, "seed", 1, "base episode seed")
	cmd.Flags().IntVar(&episodes, "episodes", 0, "episode count; 0 uses the mode default")
	cmd.Flags().BoolVar(&useIO, "io", false, "drive the policy through the registered sensor and actuator")
	cmd.Flags().BoolVar(&plot, "plot", false, "also render the first episode's track")
	cmd.Flags().StringVar(&network, "network", "", "saved network for the neural policy")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the run summary as JSON")
	return cmd
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var (
		limit   int
		source  string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			runs, err := client.Runs(cmd.Context(), trackgym.RunsRequest{Limit: limit, Source: source})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "run_id=%s created_at=%s scape=%s mode=%s policy=%s seed=%d episodes=%d fitness=%.6f\n",
					r.RunID, r.CreatedAtUTC, r.Scape, r.Mode, r.Policy, r.Seed, r.Episodes, r.Fitness)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().StringVar(&source, "source", trackgym.RunsSourceIndex, "where to list runs from: index|store")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runID != "" && latest {
				return errors.New("use either --run-id or --latest, not both")
			}
			if runID == "" && !latest {
				return errors.New("export requires --run-id or --latest")
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			exported, err := client.Export(cmd.Context(), trackgym.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run from the run index")
	cmd.Flags().StringVar(&outDir, "out", "", "export output directory (default --exports-dir)")
	return cmd
}

func newTrackCmd(opts *rootOptions) *cobra.Command {
	var (
		seed int64
		out  string
	)
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Render the track generated for a seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.parameters()
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			summary, err := client.Track(cmd.Context(), trackgym.TrackRequest{Seed: seed, Parameters: params, Out: out})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "anchors=%d closed=%t length=%.4f file=%s\n",
				summary.Anchors, summary.Closed, summary.Length, summary.File)
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 1, "track seed")
	cmd.Flags().StringVar(&out, "out", "track.png", "output image (png, svg or pdf)")
	return cmd
}

func newParamsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the effective environment parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.parameters()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), params)
		},
	}
}

func newPoliciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List built-in policies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range policy.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
