// Package trackgym is the public entry point for running, inspecting and
// exporting track environment evaluations.
package trackgym

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"trackgym/internal/config"
	"trackgym/internal/model"
	"trackgym/internal/nn"
	"trackgym/internal/path"
	"trackgym/internal/platform"
	"trackgym/internal/policy"
	"trackgym/internal/scape"
	"trackgym/internal/stats"
	"trackgym/internal/storage"
	"trackgym/internal/track"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "trackgym.db"
)

const (
	RunsSourceStore = "store"
	RunsSourceIndex = "index"
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
}

type Client struct {
	store storage.Store
	polis *platform.Polis

	runsDir    string
	exportsDir string
}

type RunRequest struct {
	Scape      string
	Mode       string
	Policy     string
	Seed       int64
	Episodes   int
	Parameters config.Parameters
	// UseIO drives the policy through the registered sensor and actuator
	// instead of calling it directly.
	UseIO bool
	// Plot also renders the first episode's track next to the artifacts.
	Plot      bool
	OnEpisode func(scape.EpisodeResult)

	// Network loads a saved network for the neural policy.
	Network string
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Fitness      float64
	Summary      stats.Summary
	Episodes     []model.EpisodeRecord
}

// RunsRequest selects runs to list. Source "index" reads the run index
// under the runs directory instead of the store, which is the only record
// that survives between processes when the store is in memory.
type RunsRequest struct {
	Limit  int
	Source string
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Scape        string
	Mode         string
	Policy       string
	Seed         int64
	Episodes     int
	Fitness      float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type TrackRequest struct {
	Seed       int64
	Parameters config.Parameters
	Out        string
}

type TrackSummary struct {
	Anchors int
	Length  float64
	Closed  bool
	File    string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Run evaluates a built-in policy, persists the run and writes its
// artifacts.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Policy == "" {
		req.Policy = "follow"
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	cfg, err := config.Load(req.Parameters)
	if err != nil {
		return RunSummary{}, err
	}
	var agent scape.StepAgent
	if req.Network != "" {
		if req.Policy != "neural" {
			return RunSummary{}, fmt.Errorf("a network file needs the neural policy, got %s", req.Policy)
		}
		agent, err = loadNeural(cfg, req.Network)
	} else {
		agent, err = policy.New(req.Policy, cfg, req.Seed)
	}
	if err != nil {
		return RunSummary{}, err
	}
	var evaluated scape.Agent = agent
	if req.UseIO {
		ticker, err := policy.NewTicker(agent)
		if err != nil {
			return RunSummary{}, err
		}
		evaluated = ticker
	}

	result, err := p.RunEvaluation(ctx, platform.EvaluationConfig{
		Scape:      req.Scape,
		Mode:       req.Mode,
		Policy:     req.Policy,
		Agent:      evaluated,
		Parameters: req.Parameters,
		Episodes:   req.Episodes,
		Seed:       req.Seed,
		OnEpisode:  req.OnEpisode,
	})
	if err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, result.Run, result.Episodes)
	if err != nil {
		return RunSummary{}, err
	}
	if len(result.Episodes) > 0 {
		title := fmt.Sprintf("%s returns (%s)", req.Policy, result.Run.Mode)
		if err := stats.WriteRewardChart(filepath.Join(runDir, "rewards.html"), title, result.Episodes); err != nil {
			return RunSummary{}, err
		}
	}
	if req.Plot && len(result.Episodes) > 0 {
		if _, err := plotTrack(cfg, result.Episodes[0].Seed, filepath.Join(runDir, "track.png")); err != nil {
			return RunSummary{}, err
		}
	}

	return RunSummary{
		RunID:        result.Run.ID,
		ArtifactsDir: filepath.Clean(runDir),
		Fitness:      result.Run.Fitness,
		Summary:      stats.Summarize(result.Episodes),
		Episodes:     result.Episodes,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	switch req.Source {
	case "", RunsSourceStore:
	case RunsSourceIndex:
		return c.indexedRuns(req.Limit)
	default:
		return nil, fmt.Errorf("unsupported runs source: %s", req.Source)
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return nil, err
	}
	runs, err := p.Runs(ctx, req.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:        run.ID,
			CreatedAtUTC: stats.ConfigFromRun(run).CreatedAtUTC,
			Scape:        run.Scape,
			Mode:         run.Mode,
			Policy:       run.Policy,
			Seed:         run.Seed,
			Episodes:     run.Episodes,
			Fitness:      run.Fitness,
		})
	}
	return out, nil
}

func (c *Client) indexedRuns(limit int) ([]RunItem, error) {
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]RunItem, 0, len(entries))
	for _, entry := range entries {
		out = append(out, RunItem{
			RunID:        entry.RunID,
			CreatedAtUTC: entry.CreatedAtUTC,
			Scape:        entry.Scape,
			Mode:         entry.Mode,
			Policy:       entry.Policy,
			Seed:         entry.Seed,
			Episodes:     entry.Episodes,
			Fitness:      entry.ReturnMean,
		})
	}
	return out, nil
}

// Episodes returns the stored episodes of a run.
func (c *Client) Episodes(ctx context.Context, runID string) ([]model.EpisodeRecord, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return nil, err
	}
	_, episodes, ok, err := p.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return episodes, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Track renders the layout an episode seeded with req.Seed would use.
func (c *Client) Track(_ context.Context, req TrackRequest) (TrackSummary, error) {
	if req.Out == "" {
		return TrackSummary{}, errors.New("output file is required")
	}
	cfg, err := config.Load(req.Parameters)
	if err != nil {
		return TrackSummary{}, err
	}
	return plotTrack(cfg, req.Seed, req.Out)
}

func plotTrack(cfg config.Config, seed int64, file string) (TrackSummary, error) {
	layout, err := track.FromConfig(cfg.Track).Generate(rand.New(rand.NewSource(seed)))
	if err != nil {
		return TrackSummary{}, err
	}
	curve, err := path.Build(layout, path.Options{})
	if err != nil {
		return TrackSummary{}, err
	}
	if err := stats.WriteTrackPlot(file, layout, curve); err != nil {
		return TrackSummary{}, err
	}
	return TrackSummary{
		Anchors: len(layout.Anchors),
		Length:  curve.Length(),
		Closed:  layout.Closed,
		File:    filepath.Clean(file),
	}, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func loadNeural(cfg config.Config, file string) (*policy.Neural, error) {
	net, err := nn.Load(file)
	if err != nil {
		return nil, err
	}
	return policy.NewNeural(cfg, net)
}
