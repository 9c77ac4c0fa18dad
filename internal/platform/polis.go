// Package platform owns the store and the registered scapes, and turns
// scape evaluations into persisted run records.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"trackgym/internal/config"
	"trackgym/internal/logging"
	"trackgym/internal/model"
	"trackgym/internal/scape"
	"trackgym/internal/scapeid"
	"trackgym/internal/storage"
)

type Config struct {
	Store storage.Store
	// Scapes are registered at Init in addition to the default track scape.
	Scapes []scape.Scape
	// Now stamps run records. Defaults to time.Now.
	Now func() time.Time
}

type EvaluationConfig struct {
	// RunID is generated when empty.
	RunID      string
	Scape      string
	Mode       string
	Policy     string
	Agent      scape.Agent
	Parameters config.Parameters
	Episodes   int
	Seed       int64
	OnEpisode  func(scape.EpisodeResult)
}

type EvaluationResult struct {
	Run      model.RunRecord
	Episodes []model.EpisodeRecord
	Report   scape.Report
}

type Polis struct {
	store storage.Store
	now   func() time.Time
	log   *zap.Logger

	mu      sync.RWMutex
	scapes  map[string]scape.Scape
	started bool

	config Config
}

func NewPolis(cfg Config) *Polis {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Polis{
		store:  cfg.Store,
		now:    now,
		log:    logging.Named("polis"),
		scapes: make(map[string]scape.Scape),
		config: cfg,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	scapes := map[string]scape.Scape{scapeid.Track: scape.TrackScape{}}
	for i, sc := range p.config.Scapes {
		if sc == nil {
			return fmt.Errorf("scape is nil at index %d", i)
		}
		name := scapeid.Normalize(sc.Name())
		if name == "" {
			return fmt.Errorf("scape name is required at index %d", i)
		}
		scapes[name] = sc
	}

	p.scapes = scapes
	p.started = true
	return nil
}

func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.scapes = make(map[string]scape.Scape)
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) RegisterScape(s scape.Scape) error {
	if s == nil {
		return fmt.Errorf("scape is nil")
	}
	name := scapeid.Normalize(s.Name())
	if name == "" {
		return fmt.Errorf("scape name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	p.scapes[name] = s
	return nil
}

func (p *Polis) GetScape(name string) (scape.Scape, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.scapes[scapeid.Normalize(name)]
	return s, ok
}

func (p *Polis) RegisteredScapes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.scapes))
	for name := range p.scapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunEvaluation runs the named track scape with cfg's parameters and
// persists the run and its episodes.
func (p *Polis) RunEvaluation(ctx context.Context, cfg EvaluationConfig) (EvaluationResult, error) {
	if !p.Started() {
		return EvaluationResult{}, fmt.Errorf("polis is not initialized")
	}
	if cfg.Agent == nil {
		return EvaluationResult{}, fmt.Errorf("agent is required")
	}
	name := cfg.Scape
	if name == "" {
		name = scapeid.Track
	}
	sc, ok := p.GetScape(name)
	if !ok {
		return EvaluationResult{}, fmt.Errorf("scape not registered: %s", name)
	}
	track, ok := sc.(scape.TrackScape)
	if !ok {
		return EvaluationResult{}, fmt.Errorf("scape %s does not produce episode reports", name)
	}
	track.Params = cfg.Parameters.Clone()
	track.Episodes = cfg.Episodes
	track.Seed = cfg.Seed
	track.OnEpisode = cfg.OnEpisode

	report, err := track.Run(ctx, cfg.Agent, cfg.Mode)
	if err != nil {
		return EvaluationResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = model.NewID()
	}
	policy := cfg.Policy
	if policy == "" {
		policy = cfg.Agent.ID()
	}
	run := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		CreatedAt:       p.now().UTC(),
		Scape:           track.Name(),
		Mode:            report.Mode,
		Policy:          policy,
		Seed:            cfg.Seed,
		Episodes:        len(report.Episodes),
		Fitness:         float64(report.Fitness),
		Parameters:      track.Params,
	}
	episodes := toModelEpisodes(runID, report.Episodes)

	if err := p.store.SaveRun(ctx, run); err != nil {
		return EvaluationResult{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := p.store.SaveEpisodes(ctx, runID, episodes); err != nil {
		return EvaluationResult{}, fmt.Errorf("save episodes %s: %w", runID, err)
	}
	p.log.Info("run persisted",
		zap.String("run_id", runID),
		zap.String("mode", run.Mode),
		zap.String("policy", policy),
		zap.Int("episodes", run.Episodes),
		zap.Float64("fitness", run.Fitness),
	)

	return EvaluationResult{Run: run, Episodes: episodes, Report: report}, nil
}

func (p *Polis) Run(ctx context.Context, id string) (model.RunRecord, []model.EpisodeRecord, bool, error) {
	run, ok, err := p.store.GetRun(ctx, id)
	if err != nil || !ok {
		return model.RunRecord{}, nil, ok, err
	}
	episodes, _, err := p.store.GetEpisodes(ctx, id)
	if err != nil {
		return model.RunRecord{}, nil, false, err
	}
	return run, episodes, true, nil
}

func (p *Polis) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	return p.store.ListRuns(ctx, limit)
}

func toModelEpisodes(runID string, results []scape.EpisodeResult) []model.EpisodeRecord {
	out := make([]model.EpisodeRecord, len(results))
	for i, r := range results {
		out[i] = model.EpisodeRecord{
			VersionedRecord: storage.Versioned(),
			ID:              fmt.Sprintf("%s-%03d", runID, r.Index),
			RunID:           runID,
			Index:           r.Index,
			Seed:            r.Seed,
			Return:          r.Return,
			Steps:           r.Steps,
			Elapsed:         r.Elapsed,
			Progress:        r.Progress,
			Status:          r.Status.String(),
			Accidents:       append([]string(nil), r.Accidents...),
		}
	}
	return out
}
