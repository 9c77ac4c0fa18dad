package platform

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"trackgym/internal/config"
	"trackgym/internal/scape"
	"trackgym/internal/storage"
)

type idleAgent struct{}

func (idleAgent) ID() string { return "idle" }

func (idleAgent) RunStep(context.Context, []float64) ([]float64, error) {
	return []float64{0, 0}, nil
}

type customScape struct{}

func (customScape) Name() string { return "scape_custom_sim" }

func (customScape) Evaluate(context.Context, scape.Agent) (scape.Fitness, scape.Trace, error) {
	return 1, scape.Trace{}, nil
}

func newPolis(t *testing.T, scapes ...scape.Scape) (*Polis, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	p := NewPolis(Config{
		Store:  store,
		Scapes: scapes,
		Now:    func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p, store
}

func TestPolisInitRegistersTrackScape(t *testing.T) {
	p, _ := newPolis(t, customScape{})
	if diff := cmp.Diff([]string{"scape-custom-sim", "track"}, p.RegisteredScapes()); diff != "" {
		t.Fatalf("registered scapes mismatch (-want +got):\n%s", diff)
	}
	if _, ok := p.GetScape("RollerBall"); !ok {
		t.Fatal("expected alias lookup to resolve the track scape")
	}

	p.Stop()
	if p.Started() {
		t.Fatal("expected polis to stop")
	}
	if err := p.RegisterScape(customScape{}); err == nil {
		t.Fatal("expected register on stopped polis to fail")
	}
}

func TestPolisRequiresStore(t *testing.T) {
	if err := NewPolis(Config{}).Init(context.Background()); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestRunEvaluationPersistsRunAndEpisodes(t *testing.T) {
	p, store := newPolis(t)
	ctx := context.Background()

	var seen []int
	result, err := p.RunEvaluation(ctx, EvaluationConfig{
		RunID:      "run-1",
		Agent:      idleAgent{},
		Parameters: config.Parameters{config.KeyMaxSteps: 4},
		Episodes:   2,
		Seed:       11,
		OnEpisode:  func(r scape.EpisodeResult) { seen = append(seen, r.Index) },
	})
	if err != nil {
		t.Fatalf("run evaluation: %v", err)
	}
	if result.Run.Policy != "idle" || result.Run.Mode != "gt" || result.Run.Episodes != 2 {
		t.Fatalf("unexpected run record: %+v", result.Run)
	}
	if result.Run.Fitness != -20 {
		t.Fatalf("expected four running penalties, got %f", result.Run.Fitness)
	}
	if diff := cmp.Diff([]int{0, 1}, seen); diff != "" {
		t.Fatalf("episode callback mismatch (-want +got):\n%s", diff)
	}

	stored, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("stored run missing: ok=%t err=%v", ok, err)
	}
	if !stored.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created at %v", stored.CreatedAt)
	}

	run, episodes, ok, err := p.Run(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("load run: ok=%t err=%v", ok, err)
	}
	if run.ID != "run-1" || len(episodes) != 2 {
		t.Fatalf("unexpected loaded run %+v with %d episodes", run, len(episodes))
	}
	if episodes[0].Seed != 11 || episodes[1].Seed != 12 || episodes[1].Status != "truncated" || episodes[1].ID != "run-1-001" {
		t.Fatalf("unexpected episodes: %+v", episodes)
	}

	runs, err := p.Runs(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one listed run, got %d err=%v", len(runs), err)
	}
}

func TestRunEvaluationRejectsUnknownOrNonEpisodicScape(t *testing.T) {
	p, _ := newPolis(t, customScape{})
	ctx := context.Background()

	if _, err := p.RunEvaluation(ctx, EvaluationConfig{Scape: "warehouse", Agent: idleAgent{}}); err == nil {
		t.Fatal("expected unknown scape error")
	}
	if _, err := p.RunEvaluation(ctx, EvaluationConfig{Scape: "scape_custom_sim", Agent: idleAgent{}}); err == nil {
		t.Fatal("expected non-episodic scape error")
	}
	if _, err := p.RunEvaluation(ctx, EvaluationConfig{}); err == nil {
		t.Fatal("expected missing agent error")
	}
}

func TestRunEvaluationGeneratesRunID(t *testing.T) {
	p, _ := newPolis(t)
	result, err := p.RunEvaluation(context.Background(), EvaluationConfig{
		Agent:      idleAgent{},
		Policy:     "idle-policy",
		Parameters: config.Parameters{config.KeyMaxSteps: 1},
		Episodes:   1,
	})
	if err != nil {
		t.Fatalf("run evaluation: %v", err)
	}
	if len(result.Run.ID) != 36 || result.Run.Policy != "idle-policy" {
		t.Fatalf("unexpected generated run: %+v", result.Run)
	}
}
