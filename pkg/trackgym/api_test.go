package trackgym

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"trackgym/internal/config"
	"trackgym/internal/nn"
	"trackgym/internal/policy"
	"trackgym/internal/scape"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:  "memory",
		RunsDir:    filepath.Join(base, "runs"),
		ExportsDir: filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func TestClientRunRunsAndExport(t *testing.T) {
	client, base := newTestClient(t)
	ctx := context.Background()

	var streamed int
	summary, err := client.Run(ctx, RunRequest{
		Policy:     "idle",
		Seed:       42,
		Episodes:   2,
		Parameters: config.Parameters{config.KeyMaxSteps: 10},
		Plot:       true,
		OnEpisode:  func(scape.EpisodeResult) { streamed++ },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" || streamed != 2 || len(summary.Episodes) != 2 {
		t.Fatalf("unexpected summary: %+v streamed=%d", summary, streamed)
	}
	if summary.Fitness != -50 || summary.Summary.Truncations != 2 {
		t.Fatalf("expected two truncated idle episodes, got %+v", summary.Summary)
	}
	for _, file := range []string{"config.json", "episodes.json", "summary.json", "episodes.csv", "rewards.html", "track.png"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].Policy != "idle" {
		t.Fatalf("expected run %s in runs list: %+v", summary.RunID, runs)
	}

	episodes, err := client.Episodes(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if len(episodes) != 2 || episodes[0].Seed != 42 {
		t.Fatalf("unexpected stored episodes: %+v", episodes)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID || filepath.Dir(exported.Directory) != filepath.Join(base, "exports") {
		t.Fatalf("unexpected export: %+v", exported)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "track.png")); err != nil {
		t.Fatalf("expected exported plot: %v", err)
	}
}

func TestClientRunThroughRegisteredIO(t *testing.T) {
	client, _ := newTestClient(t)

	direct, err := client.Run(context.Background(), RunRequest{Policy: "follow", Seed: 3, Episodes: 1, Parameters: config.Parameters{config.KeyMaxSteps: 30}})
	if err != nil {
		t.Fatalf("direct run: %v", err)
	}
	viaIO, err := client.Run(context.Background(), RunRequest{Policy: "follow", Seed: 3, Episodes: 1, Parameters: config.Parameters{config.KeyMaxSteps: 30}, UseIO: true})
	if err != nil {
		t.Fatalf("io run: %v", err)
	}
	if direct.Fitness != viaIO.Fitness {
		t.Fatalf("driving through registered io changed the outcome: %f vs %f", direct.Fitness, viaIO.Fitness)
	}
}

func TestClientRunRejectsBadInput(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Run(ctx, RunRequest{Policy: "teleport"}); err == nil {
		t.Fatal("expected unknown policy error")
	}
	if _, err := client.Run(ctx, RunRequest{Parameters: config.Parameters{config.KeyNumAnchors: 2}}); err == nil {
		t.Fatal("expected configuration error")
	}
	if _, err := client.Run(ctx, RunRequest{Policy: "idle", Mode: "sprint"}); err == nil {
		t.Fatal("expected unsupported mode error")
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export without run id to fail")
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected conflicting export selectors to fail")
	}
	if _, err := client.Episodes(ctx, "missing"); err == nil {
		t.Fatal("expected missing run error")
	}
}

func TestClientTrackPlot(t *testing.T) {
	client, base := newTestClient(t)
	out := filepath.Join(base, "track.png")

	summary, err := client.Track(context.Background(), TrackRequest{Seed: 5, Parameters: config.Parameters{config.KeyNumAnchors: 6}, Out: out})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if summary.Anchors != 6 || !summary.Closed || summary.Length <= 0 {
		t.Fatalf("unexpected track summary: %+v", summary)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read plot: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("expected png output")
	}
}

func TestRunsFromIndexSurvivesNewClient(t *testing.T) {
	dir := t.TempDir()
	opts := Options{StoreKind: "memory", RunsDir: filepath.Join(dir, "runs"), ExportsDir: filepath.Join(dir, "exports")}

	first, err := New(opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	summary, err := first.Run(context.Background(), RunRequest{
		Policy:     "idle",
		Seed:       3,
		Episodes:   1,
		Parameters: config.Parameters{config.KeyMaxSteps: 2},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = first.Close()

	second, err := New(opts)
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	defer second.Close()

	stored, err := second.Runs(context.Background(), RunsRequest{Source: RunsSourceStore})
	if err != nil {
		t.Fatalf("store runs: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("expected fresh memory store to be empty, got %d runs", len(stored))
	}
	indexed, err := second.Runs(context.Background(), RunsRequest{Source: RunsSourceIndex})
	if err != nil {
		t.Fatalf("index runs: %v", err)
	}
	if len(indexed) != 1 || indexed[0].RunID != summary.RunID || indexed[0].Fitness != -10 {
		t.Fatalf("unexpected indexed runs: %+v", indexed)
	}
	if _, err := second.Runs(context.Background(), RunsRequest{Source: "tape"}); err == nil {
		t.Fatal("expected unknown source error")
	}
}

func TestRunNeuralFromSavedNetwork(t *testing.T) {
	client, base := newTestClient(t)
	params := config.Parameters{config.KeyMaxSteps: 20}
	cfg, err := config.Load(params)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	net, err := nn.New(policy.NeuralTopology(cfg, 4), rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	file := filepath.Join(base, "net.json")
	if err := nn.Save(file, net); err != nil {
		t.Fatalf("save: %v", err)
	}

	req := RunRequest{Mode: "validation", Policy: "neural", Seed: 4, Episodes: 1, Parameters: params, Network: file}
	first, err := client.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run saved network: %v", err)
	}
	second, err := client.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("rerun saved network: %v", err)
	}
	if first.Fitness != second.Fitness {
		t.Fatalf("saved network is not deterministic: %f vs %f", first.Fitness, second.Fitness)
	}

	req.Policy = "follow"
	if _, err := client.Run(context.Background(), req); err == nil {
		t.Fatal("expected network with non-neural policy to be rejected")
	}
	req.Policy, req.Network = "neural", filepath.Join(base, "missing.json")
	if _, err := client.Run(context.Background(), req); err == nil {
		t.Fatal("expected missing network file error")
	}
}
