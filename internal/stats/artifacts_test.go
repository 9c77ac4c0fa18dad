package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"trackgym/internal/model"
)

func testRun(id string, created time.Time) model.RunRecord {
	return model.RunRecord{
		ID:         id,
		CreatedAt:  created,
		Scape:      "track",
		Mode:       "gt",
		Policy:     "follow",
		Seed:       3,
		Episodes:   3,
		Parameters: map[string]float64{"num_anchors": 8},
	}
}

func testEpisodes() []model.EpisodeRecord {
	return []model.EpisodeRecord{
		{Index: 0, Seed: 3, Return: -100, Steps: 10, Progress: 0.1, Status: "failure", Accidents: []string{"friction"}},
		{Index: 1, Seed: 4, Return: 20, Steps: 500, Progress: 0.6, Status: "truncated", Accidents: []string{"friction", "wind"}},
		{Index: 2, Seed: 5, Return: 50, Steps: 300, Progress: 1.0, Status: "success"},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	run := testRun("run-123", time.Unix(100, 0))
	runDir, err := WriteRunArtifacts(baseDir, run, testEpisodes())
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	for _, file := range artifactFiles {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := ExportRunArtifacts(baseDir, run.ID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range artifactFiles {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
	if _, err := os.Stat(filepath.Join(exportedDir, "track.png")); !os.IsNotExist(err) {
		t.Fatalf("optional artifact should not be invented, got %v", err)
	}

	cfg, ok, err := ReadRunConfig(baseDir, run.ID)
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if cfg.Policy != "follow" || cfg.Parameters["num_anchors"] != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	episodes, ok, err := ReadEpisodes(baseDir, run.ID)
	if err != nil || !ok {
		t.Fatalf("read episodes: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(testEpisodes(), episodes); diff != "" {
		t.Fatalf("episodes mismatch (-want +got):\n%s", diff)
	}

	summary, ok, err := ReadSummary(baseDir, run.ID)
	if err != nil || !ok {
		t.Fatalf("read summary: ok=%t err=%v", ok, err)
	}
	if summary.Episodes != 3 || summary.Failures != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), model.RunRecord{}, nil); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestReadMissingRun(t *testing.T) {
	_, ok, err := ReadRunConfig(t.TempDir(), "nope")
	if err != nil || ok {
		t.Fatalf("expected missing config, ok=%t err=%v", ok, err)
	}
}

func TestRunIndexNewestFirstAndReplace(t *testing.T) {
	baseDir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if _, err := WriteRunArtifacts(baseDir, testRun(id, base.Add(time.Duration(i)*time.Hour)), testEpisodes()); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	// Rewriting a run replaces its entry instead of duplicating it.
	if _, err := WriteRunArtifacts(baseDir, testRun("a", base), testEpisodes()[:1]); err != nil {
		t.Fatalf("rewrite a: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	got := make([]string, len(index))
	for i, entry := range index {
		got[i] = entry.RunID
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, got); diff != "" {
		t.Fatalf("index order mismatch (-want +got):\n%s", diff)
	}
	if index[2].Episodes != 1 || index[2].FailureRate != 1 {
		t.Fatalf("expected replaced entry, got %+v", index[2])
	}
}

func TestWriteEpisodesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.csv")
	if err := WriteEpisodesCSV(path, testEpisodes()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(rows))
	}
	if diff := cmp.Diff([]string{"1", "4", "20", "500", "0", "0.6", "truncated", "friction;wind"}, rows[2]); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}
