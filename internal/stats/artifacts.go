package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"trackgym/internal/model"
)

const (
	runIndexFile = "run_index.json"

	// Fixed width so index timestamps sort lexically.
	indexTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

var artifactFiles = []string{"config.json", "episodes.json", "summary.json", "episodes.csv"}

// optionalArtifacts are written by other commands and copied on export when
// present.
var optionalArtifacts = []string{"track.png", "rewards.html"}

type RunConfig struct {
	RunID        string             `json:"run_id"`
	Scape        string             `json:"scape"`
	Mode         string             `json:"mode"`
	Policy       string             `json:"policy"`
	Seed         int64              `json:"seed"`
	Episodes     int                `json:"episodes"`
	CreatedAtUTC string             `json:"created_at_utc"`
	Parameters   map[string]float64 `json:"parameters"`
}

// ConfigFromRun copies the descriptive fields of a stored run.
func ConfigFromRun(run model.RunRecord) RunConfig {
	return RunConfig{
		RunID:        run.ID,
		Scape:        run.Scape,
		Mode:         run.Mode,
		Policy:       run.Policy,
		Seed:         run.Seed,
		Episodes:     run.Episodes,
		CreatedAtUTC: run.CreatedAt.UTC().Format(indexTimeLayout),
		Parameters:   run.Parameters,
	}
}

type RunArtifacts struct {
	Config   RunConfig             `json:"config"`
	Episodes []model.EpisodeRecord `json:"episodes"`
	Summary  Summary               `json:"summary"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Scape        string  `json:"scape"`
	Mode         string  `json:"mode"`
	Policy       string  `json:"policy"`
	Seed         int64   `json:"seed"`
	Episodes     int     `json:"episodes"`
	ReturnMean   float64 `json:"return_mean"`
	FailureRate  float64 `json:"failure_rate"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes one directory per run under baseDir and records
// the run in the index. The summary is recomputed from the episodes.
func WriteRunArtifacts(baseDir string, run model.RunRecord, episodes []model.EpisodeRecord) (string, error) {
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	artifacts := RunArtifacts{
		Config:   ConfigFromRun(run),
		Episodes: episodes,
		Summary:  Summarize(episodes),
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "episodes.json"), artifacts.Episodes); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := WriteEpisodesCSV(filepath.Join(runDir, "episodes.csv"), episodes); err != nil {
		return "", err
	}

	entry := RunIndexEntry{
		RunID:        run.ID,
		Scape:        run.Scape,
		Mode:         run.Mode,
		Policy:       run.Policy,
		Seed:         run.Seed,
		Episodes:     len(episodes),
		ReturnMean:   artifacts.Summary.ReturnMean,
		FailureRate:  artifacts.Summary.FailureRate,
		CreatedAtUTC: artifacts.Config.CreatedAtUTC,
	}
	if err := AppendRunIndex(baseDir, entry); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory to outDir.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range optionalArtifacts {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadEpisodes(baseDir, runID string) ([]model.EpisodeRecord, bool, error) {
	var episodes []model.EpisodeRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "episodes.json"), &episodes)
	return episodes, ok, err
}

func ReadSummary(baseDir, runID string) (Summary, bool, error) {
	var summary Summary
	ok, err := readJSON(filepath.Join(baseDir, runID, "summary.json"), &summary)
	return summary, ok, err
}

func WriteEpisodesCSV(path string, episodes []model.EpisodeRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"index", "seed", "return", "steps", "elapsed", "progress", "status", "accidents"}); err != nil {
		return err
	}
	for _, episode := range episodes {
		if err := writer.Write([]string{
			strconv.Itoa(episode.Index),
			strconv.FormatInt(episode.Seed, 10),
			strconv.FormatFloat(episode.Return, 'f', -1, 64),
			strconv.Itoa(episode.Steps),
			strconv.FormatFloat(episode.Elapsed, 'f', -1, 64),
			strconv.FormatFloat(episode.Progress, 'f', -1, 64),
			episode.Status,
			strings.Join(episode.Accidents, ";"),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
