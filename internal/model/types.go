package model

import (
	"time"

	"github.com/google/uuid"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one evaluation of a policy over several episodes.
type RunRecord struct {
	VersionedRecord
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"created_at"`
	Scape      string             `json:"scape"`
	Mode       string             `json:"mode"`
	Policy     string             `json:"policy"`
	Seed       int64              `json:"seed"`
	Episodes   int                `json:"episodes"`
	Fitness    float64            `json:"fitness"`
	Parameters map[string]float64 `json:"parameters"`
}

type EpisodeRecord struct {
	VersionedRecord
	ID        string   `json:"id"`
	RunID     string   `json:"run_id"`
	Index     int      `json:"index"`
	Seed      int64    `json:"seed"`
	Return    float64  `json:"return"`
	Steps     int      `json:"steps"`
	Elapsed   float64  `json:"elapsed"`
	Progress  float64  `json:"progress"`
	Status    string   `json:"status"`
	Accidents []string `json:"accidents,omitempty"`
}

// NewID returns a random record identifier.
func NewID() string {
	return uuid.NewString()
}
