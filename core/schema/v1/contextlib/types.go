package contextlib

import (
	_ "embed"
	"time"
)

// ManifestSchemaJSON is the JSON schema every loaded manifest must satisfy.
//
//go:embed manifest.schema.json
var ManifestSchemaJSON []byte

type ContextMode string

const (
	ModeFresh  ContextMode = "fresh"
	ModeResume ContextMode = "resume"
)

const CategoryCore = "core"

type DriftStatus string

const (
	DriftChanged DriftStatus = "changed"
	DriftDeleted DriftStatus = "deleted"
)

type Manifest struct {
	WorkflowID    string                  `yaml:"workflow_id" json:"workflow_id"`
	CreatedAt     time.Time               `yaml:"created_at" json:"created_at"`
	ContextMode   ContextMode             `yaml:"context_mode" json:"context_mode"`
	VCSCheckpoint VCSCheckpoint           `yaml:"vcs_checkpoint" json:"vcs_checkpoint"`
	Budget        Budget                  `yaml:"budget" json:"budget"`
	Sources       map[string][]FileRecord `yaml:"sources" json:"sources"`
	Deferred      []DeferredRecord        `yaml:"deferred" json:"deferred"`
	Integrity     *Integrity              `yaml:"integrity,omitempty" json:"integrity,omitempty"`
	Summary       Summary                 `yaml:"summary" json:"summary"`
}

type VCSCheckpoint struct {
	Branch   string `yaml:"branch" json:"branch"`
	Commit   string `yaml:"commit" json:"commit"`
	WasClean bool   `yaml:"was_clean" json:"was_clean"`
}

type Budget struct {
	Total        int `yaml:"total" json:"total"`
	Core         int `yaml:"core" json:"core"`
	WaveSpecific int `yaml:"wave_specific" json:"wave_specific"`
	OnDemand     int `yaml:"on_demand" json:"on_demand"`
}

type FileRecord struct {
	Path        string    `yaml:"path" json:"path"`
	Fingerprint string    `yaml:"fingerprint" json:"fingerprint"`
	Tokens      int       `yaml:"tokens" json:"tokens"`
	LoadedAt    time.Time `yaml:"loaded_at" json:"loaded_at"`
	Purpose     string    `yaml:"purpose" json:"purpose"`
}

type DeferredRecord struct {
	Path   string `yaml:"path" json:"path"`
	Tokens int    `yaml:"tokens" json:"tokens"`
	Reason string `yaml:"reason" json:"reason"`
}

type Integrity struct {
	LastVerified time.Time    `yaml:"last_verified" json:"last_verified"`
	FilesChanged int          `yaml:"files_changed" json:"files_changed"`
	FilesDeleted int          `yaml:"files_deleted" json:"files_deleted"`
	DriftDetails []DriftEntry `yaml:"drift_details" json:"drift_details"`
}

type DriftEntry struct {
	Path                string      `yaml:"path" json:"path"`
	Status              DriftStatus `yaml:"status" json:"status"`
	OriginalFingerprint string      `yaml:"original_fingerprint" json:"original_fingerprint"`
	CurrentFingerprint  *string     `yaml:"current_fingerprint" json:"current_fingerprint"`
}

type Summary struct {
	CoreFiles       int `yaml:"core_files" json:"core_files"`
	CoreTokens      int `yaml:"core_tokens" json:"core_tokens"`
	DeferredFiles   int `yaml:"deferred_files" json:"deferred_files"`
	DeferredTokens  int `yaml:"deferred_tokens" json:"deferred_tokens"`
	BudgetRemaining int `yaml:"budget_remaining" json:"budget_remaining"`
}
