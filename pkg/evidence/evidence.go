// Package evidence writes a per-run record of a pipeline execution to disk.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Pipeline       string            `json:"pipeline"`
	TaskHash       string            `json:"task_hash"`
	Provider       string            `json:"provider,omitempty"`
	Model          string            `json:"model,omitempty"`
	State          string            `json:"state"`
	FailedStage    string            `json:"failed_stage,omitempty"`
	Error          string            `json:"error,omitempty"`
	OutputKeys     []string          `json:"output_keys,omitempty"`
	DurationMillis int64             `json:"duration_ms"`
	Cost           *RunCostReport    `json:"cost,omitempty"`
	ToolVersions   map[string]string `json:"tool_versions,omitempty"`
}

// StageRecord captures evidence for a single stage.
type StageRecord struct {
	Index          int           `json:"index"`
	Name           string        `json:"name"`
	OutputKey      string        `json:"output_key"`
	Adapter        string        `json:"adapter"`
	Model          string        `json:"model"`
	PromptRef      string        `json:"prompt_ref,omitempty"`
	PromptHash     string        `json:"prompt_hash,omitempty"`
	Output         string        `json:"output,omitempty"`
	OutputHash     string        `json:"output_hash,omitempty"`
	ToolCalls      int           `json:"tool_calls"`
	ToolErrors     []string      `json:"tool_errors,omitempty"`
	Usage          adapter.Usage `json:"usage"`
	Cost           adapter.Cost  `json:"cost"`
	Retries        int           `json:"retries"`
	Error          string        `json:"error,omitempty"`
	DurationMillis int64         `json:"duration_ms"`
}

// RunCostReport summarizes usage and estimated cost for a run.
type RunCostReport struct {
	Currency    string               `json:"currency"`
	TotalAmount float64              `json:"total_amount"`
	TotalUsage  adapter.Usage        `json:"total_usage"`
	Calls       []adapter.CallReport `json:"calls,omitempty"`
	Budget      *BudgetStatus        `json:"budget,omitempty"`
}

// BudgetStatus records the configured budget and whether it was exceeded.
type BudgetStatus struct {
	MaxAmount float64 `json:"max_amount"`
	Exceeded  bool    `json:"exceeded"`
	Reason    string  `json:"reason,omitempty"`
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "stages"), filepath.Join(runDir, "outputs"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		if err := os.Chmod(dir, 0700); err != nil {
			return nil, err
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteStage writes a stage record to stages/<nn>-<stage>.json.
func (w *Writer) WriteStage(record StageRecord) error {
	if record.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	path := filepath.Join(w.runDir, "stages", fmt.Sprintf("%02d-%s.json", record.Index, sanitize(record.Name, "stage")))
	return writeJSON(path, record)
}

// WriteOutput writes a stage's text to outputs/<key>.md.
func (w *Writer) WriteOutput(key, text string) error {
	if key == "" {
		return fmt.Errorf("output key is required")
	}
	path := filepath.Join(w.runDir, "outputs", sanitize(key, "output")+".md")
	return os.WriteFile(path, []byte(text), 0600)
}

// WriteBlob stores content under blobs/ addressed by its SHA-256 and returns
// the run-relative reference and the hex digest. Writing the same content
// twice yields the same reference.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	ref := "blobs/" + sanitize(kind, "blob") + "-" + sha[:16] + ".txt"

	path := filepath.Join(w.runDir, filepath.FromSlash(ref))
	if _, err := os.Stat(path); err == nil {
		return ref, sha, nil
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", "", err
	}
	return ref, sha, nil
}

// HashString returns the hex SHA-256 of value.
func HashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func sanitize(value, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
