package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/adapter"
)

func TestEvidenceWriter(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run-123")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	run := RunRecord{
		ID:        "run-123",
		Timestamp: time.Now().UTC(),
		Pipeline:  "study_plan",
		TaskHash:  HashString("Learn basic Python loops."),
		State:     "completed",
	}
	if err := writer.WriteRun(run); err != nil {
		t.Fatalf("write run: %v", err)
	}

	stage := StageRecord{
		Index:     0,
		Name:      "planner_research_agent",
		OutputKey: "research_output",
		Adapter:   "mock",
		Model:     "mock-1",
		Output:    "plan",
		Usage:     adapter.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
	if err := writer.WriteStage(stage); err != nil {
		t.Fatalf("write stage: %v", err)
	}
	if err := writer.WriteOutput("research_output", "plan"); err != nil {
		t.Fatalf("write output: %v", err)
	}

	stagePath := filepath.Join(writer.RunDir(), "stages", "00-planner_research_agent.json")
	data, err := os.ReadFile(stagePath)
	if err != nil {
		t.Fatalf("missing stage file: %v", err)
	}
	var decoded StageRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode stage: %v", err)
	}
	if decoded.OutputKey != "research_output" || decoded.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected stage record: %+v", decoded)
	}

	if _, err := os.Stat(filepath.Join(writer.RunDir(), "run.json")); err != nil {
		t.Fatalf("missing run.json: %v", err)
	}
	out, err := os.ReadFile(filepath.Join(writer.RunDir(), "outputs", "research_output.md"))
	if err != nil || string(out) != "plan" {
		t.Fatalf("unexpected output file: %q %v", out, err)
	}

	if runtime.GOOS != "windows" {
		assertPerm(t, writer.RunDir(), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "stages"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "blobs"), 0700)
		assertPerm(t, filepath.Join(writer.RunDir(), "run.json"), 0600)
		assertPerm(t, stagePath, 0600)
	}
}

func TestWriterRequiresNames(t *testing.T) {
	if _, err := NewWriter("", "run"); err == nil {
		t.Fatalf("expected error for empty base dir")
	}
	if _, err := NewWriter(t.TempDir(), ""); err == nil {
		t.Fatalf("expected error for empty run id")
	}

	writer, err := NewWriter(t.TempDir(), "run")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.WriteStage(StageRecord{}); err == nil {
		t.Fatalf("expected error for unnamed stage")
	}
	if err := writer.WriteOutput("", "x"); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestWriteBlob(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir, "run1")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	content := []byte("You are a planner.")
	sum := sha256.Sum256(content)
	expectedSha := hex.EncodeToString(sum[:])

	ref, sha, err := writer.WriteBlob("prompt", content)
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if sha != expectedSha {
		t.Fatalf("sha mismatch: %s", sha)
	}

	blobPath := filepath.Join(writer.RunDir(), ref)
	data, err := os.ReadFile(blobPath)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("content mismatch: %q", string(data))
	}
	if runtime.GOOS != "windows" {
		assertPerm(t, blobPath, 0600)
	}

	ref2, sha2, err := writer.WriteBlob("prompt", content)
	if err != nil {
		t.Fatalf("write blob again: %v", err)
	}
	if ref2 != ref || sha2 != sha {
		t.Fatalf("expected same ref and sha")
	}
}

func TestWriteBlobKindSanitization(t *testing.T) {
	writer, err := NewWriter(t.TempDir(), "run2")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	ref, _, err := writer.WriteBlob("Prompt 123/../", []byte("x"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if !strings.HasPrefix(ref, "blobs/prompt123-") {
		t.Fatalf("unexpected ref: %s", ref)
	}
	if strings.Count(ref, "/") != 1 {
		t.Fatalf("unexpected path separators in ref: %s", ref)
	}

	ref, _, err = writer.WriteBlob("!!!", []byte("y"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if !strings.HasPrefix(ref, "blobs/blob-") {
		t.Fatalf("expected blob kind fallback in ref: %s", ref)
	}
}

func assertPerm(t *testing.T, path string, expected os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.Mode().Perm() != expected {
		t.Fatalf("expected %s mode %o, got %o", path, expected, info.Mode().Perm())
	}
}
