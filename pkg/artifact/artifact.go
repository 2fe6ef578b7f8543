package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Artifact represents an immutable output produced by one model call.
// Key is the output key the artifact was stored under, empty until the
// owning stage assigns it.
type Artifact struct {
	ID        string            `json:"id"`
	Key       string            `json:"key,omitempty"`
	Content   string            `json:"content"`
	Adapter   string            `json:"adapter"`
	Model     string            `json:"model"`
	Prompt    string            `json:"prompt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Hash      string            `json:"hash"`
}

// New creates a new Artifact with computed hash.
func New(content, adapter, model, prompt string) *Artifact {
	a := &Artifact{
		ID:        uuid.NewString(),
		Content:   content,
		Adapter:   adapter,
		Model:     model,
		Prompt:    prompt,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// WithKey returns a copy of the artifact bound to an output key.
func (a *Artifact) WithKey(key string) *Artifact {
	c := a.clone()
	c.Key = key
	return c
}

// WithMetadata returns a new artifact with additional metadata.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	c := a.clone()
	c.Metadata[key] = value
	return c
}

// Verify reports whether the content still matches the stored hash.
func (a *Artifact) Verify() bool {
	return a.Hash == a.computeHash()
}

func (a *Artifact) clone() *Artifact {
	c := *a
	c.Metadata = copyMetadata(a.Metadata)
	return &c
}

func (a *Artifact) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.Content))
	h.Write([]byte(a.Adapter))
	h.Write([]byte(a.Model))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func copyMetadata(m map[string]string) map[string]string {
	newM := make(map[string]string, len(m))
	for k, v := range m {
		newM[k] = v
	}
	return newM
}
