// Package transaction tracks a single build: it owns the working-directory
// lock and a step-by-step record saved next to the build output.
package transaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"
	"github.com/google/uuid"
)

// RecordFileName is the build record written into the working directory.
const RecordFileName = "build.json"

// State represents the current state of a build or one of its steps.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
)

// Operation names the kind of build being recorded.
type Operation string

const (
	OperationBuildAppImage Operation = "build-appimage"
	OperationCreate        Operation = "create"
)

// Build records the progress of one build.
type Build struct {
	mu sync.Mutex

	Version   int       `json:"version"`
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished,omitempty"`
	Steps     []Step    `json:"steps"`
}

// Step is one stage of a build.
type Step struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Updated   time.Time `json:"updated,omitempty"`
}

// New creates a build record with the given steps in pending state.
func New(op Operation, steps ...string) *Build {
	b := &Build{
		Version:   1,
		ID:        uuid.New().String(),
		Operation: op,
		Started:   time.Now().UTC(),
		Steps:     make([]Step, 0, len(steps)),
	}
	for _, name := range steps {
		b.Steps = append(b.Steps, Step{Name: name, State: StatePending})
	}
	return b
}

// Begin marks a step in progress.
func (b *Build) Begin(name string) {
	b.update(name, StateInProgress, "", nil)
}

// Complete marks a step done with an optional detail message.
func (b *Build) Complete(name, detail string) {
	b.update(name, StateCompleted, detail, nil)
}

// Skip marks a step as not needed.
func (b *Build) Skip(name, detail string) {
	b.update(name, StateSkipped, detail, nil)
}

// Fail marks a step failed with err.
func (b *Build) Fail(name string, err error) {
	b.update(name, StateFailed, "", err)
}

func (b *Build) update(name string, state State, detail string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.Steps {
		if b.Steps[i].Name != name {
			continue
		}
		b.Steps[i].State = state
		b.Steps[i].Updated = time.Now().UTC()
		if detail != "" {
			b.Steps[i].Detail = detail
		}
		if err != nil {
			b.Steps[i].LastError = err.Error()
		} else {
			b.Steps[i].LastError = ""
		}
		return
	}
}

// StepState returns the state of a step, or "" when unknown.
func (b *Build) StepState(name string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.Steps {
		if s.Name == name {
			return s.State
		}
	}
	return ""
}

// Succeeded reports whether every step completed or was skipped.
func (b *Build) Succeeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.Steps {
		if s.State != StateCompleted && s.State != StateSkipped {
			return false
		}
	}
	return len(b.Steps) > 0
}

// Finish stamps the end time.
func (b *Build) Finish() {
	b.mu.Lock()
	b.Finished = time.Now().UTC()
	b.mu.Unlock()
}

// Save writes the record to dir/RecordFileName atomically.
func (b *Build) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	b.mu.Lock()
	data, err := json.MarshalIndent(b, "", "  ")
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal build record: %w", err)
	}

	if err := renameio.WriteFile(filepath.Join(dir, RecordFileName), data, 0o644); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}
	return nil
}

// Load reads a build record from disk.
func Load(path string) (*Build, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build record: %w", err)
	}

	var b Build
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal build record: %w", err)
	}
	return &b, nil
}
