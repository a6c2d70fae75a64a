// Package tasks is a small JSON-file-backed todo list addressed by voice.
//
// Voice transcripts rarely repeat a task title verbatim, so lookups fall
// back to fuzzy matching when no exact title matches.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no task matches the given reference.
var ErrNotFound = errors.New("tasks: no matching task")

// Priority orders tasks; higher is more urgent.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
)

// ParsePriority maps spoken priority words to a Priority. Unknown words
// default to normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high", "urgent", "important":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// String returns the spoken form of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Task is one todo item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Priority    Priority   `json:"priority"`
	Done        bool       `json:"done"`
	Obsolete    bool       `json:"obsolete"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store persists tasks to a single JSON file. All methods are safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	path  string
	tasks []Task

	now func() time.Time
}

// maxMatchDistance is the largest Levenshtein distance still accepted as a
// fuzzy title match.
const maxMatchDistance = 5

// NewStore opens or creates the task file at path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tasks: read %q: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.tasks); err != nil {
		return fmt.Errorf("tasks: parse %q: %w", s.path, err)
	}
	return nil
}

// save writes the task list atomically via a temp file rename.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("tasks: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("tasks: create dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("tasks: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("tasks: rename %q: %w", tmp, err)
	}
	return nil
}

// Add creates a task and returns it.
func (s *Store) Add(title string, priority Priority) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, errors.New("tasks: title must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Task{
		ID:        uuid.NewString(),
		Title:     title,
		Priority:  priority,
		CreatedAt: s.now(),
	}
	s.tasks = append(s.tasks, t)
	if err := s.save(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// List returns open tasks sorted by priority (high first), then age.
// With includeDone it also returns completed tasks. Obsolete tasks are
// never listed.
func (s *Store) List(includeDone bool) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, t := range s.tasks {
		if t.Obsolete {
			continue
		}
		if t.Done && !includeDone {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get finds a task by ID or (fuzzy) title.
func (s *Store) Get(ref string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.find(ref)
	if err != nil {
		return Task{}, err
	}
	return s.tasks[idx], nil
}

// Complete marks the referenced task done.
func (s *Store) Complete(ref string) (Task, error) {
	return s.update(ref, func(t *Task) {
		t.Done = true
		now := s.now()
		t.CompletedAt = &now
	})
}

// MarkObsolete removes the referenced task from all future listings without
// deleting its record.
func (s *Store) MarkObsolete(ref string) (Task, error) {
	return s.update(ref, func(t *Task) {
		t.Obsolete = true
	})
}

func (s *Store) update(ref string, apply func(*Task)) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.find(ref)
	if err != nil {
		return Task{}, err
	}
	apply(&s.tasks[idx])
	if err := s.save(); err != nil {
		return Task{}, err
	}
	return s.tasks[idx], nil
}

// find locates a live task by exact ID, exact title (case-insensitive), or
// the closest fuzzy title within maxMatchDistance. Callers hold s.mu.
func (s *Store) find(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, ErrNotFound
	}
	lower := strings.ToLower(ref)

	for i, t := range s.tasks {
		if t.Obsolete {
			continue
		}
		if t.ID == ref || strings.ToLower(t.Title) == lower {
			return i, nil
		}
	}

	best, bestDist := -1, maxMatchDistance+1
	for i, t := range s.tasks {
		if t.Obsolete {
			continue
		}
		d := matchr.Levenshtein(lower, strings.ToLower(t.Title))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	return best, nil
}
