package tasks

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "tasks.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAddAndList_PriorityOrder(t *testing.T) {
	s := newTestStore(t)
	for _, tc := range []struct {
		title    string
		priority Priority
	}{
		{"water the plants", PriorityLow},
		{"file taxes", PriorityHigh},
		{"buy groceries", PriorityNormal},
	} {
		if _, err := s.Add(tc.title, tc.priority); err != nil {
			t.Fatalf("Add(%q): %v", tc.title, err)
		}
	}

	got := s.List(false)
	want := []string{"file taxes", "buy groceries", "water the plants"}
	if len(got) != len(want) {
		t.Fatalf("listed %d tasks, want %d", len(got), len(want))
	}
	for i, title := range want {
		if got[i].Title != title {
			t.Errorf("list[%d] = %q, want %q", i, got[i].Title, title)
		}
	}
}

func TestAdd_RejectsEmptyTitle(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add("   ", PriorityNormal); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestComplete_ExactAndFuzzy(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add("buy groceries", PriorityNormal); err != nil {
		t.Fatal(err)
	}

	// Transcripts mangle titles; a close fuzzy reference must still land.
	done, err := s.Complete("buy grocceries")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !done.Done || done.CompletedAt == nil {
		t.Errorf("task = %+v, want done with completion time", done)
	}
	if open := s.List(false); len(open) != 0 {
		t.Errorf("open tasks = %v, want none", open)
	}
	if all := s.List(true); len(all) != 1 {
		t.Errorf("all tasks = %d, want 1", len(all))
	}
}

func TestFind_RejectsDistantReference(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add("buy groceries", PriorityNormal); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("schedule dentist appointment"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for unrelated reference", err)
	}
}

func TestMarkObsolete_HidesTaskEverywhere(t *testing.T) {
	s := newTestStore(t)
	task, err := s.Add("old idea", PriorityLow)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkObsolete(task.ID); err != nil {
		t.Fatalf("MarkObsolete: %v", err)
	}
	if all := s.List(true); len(all) != 0 {
		t.Errorf("obsolete task still listed: %v", all)
	}
	if _, err := s.Get("old idea"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get found obsolete task (err = %v)", err)
	}
}

func TestPersistence_AcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	s1, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Add("call mom", PriorityHigh); err != nil {
		t.Fatal(err)
	}

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := s2.List(false)
	if len(got) != 1 || got[0].Title != "call mom" {
		t.Errorf("reloaded tasks = %v", got)
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"low":     PriorityLow,
		"High":    PriorityHigh,
		"urgent":  PriorityHigh,
		"":        PriorityNormal,
		"someday": PriorityNormal,
	}
	for in, want := range cases {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
}
