package lecture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewServiceSeedsMissingSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.json")

	svc, err := NewService(path, false, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	lectures := svc.List()
	if len(lectures) != 4 {
		t.Fatalf("seeded %d lectures, want 4", len(lectures))
	}
	if !lectures[0].IsAvailable {
		t.Error("first lecture should unlock immediately")
	}
	for i, l := range lectures[1:] {
		if l.IsAvailable {
			t.Errorf("lecture %q unlocked at seed time", l.ID)
		}
		want := lectures[i].AvailableFrom.Add(unlockInterval)
		if !l.AvailableFrom.Equal(want) {
			t.Errorf("lecture %q unlocks at %v, want one week after its predecessor", l.ID, l.AvailableFrom)
		}
	}

	// The seeded schedule must have been persisted.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading persisted schedule: %v", err)
	}
	var onDisk []Lecture
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("parsing persisted schedule: %v", err)
	}
	if len(onDisk) != 4 {
		t.Errorf("persisted %d lectures, want 4", len(onDisk))
	}
}

func TestNewServiceLoadsExistingSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.json")
	existing := []Lecture{
		{ID: "a1", Title: "Custom Lecture", AvailableFrom: time.Now().Add(-time.Hour)},
	}
	data, err := json.Marshal(existing)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	svc, err := NewService(path, false, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	lectures := svc.List()
	if len(lectures) != 1 || lectures[0].ID != "a1" {
		t.Fatalf("loaded %+v, want the existing schedule", lectures)
	}
	if !lectures[0].IsAvailable {
		t.Error("past unlock time should be marked available on load")
	}
}

func TestNewServiceRejectsMalformedSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewService(path, false, nil); err == nil {
		t.Fatal("NewService succeeded on a malformed schedule file")
	}
}

func TestRefreshUnlocksDueLectures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.json")
	svc, err := NewService(path, false, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	svc.mu.Lock()
	svc.lectures[1].AvailableFrom = time.Now().Add(-time.Minute)
	svc.mu.Unlock()

	svc.Refresh()

	if !svc.IsAvailable("2") {
		t.Error("lecture 2 should unlock once its time has passed")
	}
	if svc.IsAvailable("3") {
		t.Error("lecture 3 unlocked early")
	}
}

func TestIsAvailableUnknownID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.json")
	svc, err := NewService(path, false, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.IsAvailable("does-not-exist") {
		t.Error("unknown lecture id reported as available")
	}
}

func TestTestModeShortensInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.json")
	svc, err := NewService(path, true, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	lectures := svc.List()
	gap := lectures[1].AvailableFrom.Sub(lectures[0].AvailableFrom)
	if gap != testUnlockInterval {
		t.Errorf("test-mode unlock gap = %v, want %v", gap, testUnlockInterval)
	}
}

func TestListReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lectures.json")
	svc, err := NewService(path, false, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	lectures := svc.List()
	lectures[0].Title = "mutated"
	if svc.List()[0].Title == "mutated" {
		t.Error("List exposed internal state")
	}
}
