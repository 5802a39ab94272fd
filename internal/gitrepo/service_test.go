package gitrepo

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestArchiveCommitAndHistory(t *testing.T) {
	tempDir := t.TempDir()
	archive := New(tempDir)

	first, err := archive.Commit(7, Snapshot{Title: "Go", Body: "line one"}, "Avery", "revision 1")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "7", snapshotFile)); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	second, err := archive.Commit(7, Snapshot{Title: "Go", Body: "line one\nline two"}, "", "revision 2")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if second.Author != "anonymous" {
		t.Fatalf("expected anonymous author, got %q", second.Author)
	}

	history, err := archive.History(7, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("expected newest first, got %+v", history)
	}

	limited, err := archive.History(7, 1)
	if err != nil {
		t.Fatalf("History(limit) error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	snapshot, err := archive.SnapshotAt(7, first.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if snapshot.Body != "line one" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestArchiveIdenticalSnapshotIsNoop(t *testing.T) {
	archive := New(t.TempDir())

	first, err := archive.Commit(1, Snapshot{Title: "T", Body: "B"}, "Avery", "revision 1")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	again, err := archive.Commit(1, Snapshot{Title: "T", Body: "B"}, "Avery", "revision 2")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected unchanged head, got %s vs %s", again.Hash, first.Hash)
	}

	history, err := archive.History(1, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected a single commit, got %d", len(history))
	}
}

func TestArchiveHistoryOfUnknownEntryIsEmpty(t *testing.T) {
	archive := New(t.TempDir())
	history, err := archive.History(404, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}
}

func TestArchiveConcurrentCommitsOnSameEntry(t *testing.T) {
	archive := New(t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := archive.Commit(3, Snapshot{Title: "T", Body: string(rune('a' + i))}, "Avery", "concurrent")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Commit() error = %v", err)
		}
	}

	history, err := archive.History(3, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 8 {
		t.Fatalf("expected 8 commits, got %d", len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Ana María_B"); got != "Ana.Mara.B" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("!!!"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}
