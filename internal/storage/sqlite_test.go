package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meal-companion/internal/models"
	"meal-companion/internal/session"
	"meal-companion/internal/storage"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(
		filepath.Join(t.TempDir(), "meals.db"),
		storage.WithClock(func() time.Time { return epoch }),
	)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := storage.NewSQLiteStorage(""); err == nil {
		t.Error("NewSQLiteStorage(\"\") expected error")
	}
}

func TestSQLiteStorage_SessionLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	fresh, err := s.GetOrCreate(ctx, "meal_1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if fresh.Captures != 0 || fresh.TotalConsumed != 0 {
		t.Errorf("GetOrCreate() = %+v, want zeroed", fresh)
	}
	if _, err := s.Get(ctx, "meal_1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() before Update error = %v, want %v", err, session.ErrNotFound)
	}

	for _, v := range []float64{10, 15.5, 4.5} {
		if _, err := s.Update(ctx, "meal_1", models.CaptureAnalysis{ConsumedSinceLast: v}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	got, err := s.Get(ctx, "meal_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TotalConsumed != 30 || got.Captures != 3 {
		t.Errorf("Get() = %+v, want total 30 over 3 captures", got)
	}
	if !got.StartTime.Equal(epoch) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, epoch)
	}

	final, err := s.End(ctx, "meal_1")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if final.TotalConsumed != 30 || final.Captures != 3 {
		t.Errorf("End() = %+v, want total 30 over 3 captures", final)
	}
	if _, err := s.End(ctx, "meal_1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("second End() error = %v, want %v", err, session.ErrNotFound)
	}
}

func TestSQLiteStorage_SessionsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meals.db")
	ctx := context.Background()

	first, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	first.Update(ctx, "s", models.CaptureAnalysis{ConsumedSinceLast: 12})
	first.Close()

	second, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "s")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.TotalConsumed != 12 || got.Captures != 1 {
		t.Errorf("Get() after reopen = %+v, want total 12 over 1 capture", got)
	}
}

func TestSQLiteStorage_ConcurrentUpdates(t *testing.T) {
	s := newTestStorage(t)
	tracker := session.NewTracker(s)
	ctx := context.Background()
	const n = 25

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			if _, err := tracker.Fold(ctx, "shared", models.CaptureAnalysis{ConsumedSinceLast: 2}); err != nil {
				t.Errorf("Fold() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Captures != n || got.TotalConsumed != 2*n {
		t.Errorf("Get() = %+v, want %d captures totalling %d", got, n, 2*n)
	}
}

func TestSQLiteStorage_ListImages(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	records := []models.StoredImage{
		{SessionID: "a", FrameID: "f1", UserID: "patient_001", FilePath: "a/f1.jpg", URL: "http://x/a/f1.jpg", UploadedAt: 3000},
		{SessionID: "a", FrameID: "f2", UserID: "patient_001", FilePath: "a/f2.jpg", URL: "http://x/a/f2.jpg", UploadedAt: 1000},
		{SessionID: "b", FrameID: "f3", UserID: "patient_002", FilePath: "b/f3.jpg", URL: "http://x/b/f3.jpg", UploadedAt: 2000},
		{SessionID: "c", FrameID: "f4", UserID: "patient_001", FilePath: "c/f4.png", URL: "http://x/c/f4.png", UploadedAt: 9000},
	}
	for i := range records {
		if err := s.SaveImage(ctx, &records[i]); err != nil {
			t.Fatalf("SaveImage() error = %v", err)
		}
		if records[i].ID == 0 {
			t.Errorf("SaveImage() did not assign an id to %s", records[i].FrameID)
		}
	}

	tests := []struct {
		name   string
		filter storage.ImageFilter
		want   []string
	}{
		{name: "all ordered by upload", filter: storage.ImageFilter{}, want: []string{"f2", "f3", "f1", "f4"}},
		{name: "by user", filter: storage.ImageFilter{UserID: "patient_001"}, want: []string{"f2", "f1", "f4"}},
		{name: "by session", filter: storage.ImageFilter{SessionID: "a"}, want: []string{"f2", "f1"}},
		{name: "half open window", filter: storage.ImageFilter{UploadedFrom: 2000, UploadedBefore: 9000}, want: []string{"f3", "f1"}},
		{name: "limit", filter: storage.ImageFilter{Limit: 1}, want: []string{"f2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListImages(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListImages() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListImages() returned %d records, want %d", len(got), len(tt.want))
			}
			for i, img := range got {
				if img.FrameID != tt.want[i] {
					t.Errorf("ListImages()[%d].FrameID = %q, want %q", i, img.FrameID, tt.want[i])
				}
			}
		})
	}
}
