package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/maauso/image2video-api/internal/effect"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	j := New()
	j.Effect = effect.Rotate
	j.DurationSec = 4
	if err := repo.Save(ctx, j); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.FindByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.ID != j.ID || got.Effect != effect.Rotate || got.DurationSec != 4 {
		t.Errorf("FindByID() = %+v, want id %s rotate 4s", got, j.ID)
	}
	if got == j {
		t.Error("FindByID() returned the saved pointer, want a copy")
	}
}

// A job's whole lifecycle is persisted by re-saving the same aggregate.
func TestMemoryRepository_SaveLifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	j := NewWithID("job-life")

	steps := []struct {
		name   string
		mutate func()
		status Status
		frames int
	}{
		{"queued", func() {}, StatusInQueue, 0},
		{"running", func() { _ = j.Start() }, StatusRunning, 0},
		{"halfway", func() { j.RecordFrames(45, 90) }, StatusRunning, 45},
		{"completed", func() {
			j.RecordFrames(90, 90)
			j.SetOutput("/tmp/video_1.avi", "video/x-msvideo", "avi", 640, 480)
			_ = j.Complete()
		}, StatusCompleted, 90},
	}

	for _, step := range steps {
		step.mutate()
		if err := repo.Save(ctx, j); err != nil {
			t.Fatalf("%s: Save() error = %v", step.name, err)
		}
		got, _ := repo.FindByID(ctx, j.ID)
		if got.Status != step.status || got.FramesRendered != step.frames {
			t.Errorf("%s: got status %s frames %d, want %s %d",
				step.name, got.Status, got.FramesRendered, step.status, step.frames)
		}
	}

	got, _ := repo.FindByID(ctx, j.ID)
	if !got.VideoReady() || got.Progress != 100 || got.Width != 640 {
		t.Errorf("completed job = %+v, want ready video at 100%%", got)
	}
}

func TestMemoryRepository_SaveRejectsEmptyID(t *testing.T) {
	repo := NewMemoryRepository()

	if err := repo.Save(context.Background(), NewWithID("")); !errors.Is(err, ErrEmptyID) {
		t.Errorf("Save() error = %v, want ErrEmptyID", err)
	}
}

func TestMemoryRepository_Isolation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		tamper func(repo *MemoryRepository, saved *Job)
	}{
		{"caller keeps mutating after save", func(_ *MemoryRepository, saved *Job) {
			saved.RecordFrames(30, 60)
			saved.SetOutput("/tmp/x.avi", "video/x-msvideo", "avi", 1, 1)
		}},
		{"caller mutates found job", func(repo *MemoryRepository, saved *Job) {
			found, _ := repo.FindByID(ctx, saved.ID)
			found.RecordFrames(30, 60)
			_ = found.Start()
		}},
		{"caller mutates listed job", func(repo *MemoryRepository, _ *Job) {
			jobs, _ := repo.List(ctx)
			jobs[0].Progress = 99
			jobs[0].Error = "tampered"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepository()
			j := New()
			_ = repo.Save(ctx, j)

			tt.tamper(repo, j)

			stored, _ := repo.FindByID(ctx, j.ID)
			if stored.Status != StatusInQueue || stored.Progress != 0 || stored.FramesRendered != 0 ||
				stored.Error != "" || stored.OutputVideoPath != "" {
				t.Errorf("stored job changed: %+v", stored)
			}
		})
	}
}

func TestMemoryRepository_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.FindByID(ctx, "job-missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("FindByID() error = %v, want ErrJobNotFound", err)
	}
	if err := repo.Delete(ctx, "job-missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Delete() error = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	jobs, err := repo.List(ctx)
	if err != nil || len(jobs) != 0 {
		t.Fatalf("List() on empty repo = %v, %v", jobs, err)
	}

	base := time.Now()
	for i, id := range []string{"job-b", "job-c", "job-a"} {
		j := NewWithID(id)
		// job-a newest, job-b oldest
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if id == "job-c" {
			j.CreatedAt = base.Add(time.Second / 2)
		}
		_ = repo.Save(ctx, j)
	}

	jobs, _ = repo.List(ctx)
	var got []string
	for _, j := range jobs {
		got = append(got, j.ID)
	}
	if fmt.Sprint(got) != "[job-a job-c job-b]" {
		t.Errorf("List() order = %v, want [job-a job-c job-b]", got)
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	keep, drop := New(), New()
	_ = repo.Save(ctx, keep)
	_ = repo.Save(ctx, drop)

	if err := repo.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := repo.FindByID(ctx, drop.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("deleted job still found: %v", err)
	}
	if jobs, _ := repo.List(ctx); len(jobs) != 1 || jobs[0].ID != keep.ID {
		t.Errorf("List() after delete = %v", jobs)
	}
}

func TestMemoryRepository_ConcurrentProgressUpdates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j := New()
			_ = j.Start()
			for frame := 1; frame <= 30; frame++ {
				j.RecordFrames(frame, 30)
				_ = repo.Save(ctx, j)
				_, _ = repo.List(ctx)
			}
		}()
	}
	wg.Wait()

	jobs, _ := repo.List(ctx)
	if len(jobs) != 4 {
		t.Fatalf("List() = %d jobs, want 4", len(jobs))
	}
	for _, j := range jobs {
		if j.FramesRendered != 30 {
			t.Errorf("job %s frames = %d, want 30", j.ID, j.FramesRendered)
		}
	}
}
