package report

import (
	"context"
	"testing"
)

func TestRunner_ProcessNextJob(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	ctx := context.Background()
	ext, vision := defaultFakes()
	svc := testService(t, repo, ext, vision)
	video, job := uploadTestVideo(t, svc)

	runner := NewRunner(svc, repo, testLogger())
	runner.processNextJob(ctx)

	storedJob, _ := repo.GetJob(ctx, job.ID)
	if storedJob.Status != JobStatusCompleted {
		t.Errorf("job status = %s, want completed", storedJob.Status)
	}

	storedVideo, _ := repo.GetVideo(ctx, video.ID)
	if storedVideo.Status != StatusCompleted {
		t.Errorf("video status = %s, want completed", storedVideo.Status)
	}
}

func TestRunner_ProcessNextJob_UnknownType(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	ctx := context.Background()
	ext, vision := defaultFakes()
	svc := testService(t, repo, ext, vision)
	video, _ := uploadTestVideo(t, svc)

	bad := &Job{
		ID:      NewID(),
		VideoID: video.ID,
		Type:    "transcode",
		Status:  JobStatusQueued,
	}
	if err := repo.CreateJob(ctx, bad); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	runner := NewRunner(svc, repo, testLogger())
	// Two polls drain both the analyze job and the unknown one.
	runner.processNextJob(ctx)
	runner.processNextJob(ctx)

	stored, _ := repo.GetJob(ctx, bad.ID)
	if stored.Status != JobStatusFailed {
		t.Errorf("unknown job status = %s, want failed", stored.Status)
	}
}

func TestRunner_PauseResume(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	ext, vision := defaultFakes()
	svc := testService(t, repo, ext, vision)

	runner := NewRunner(svc, repo, testLogger())
	if runner.IsPaused() {
		t.Error("runner should start unpaused")
	}
	runner.Pause()
	if !runner.IsPaused() {
		t.Error("runner should be paused")
	}
	runner.Resume()
	if runner.IsPaused() {
		t.Error("runner should be resumed")
	}
}
