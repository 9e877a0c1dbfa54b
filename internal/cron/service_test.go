package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/farmolink/farmolink-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry:   NewRegistry(failure, success),
		Lock:       lock,
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected combined job error, got %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job to run once, got success=%d fail=%d", success.runs, failure.runs)
	}
	if !success.deadline {
		t.Fatal("jobs should run under a timeout")
	}
	if lock.releases != 1 || lock.acquired {
		t.Fatal("lock not released after cycle")
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
}

type panicJob struct{}

func (panicJob) Name() string { return "panicky" }

func (panicJob) Run(context.Context) error { panic("nil map write") }

func TestServiceRunOnceRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(panicJob{}, after),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicky: panic: nil map write") {
		t.Fatalf("expected panic surfaced as error, got %v", err)
	}
	if after.runs != 1 {
		t.Fatal("jobs after a panic must still run")
	}
	if lock.releases != 1 {
		t.Fatal("lock not released after panic")
	}
}

func TestNewServiceReportsAllMissingDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	if err == nil || !strings.Contains(err.Error(), "logger required") || !strings.Contains(err.Error(), "lock required") {
		t.Fatalf("expected both missing deps reported, got %v", err)
	}
}
