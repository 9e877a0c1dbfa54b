package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in run order. Names are unique because they label the
// cron metrics and log lines.
type Registry struct {
	order  []Job
	byName map[string]Job
}

// NewRegistry builds a registry from the provided jobs, skipping nils. It
// panics on a duplicate or empty name, mirroring prometheus.MustRegister.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

// Register appends a job after the ones already registered.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("cron job is nil")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron job name is empty")
	}
	if r.byName == nil {
		r.byName = make(map[string]Job)
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("cron job %q already registered", name)
	}
	r.byName[name] = job
	r.order = append(r.order, job)
	return nil
}

// Select narrows the registry to the named jobs, keeping registration order.
// No names means every job.
func (r *Registry) Select(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		wanted[name] = true
	}
	selected := &Registry{byName: make(map[string]Job, len(wanted))}
	for _, job := range r.order {
		if wanted[job.Name()] {
			selected.byName[job.Name()] = job
			selected.order = append(selected.order, job)
		}
	}
	return selected, nil
}

// Jobs returns a copy of the registered jobs in run order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.order...)
}
