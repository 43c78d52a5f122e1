package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dispatcher is the fire-and-forget boundary: Submit runs synchronously so
// the caller gets the job id (or a typed rejection) immediately, and the
// harvest itself runs on the group. Concurrency across harvests is bounded
// by the group limit; jobs share no mutable state with each other.
type Dispatcher struct {
	orch *Orchestrator
	ctx  context.Context
	g    *errgroup.Group
	wg   sync.WaitGroup
}

// NewDispatcher binds background harvests to ctx, not to the submitting
// request: a harvest outlives the request that created it.
func NewDispatcher(ctx context.Context, orch *Orchestrator, maxConcurrent int) *Dispatcher {
	g := new(errgroup.Group)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}
	return &Dispatcher{orch: orch, ctx: ctx, g: g}
}

// Dispatch registers the harvest before returning, so a drain that starts
// right after a dispatch still waits for it. The group enqueue happens off
// the request goroutine because Go blocks while the group is at its limit.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, rawURL string) (string, error) {
	job, err := d.orch.Submit(ctx, userID, rawURL)
	if err != nil {
		return "", err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.g.Go(func() error {
			d.orch.Run(d.ctx, job)
			return nil
		})
	}()
	return job.ID, nil
}

// Wait blocks until every dispatched harvest has reached a terminal state.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	_ = d.g.Wait()
}
