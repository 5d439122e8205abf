package engine

import (
	"context"
	"fmt"

	"github.com/xraph/backlog"
	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Link is one record of a chain stage.
type Link struct {
	Body job.Body
	Opts []job.Option
}

// Step creates a Link.
func Step(body job.Body, opts ...job.Option) Link {
	return Link{Body: body, Opts: opts}
}

// Chain builds stages of records where every record of a stage depends on
// every record of the previous stage. The whole chain is enqueued
// atomically.
type Chain struct {
	eng    *Engine
	stages [][]Link
}

// StartChain begins a chain with a first stage of links.
func (eng *Engine) StartChain(links ...Link) *Chain {
	return &Chain{eng: eng, stages: [][]Link{links}}
}

// Then appends a stage that runs after every record of the previous stage
// succeeds.
func (c *Chain) Then(links ...Link) *Chain {
	c.stages = append(c.stages, links)
	return c
}

// Enqueue submits the chain and returns the IDs of each stage.
func (c *Chain) Enqueue(ctx context.Context) ([][]id.JobID, error) {
	var (
		all  []*job.Job
		ids  = make([][]id.JobID, 0, len(c.stages))
		prev []id.JobID
	)
	for i, stage := range c.stages {
		if len(stage) == 0 {
			return nil, fmt.Errorf("%w: chain stage %d is empty", backlog.ErrInvalidInput, i)
		}
		cur := make([]id.JobID, 0, len(stage))
		for _, link := range stage {
			opts := append([]job.Option{}, link.Opts...)
			if len(prev) > 0 {
				opts = append(opts, job.WithDependsOn(prev...))
			}
			j, err := c.eng.build(link.Body, opts)
			if err != nil {
				return nil, fmt.Errorf("chain stage %d: %w", i, err)
			}
			all = append(all, j)
			cur = append(cur, j.ID)
		}
		ids = append(ids, cur)
		prev = cur
	}

	if err := c.eng.ledger.Enqueue(ctx, all...); err != nil {
		return nil, err
	}
	for _, j := range all {
		c.eng.extensions.EmitJobEnqueued(ctx, j)
	}
	return ids, nil
}
