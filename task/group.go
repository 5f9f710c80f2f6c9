// Package task runs groups of long-lived, preemptable tasks of a program.
package task

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Group is a group of tasks which are executed concurrently and collectively
// waited upon. The first task to return a non-nil error cancels the Group,
// and every task is expected to return upon the Group's cancellation.
// A Group is not itself safe for concurrent use.
type Group struct {
	// Context of the Group, which is cancelled by a task error, by an
	// explicit Cancel, or by cancellation of the parent Context.
	ctx      context.Context
	cancelFn context.CancelFunc

	tasks   []task
	eg      *errgroup.Group
	started bool
}

type task struct {
	desc string
	fn   func() error
}

// NewGroup returns a new, empty Group with the given parent Context.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, eg: eg, cancelFn: cancel}
}

// Context returns the Group Context.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group Context.
func (g *Group) Cancel() { g.cancelFn() }

// Queue a function for execution with the Group under description |desc|.
// Queue panics if called after GoRun.
func (g *Group) Queue(desc string, fn func() error) {
	if g.started {
		panic("Queue called after GoRun")
	}
	g.tasks = append(g.tasks, task{desc: desc, fn: fn})
}

// GoRun all queued functions. GoRun panics if called more than once.
func (g *Group) GoRun() {
	if g.started {
		panic("GoRun already called")
	}
	g.started = true

	for i := range g.tasks {
		var t = g.tasks[i]

		g.eg.Go(func() error {
			var err = t.fn()
			if err != nil {
				log.WithFields(log.Fields{"task": t.desc, "err": err}).Warn("task failed")
			} else {
				log.WithField("task", t.desc).Debug("task completed")
			}
			return errors.WithMessage(err, t.desc)
		})
	}
}

// Wait for started functions, returning only after all complete.
// The first encountered non-nil error is returned.
// Wait panics if GoRun hasn't been called.
func (g *Group) Wait() error {
	if !g.started {
		panic("Wait called before GoRun")
	}
	var err = g.eg.Wait()
	g.cancelFn()
	return err
}
