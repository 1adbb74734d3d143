package scheduler

import (
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// NewWorker creates a worker on taskQueue with every workflow and every
// configured stage registered. It is not started.
func NewWorker(c client.Client, taskQueue string, concurrency int, wf *Workflows, acts *Activities) worker.Worker {
	opts := worker.Options{WorkerStopTimeout: time.Minute}
	if concurrency > 0 {
		opts.MaxConcurrentActivityExecutionSize = concurrency
	}
	w := worker.New(c, taskQueue, opts)
	Register(w, wf, acts)
	return w
}

// Registrar is satisfied by worker.Worker and the SDK test environment.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the workflows and the non-nil stages to r.
func Register(r Registrar, wf *Workflows, acts *Activities) {
	r.RegisterWorkflowWithOptions(wf.ArchivePool, workflow.RegisterOptions{Name: ArchivePoolWorkflowName})
	r.RegisterWorkflowWithOptions(wf.CompletePool, workflow.RegisterOptions{Name: CompletePoolWorkflowName})
	r.RegisterWorkflowWithOptions(wf.UpdateLeaderboard, workflow.RegisterOptions{Name: UpdateLeaderboardWorkflowName})
	r.RegisterWorkflowWithOptions(wf.NotifyCreator, workflow.RegisterOptions{Name: NotifyCreatorWorkflowName})

	s := acts.stages
	if s.Archiver != nil {
		r.RegisterActivityWithOptions(acts.ArchivePool, activity.RegisterOptions{Name: ArchivePoolActivityName})
	}
	if s.Completer != nil {
		r.RegisterActivityWithOptions(acts.CompletePool, activity.RegisterOptions{Name: CompletePoolActivityName})
	}
	if s.Leaderboard != nil {
		r.RegisterActivityWithOptions(acts.UpdateLeaderboard, activity.RegisterOptions{Name: UpdateLeaderboardActivityName})
	}
	if s.Notifier != nil {
		r.RegisterActivityWithOptions(acts.NotifyCreator, activity.RegisterOptions{Name: NotifyCreatorActivityName})
	}
}
