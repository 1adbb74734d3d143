package scheduler

import "github.com/castora-xyz/castora-sub001/internal/domain"

// Registered workflow names.
const (
	ArchivePoolWorkflowName       = "ArchivePoolWorkflow"
	CompletePoolWorkflowName      = "CompletePoolWorkflow"
	UpdateLeaderboardWorkflowName = "UpdateLeaderboardWorkflow"
	NotifyCreatorWorkflowName     = "NotifyCreatorWorkflow"
)

// Registered activity names.
const (
	ArchivePoolActivityName       = "ArchivePool"
	CompletePoolActivityName      = "CompletePool"
	UpdateLeaderboardActivityName = "UpdateLeaderboard"
	NotifyCreatorActivityName     = "NotifyCreator"
)

// Application error types set on failed activities.
const (
	ErrTypeInvariant = "invariant_violation"
	ErrTypeTooEarly  = "too_early"
)

var workflowNames = map[domain.JobName]string{
	domain.JobArchivePool:       ArchivePoolWorkflowName,
	domain.JobCompletePool:      CompletePoolWorkflowName,
	domain.JobUpdateLeaderboard: UpdateLeaderboardWorkflowName,
	domain.JobNotifyCreator:     NotifyCreatorWorkflowName,
}

// WorkflowName returns the workflow registered for job.
func WorkflowName(job domain.JobName) (string, bool) {
	name, ok := workflowNames[job]
	return name, ok
}
