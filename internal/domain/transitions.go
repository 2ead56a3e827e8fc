package domain

// allowedTransitions is the task state machine. Terminal statuses only leave
// through an explicit retry of a failed task.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusIdle:       {TaskStatusQueued},
	TaskStatusQueued:     {TaskStatusProcessing, TaskStatusCancelled},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusPaused, TaskStatusCancelled},
	TaskStatusPaused:     {TaskStatusQueued, TaskStatusCancelled},
	TaskStatusFailed:     {TaskStatusQueued},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
