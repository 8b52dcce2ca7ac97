package models

// TimeLogRecord is one raw logged-time entry returned by the tracker.
type TimeLogRecord struct {
	UserID      string  `json:"userId"`
	TaskID      string  `json:"taskId"`
	TrackedDate string  `json:"trackedDate"`
	Hours       float64 `json:"hours"`
}

// AggregatedLog maps an actor ID to the summed hours per work item ID.
type AggregatedLog map[string]map[string]float64

// Add accumulates hours for the (userID, taskID) pair. Negative hours count as zero.
func (a AggregatedLog) Add(userID, taskID string, hours float64) {
	if hours < 0 {
		hours = 0
	}
	tasks, ok := a[userID]
	if !ok {
		tasks = make(map[string]float64)
		a[userID] = tasks
	}
	tasks[taskID] += hours
}

// TaskCount returns the number of distinct (actor, work item) pairs.
func (a AggregatedLog) TaskCount() int {
	n := 0
	for _, tasks := range a {
		n += len(tasks)
	}
	return n
}
