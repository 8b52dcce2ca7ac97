package services

import "github.com/huangang/timelogbot/internal/models"

// Aggregate groups raw time logs by actor and then by work item, summing hours
// for repeated pairs. The result does not depend on input order.
func Aggregate(records []models.TimeLogRecord) models.AggregatedLog {
	aggregated := make(models.AggregatedLog)
	for _, r := range records {
		aggregated.Add(r.UserID, r.TaskID, r.Hours)
	}
	return aggregated
}
