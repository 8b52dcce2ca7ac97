package services

import "github.com/huangang/timelogbot/internal/models"

// ClassifyTotal places a logged total inside or outside the closed [min, max] interval.
func ClassifyTotal(total, min, max float64) models.Category {
	if total >= min && total <= max {
		return models.CategoryValid
	}
	return models.CategoryInvalid
}

// Classify returns zero for members without a report entry and otherwise
// classifies their total against the thresholds.
func Classify(report models.EmailReport, email string, min, max float64) models.Category {
	if !report.Has(email) {
		return models.CategoryZero
	}
	return ClassifyTotal(report.Total(email), min, max)
}
