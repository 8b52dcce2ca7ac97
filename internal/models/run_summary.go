package models

import "time"

// RunSummary describes the outcome of one pipeline run. It lives in memory only.
type RunSummary struct {
	RunID      string     `json:"run_id"`
	Trigger    string     `json:"trigger"` // schedule, manual, slack, cli
	ReportDate string     `json:"report_date"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Records int `json:"records"`
	Actors  int `json:"actors"`
	Tasks   int `json:"tasks"`
	Members int `json:"members"`

	ValidCount   int `json:"valid_count"`
	InvalidCount int `json:"invalid_count"`
	ZeroCount    int `json:"zero_count"`

	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`

	Skipped string `json:"skipped,omitempty"` // holiday, in_progress
	Error   string `json:"error,omitempty"`
}
