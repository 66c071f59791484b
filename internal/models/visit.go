package models

import (
	"time"
)

// VisitAnalyticsRequest asks for the visits of one user inside a time range.
type VisitAnalyticsRequest struct {
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// LocationVisit is a detected stay: at least two points within the same-place
// threshold spanning at least the minimum stay duration. Never mutated after
// creation.
type LocationVisit struct {
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	ArrivalTime     time.Time `json:"arrival_time"`
	DepartureTime   time.Time `json:"departure_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	PointCount      uint32    `json:"point_count"`
}

// DailySummaryRequest asks for one user's activity summary on a calendar day
// (UTC, formatted 2006-01-02).
type DailySummaryRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
}
