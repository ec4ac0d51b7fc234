package models

import (
	"fmt"
	"time"
)

// SourceEvent is the calendar event a reminder originates from. Date is
// "2006-01-02"; StartTime is "15:04" and may be empty (midnight).
type SourceEvent struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	StartTime string `json:"startTime,omitempty"`
	Location  string `json:"location,omitempty"`
	Note      string `json:"note,omitempty"`
}

// StartsAt resolves the event's start instant in the given location.
func (e SourceEvent) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start := e.StartTime
	if start == "" {
		start = "00:00"
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", e.Date+" "+start, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event time: %w", err)
	}
	return t, nil
}
