package model

import "time"

// Status is the lifecycle position of a ReminderRecord. It is never set
// directly; it always mirrors which of Reply and Summary are populated.
type Status string

const (
	StatusSent       Status = "sent"
	StatusReplied    Status = "replied"
	StatusSummarized Status = "summarized"
)

// ReminderRecord is the audit entry for one reminder-and-reply cycle.
// It is created before the transport send, so an empty ThreadID marks a
// send that never completed.
type ReminderRecord struct {
	ID           string    `gorm:"primaryKey"`
	CommitmentID string    `gorm:"index;not null"`
	ThreadID     string    `gorm:"index"`
	Status       Status    `gorm:"not null"`
	Reply        string    `gorm:"type:text"`
	Summary      string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// InferStatus derives the status from the populated fields.
func InferStatus(reply, summary string) Status {
	switch {
	case reply == "":
		return StatusSent
	case summary == "":
		return StatusReplied
	default:
		return StatusSummarized
	}
}

// Orphaned reports whether the record was created but its send never
// completed.
func (r ReminderRecord) Orphaned() bool {
	return r.ThreadID == ""
}
