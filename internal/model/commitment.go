package model

import (
	"fmt"
	"strings"
	"time"
)

// Cadence is how often a commitment's reminder fires.
type Cadence string

const (
	CadenceDaily     Cadence = "Daily"
	CadenceWeekly    Cadence = "Weekly"
	CadenceQuarterly Cadence = "Quarterly"
)

// ParseCadence accepts any casing of a known cadence name.
func ParseCadence(s string) (Cadence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return CadenceDaily, nil
	case "weekly":
		return CadenceWeekly, nil
	case "quarterly":
		return CadenceQuarterly, nil
	default:
		return "", fmt.Errorf("unknown cadence %q", s)
	}
}

// Commitment is a recurring accountability item.
type Commitment struct {
	ID          string     `gorm:"primaryKey"`
	Name        string     `gorm:"not null"`
	Active      bool       `gorm:"index;not null"`
	Cadence     Cadence    `gorm:"not null"`
	TriggerTime string     `gorm:"not null"`
	CutoffTime  string     `gorm:"default:''"`
	TemplateID  string     `gorm:"index"`
	LastSent    *time.Time `gorm:"column:last_sent"`
	Tags        []string   `gorm:"serializer:json"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// Template holds the email content for a commitment's reminders.
type Template struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	SubjectLine   string `gorm:"not null"`
	EmailBody     string `gorm:"type:text;not null"`
	SummaryPrompt string `gorm:"type:text"`
}

// InboundMessage is a reply fetched from the mail transport. It is never
// persisted.
type InboundMessage struct {
	ID         string
	ThreadID   string
	From       string
	Subject    string
	Body       string
	ReceivedAt time.Time
}
