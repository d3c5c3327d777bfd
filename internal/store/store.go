// Package store is the gorm-backed record store for commitments, templates
// and reminder records. Every write touches only the columns it names.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pathakanu/impact/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned by updates that match no row.
	ErrNotFound = errors.New("record not found")
	// ErrNoReply is returned when a summary is attached to a record without a reply.
	ErrNoReply = errors.New("record has no reply")
)

// Store provides persistence for the reminder engine.
type Store struct {
	db *gorm.DB
}

// New wraps an opened and migrated gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListActiveCommitments returns every active commitment ordered by name.
func (s *Store) ListActiveCommitments(ctx context.Context) ([]model.Commitment, error) {
	var commitments []model.Commitment
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&commitments).Error; err != nil {
		return nil, fmt.Errorf("list active commitments: %w", err)
	}
	return commitments, nil
}

// ListCommitments returns all commitments, active or not.
func (s *Store) ListCommitments(ctx context.Context) ([]model.Commitment, error) {
	var commitments []model.Commitment
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&commitments).Error; err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	return commitments, nil
}

// GetCommitment returns nil, nil when no commitment has the id.
func (s *Store) GetCommitment(ctx context.Context, id string) (*model.Commitment, error) {
	if id == "" {
		return nil, nil
	}
	var c model.Commitment
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get commitment %s: %w", id, err)
	}
	return &c, nil
}

// GetTemplate returns nil, nil when no template has the id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	if id == "" {
		return nil, nil
	}
	var t model.Template
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return &t, nil
}

// UpdateCommitmentLastSent sets only the last_sent column.
func (s *Store) UpdateCommitmentLastSent(ctx context.Context, id string, sentAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&model.Commitment{}).
		Where("id = ?", id).
		Update("last_sent", sentAt)
	return checkUpdated(res, "update commitment last sent", id)
}

// CreateReminderRecord inserts rec, assigning an id when it has none, and
// returns the id. Status is derived from the reply and summary fields.
func (s *Store) CreateReminderRecord(ctx context.Context, rec *model.ReminderRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = model.InferStatus(rec.Reply, rec.Summary)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", fmt.Errorf("create reminder record: %w", err)
	}
	return rec.ID, nil
}

// UpdateRecordThreadID sets only the thread_id column.
func (s *Store) UpdateRecordThreadID(ctx context.Context, id, threadID string) error {
	res := s.db.WithContext(ctx).
		Model(&model.ReminderRecord{}).
		Where("id = ?", id).
		Update("thread_id", threadID)
	return checkUpdated(res, "update record thread id", id)
}

// UpdateRecordReply attaches the reply text. Re-attaching the same reply is a
// no-op; a different reply discards the summary of the previous one.
func (s *Store) UpdateRecordReply(ctx context.Context, id, reply string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := loadRecord(tx, id)
		if err != nil {
			return err
		}
		if rec.Reply == reply {
			return nil
		}
		summary := ""
		return tx.Model(&model.ReminderRecord{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"reply":   reply,
				"summary": summary,
				"status":  model.InferStatus(reply, summary),
			}).Error
	})
}

// UpdateRecordSummary attaches a summary to a record that already holds a reply.
func (s *Store) UpdateRecordSummary(ctx context.Context, id, summary string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := loadRecord(tx, id)
		if err != nil {
			return err
		}
		if rec.Reply == "" {
			return fmt.Errorf("update record summary %s: %w", id, ErrNoReply)
		}
		return tx.Model(&model.ReminderRecord{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"summary": summary,
				"status":  model.InferStatus(rec.Reply, summary),
			}).Error
	})
}

// FindRecordByThreadID returns the newest record for a thread, or nil, nil.
// An empty thread id never matches, so orphaned records stay unmatched.
func (s *Store) FindRecordByThreadID(ctx context.Context, threadID string) (*model.ReminderRecord, error) {
	if threadID == "" {
		return nil, nil
	}
	var rec model.ReminderRecord
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find record by thread %s: %w", threadID, err)
	}
	return &rec, nil
}

// GetRecord returns nil, nil when no record has the id.
func (s *Store) GetRecord(ctx context.Context, id string) (*model.ReminderRecord, error) {
	var rec model.ReminderRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return &rec, nil
}

// RecentRecords returns the newest records first.
func (s *Store) RecentRecords(ctx context.Context, limit int) ([]model.ReminderRecord, error) {
	var records []model.ReminderRecord
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	return records, nil
}

// UpsertTemplate inserts or fully replaces a template.
func (s *Store) UpsertTemplate(ctx context.Context, t *model.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(t).Error
}

// UpsertCommitment inserts a commitment or updates its user-editable fields.
// last_sent is owned by the reminder engine and is never overwritten here.
func (s *Store) UpsertCommitment(ctx context.Context, c *model.Commitment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "active", "cadence", "trigger_time", "cutoff_time",
				"template_id", "tags", "updated_at",
			}),
		}).
		Create(c).Error
}

func loadRecord(tx *gorm.DB, id string) (*model.ReminderRecord, error) {
	var rec model.ReminderRecord
	err := tx.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reminder record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load reminder record %s: %w", id, err)
	}
	return &rec, nil
}

func checkUpdated(res *gorm.DB, op, id string) error {
	if res.Error != nil {
		return fmt.Errorf("%s %s: %w", op, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}
