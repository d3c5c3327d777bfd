package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/impact/internal/model"
	"github.com/pathakanu/impact/internal/token"
)

const dateLayout = "Monday, January 2, 2006"

// CheckResult counts what a commitment check did.
type CheckResult struct {
	Evaluated int
	Due       int
	Sent      int
	Failed    int
}

// CheckCommitments evaluates every active commitment and sends reminders for
// the ones that are due. A failing commitment is logged and does not stop
// the rest of the batch.
func (b *Bot) CheckCommitments(ctx context.Context) (CheckResult, error) {
	var res CheckResult

	commitments, err := b.store.ListActiveCommitments(ctx)
	if err != nil {
		return res, fmt.Errorf("list active commitments: %w", err)
	}

	now := b.now().In(b.evaluator.Location())
	for _, c := range commitments {
		res.Evaluated++

		due, err := b.evaluator.IsDue(c, now)
		if err != nil {
			b.logger.Error("cannot evaluate commitment", "commitment_id", c.ID, "name", c.Name, "error", err)
			res.Failed++
			continue
		}
		if !due {
			continue
		}
		res.Due++

		if err := b.SendReminder(ctx, c, now); err != nil {
			b.logger.Error("failed to send reminder", "commitment_id", c.ID, "name", c.Name, "error", err)
			res.Failed++
			continue
		}
		res.Sent++
	}
	return res, nil
}

// SendReminder runs the send protocol for one commitment. Each step persists
// before the next begins, so an error leaves the commitment due again on the
// next check.
func (b *Bot) SendReminder(ctx context.Context, c model.Commitment, now time.Time) error {
	now = now.In(b.evaluator.Location())

	tmpl, err := b.store.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return fmt.Errorf("get template %s: %w", c.TemplateID, err)
	}
	if tmpl == nil {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, c.TemplateID)
	}

	tok := token.Mint(c.ID, now)
	r := b.placeholders(c, now)
	subject := token.Compose(tok, r.Replace(tmpl.SubjectLine))
	body := r.Replace(tmpl.EmailBody)

	recordID, err := b.store.CreateReminderRecord(ctx, &model.ReminderRecord{
		CommitmentID: c.ID,
		CreatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("create reminder record: %w", err)
	}

	threadID, err := b.mailer.Send(ctx, b.cfg.GmailUserEmail, subject, body)
	if err != nil {
		return fmt.Errorf("send email for record %s: %w", recordID, err)
	}

	if err := b.store.UpdateRecordThreadID(ctx, recordID, threadID); err != nil {
		return fmt.Errorf("attach thread %s to record %s: %w", threadID, recordID, err)
	}
	if err := b.store.UpdateCommitmentLastSent(ctx, c.ID, now); err != nil {
		return fmt.Errorf("update last sent: %w", err)
	}

	b.logger.Info("reminder sent",
		"commitment_id", c.ID,
		"name", c.Name,
		"record_id", recordID,
		"thread_id", threadID,
	)
	b.nudge(c, subject)
	return nil
}

func (b *Bot) nudge(c model.Commitment, subject string) {
	if b.notifier == nil || b.cfg.NotifyWhatsAppTo == "" {
		return
	}
	msg := fmt.Sprintf("Reminder sent for %s. Reply to \"%s\" in your inbox.", c.Name, subject)
	if err := b.notifier.SendWhatsAppMessage(b.cfg.NotifyWhatsAppTo, msg); err != nil {
		b.logger.Warn("whatsapp nudge failed", "commitment_id", c.ID, "error", err)
	}
}

// placeholders builds the substitutions applied to subject lines and bodies.
// {{goalsContext}} renders as nothing when no goal matches the tags.
func (b *Bot) placeholders(c model.Commitment, now time.Time) *strings.Replacer {
	return strings.NewReplacer(
		"{{commitmentName}}", c.Name,
		"{{triggerTime}}", c.TriggerTime,
		"{{cutoffTime}}", c.CutoffTime,
		"{{date}}", now.Format(dateLayout),
		"{{goalsContext}}", b.goals.ForTags(c.Tags),
	)
}
