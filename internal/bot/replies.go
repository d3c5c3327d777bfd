package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pathakanu/impact/internal/model"
	myopenai "github.com/pathakanu/impact/internal/openai"
	"github.com/pathakanu/impact/internal/token"
)

// ReplyOutcome says how far a message got through reconciliation.
type ReplyOutcome int

const (
	// ReplySkipped means the message was not a reply to a known reminder.
	ReplySkipped ReplyOutcome = iota
	// ReplyRecorded means the reply was stored without a summary.
	ReplyRecorded
	// ReplySummarized means the reply and its summary were stored.
	ReplySummarized
)

func (o ReplyOutcome) String() string {
	switch o {
	case ReplyRecorded:
		return "replied"
	case ReplySummarized:
		return "summarized"
	default:
		return "skipped"
	}
}

// PollResult counts what an inbox poll did.
type PollResult struct {
	Fetched    int
	Summarized int
	Replied    int
	Skipped    int
	Failed     int
}

// PollInbox fetches unread replies and reconciles each one. Messages are
// marked read once handled or deliberately skipped; a message whose store
// write failed stays unread and is retried on the next poll.
func (b *Bot) PollInbox(ctx context.Context) (PollResult, error) {
	var res PollResult

	messages, err := b.mailer.ListUnread(ctx, token.Prefix)
	if err != nil {
		return res, fmt.Errorf("list unread messages: %w", err)
	}
	res.Fetched = len(messages)

	for _, msg := range messages {
		outcome, err := b.ProcessReply(ctx, msg)
		if err != nil {
			b.logger.Error("failed to process reply", "message_id", msg.ID, "thread_id", msg.ThreadID, "error", err)
			res.Failed++
			continue
		}

		switch outcome {
		case ReplySummarized:
			res.Summarized++
		case ReplyRecorded:
			res.Replied++
		default:
			res.Skipped++
		}

		if err := b.mailer.MarkRead(ctx, msg.ID); err != nil {
			b.logger.Warn("failed to mark message read", "message_id", msg.ID, "error", err)
		}
	}
	return res, nil
}

// ProcessReply reconciles one inbound message with its reminder record.
// Running it twice on the same message leaves the record unchanged.
func (b *Bot) ProcessReply(ctx context.Context, msg model.InboundMessage) (ReplyOutcome, error) {
	logger := b.logger.With("message_id", msg.ID, "thread_id", msg.ThreadID)

	tok, ok := token.Parse(msg.Subject)
	if !ok {
		logger.Debug("no reminder token in subject, skipping", "subject", msg.Subject)
		return ReplySkipped, nil
	}

	rec, err := b.store.FindRecordByThreadID(ctx, msg.ThreadID)
	if err != nil {
		return ReplySkipped, fmt.Errorf("find record for thread %s: %w", msg.ThreadID, err)
	}
	if rec == nil {
		logger.Warn("no reminder record for thread, skipping", "commitment_id", tok.CommitmentID)
		return ReplySkipped, nil
	}
	if rec.CommitmentID != tok.CommitmentID {
		logger.Warn("token does not match record, using record",
			"token_commitment_id", tok.CommitmentID,
			"record_commitment_id", rec.CommitmentID,
		)
	}

	reply := CleanReplyBody(msg.Body)
	if reply == "" {
		logger.Warn("reply is empty after cleaning, skipping", "record_id", rec.ID)
		return ReplySkipped, nil
	}

	if rec.Reply == reply && rec.Summary != "" {
		logger.Debug("reply already summarized", "record_id", rec.ID)
		return ReplySummarized, nil
	}

	sc, prompt := b.summaryContext(ctx, rec.CommitmentID)

	if err := b.store.UpdateRecordReply(ctx, rec.ID, reply); err != nil {
		return ReplySkipped, fmt.Errorf("store reply for record %s: %w", rec.ID, err)
	}

	summary := b.summarize(ctx, reply, sc, prompt)
	if summary == "" {
		logger.Info("reply recorded without summary", "record_id", rec.ID)
		return ReplyRecorded, nil
	}

	if err := b.store.UpdateRecordSummary(ctx, rec.ID, summary); err != nil {
		return ReplyRecorded, fmt.Errorf("store summary for record %s: %w", rec.ID, err)
	}
	logger.Info("reply summarized", "record_id", rec.ID, "commitment_id", rec.CommitmentID)
	return ReplySummarized, nil
}

// summaryContext resolves the commitment and its template. Either may be
// missing; the summary then goes ahead with less context.
func (b *Bot) summaryContext(ctx context.Context, commitmentID string) (*myopenai.SummaryContext, string) {
	c, err := b.store.GetCommitment(ctx, commitmentID)
	if err != nil {
		b.logger.Warn("cannot load commitment for summary", "commitment_id", commitmentID, "error", err)
		return nil, ""
	}
	if c == nil {
		return nil, ""
	}

	sc := &myopenai.SummaryContext{
		Name:  c.Name,
		Tags:  c.Tags,
		Goals: b.goals.ForTags(c.Tags),
	}

	tmpl, err := b.store.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		b.logger.Warn("cannot load template for summary", "template_id", c.TemplateID, "error", err)
		return sc, ""
	}
	if tmpl == nil {
		return sc, ""
	}
	return sc, tmpl.SummaryPrompt
}

func (b *Bot) summarize(ctx context.Context, reply string, sc *myopenai.SummaryContext, prompt string) string {
	if b.summarizer == nil {
		return ""
	}
	summary, err := b.summarizer.Summarize(ctx, reply, sc, prompt)
	if err != nil {
		b.logger.Warn("summary generation failed", "error", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

var (
	quotedHeaderRegex = regexp.MustCompile(`(?i)On .* wrote:`)
	signatureRegex    = regexp.MustCompile(`(?m)^--[ \t]*$`)
)

// CleanReplyBody strips quoted history and signatures from a reply.
func CleanReplyBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	body = strings.Join(kept, "\n")

	if loc := quotedHeaderRegex.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	if i := strings.Index(body, "---"); i >= 0 {
		body = body[:i]
	}
	if loc := signatureRegex.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	return strings.TrimSpace(body)
}
