package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pathakanu/impact/internal/config"
	"github.com/pathakanu/impact/internal/model"
	"github.com/pathakanu/impact/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const journalSubject = "[IMPACT-c-journal-20250115] Journal check-in"

// sentHarness returns a harness in which the journal reminder already went
// out on thread-1.
func sentHarness(t *testing.T, mutate func(*config.Config, *Deps)) *harness {
	t.Helper()
	h := newHarness(t, time.Date(2025, 1, 15, 9, 5, 0, 0, newYork(t)), mutate)
	h.seedTemplate(t, journalTemplate)
	h.seedCommitment(t, journal)
	res, err := h.bot.CheckCommitments(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Sent)
	return h
}

func journalReply(body string) model.InboundMessage {
	return model.InboundMessage{
		ID:       "msg-1",
		ThreadID: "thread-1",
		From:     "me@example.com",
		Subject:  "Re: " + journalSubject,
		Body:     body,
	}
}

func recordOnThread(t *testing.T, h *harness, threadID string) *model.ReminderRecord {
	t.Helper()
	rec, err := h.store.FindRecordByThreadID(context.Background(), threadID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestPollInboxSummarizesReply(t *testing.T) {
	h := sentHarness(t, nil)
	h.mailer.unread = []model.InboundMessage{journalReply(
		"Wrote three pages this morning.\n\nOn Wed, Jan 15, 2025 at 9:05 AM <me@example.com> wrote:\n> How did Journal go?",
	)}

	res, err := h.bot.PollInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollResult{Fetched: 1, Summarized: 1}, res)
	assert.Equal(t, []string{"IMPACT"}, h.mailer.filters)
	assert.Equal(t, []string{"msg-1"}, h.mailer.read())

	rec := recordOnThread(t, h, "thread-1")
	assert.Equal(t, "Wrote three pages this morning.", rec.Reply)
	assert.Equal(t, "Wrote three pages.", rec.Summary)
	assert.Equal(t, model.StatusSummarized, rec.Status)

	require.Equal(t, 1, h.summarizer.calls)
	assert.Equal(t, "Wrote three pages this morning.", h.summarizer.replies[0])
	assert.Equal(t, journalTemplate.SummaryPrompt, h.summarizer.prompts[0])
	sc := h.summarizer.context[0]
	require.NotNil(t, sc)
	assert.Equal(t, "Journal", sc.Name)
	assert.Equal(t, []string{"health"}, sc.Tags)
	assert.Equal(t, "- Run a half marathon", sc.Goals)
}

func TestProcessReplyIsIdempotent(t *testing.T) {
	h := sentHarness(t, nil)
	ctx := context.Background()
	msg := journalReply("Done, 20 minutes.")

	outcome, err := h.bot.ProcessReply(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, ReplySummarized, outcome)
	first := recordOnThread(t, h, "thread-1")

	h.summarizer.summary = "Something else entirely."
	outcome, err = h.bot.ProcessReply(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, ReplySummarized, outcome)

	second := recordOnThread(t, h, "thread-1")
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, h.summarizer.calls)
}

func TestProcessReplyNewerReplyReplacesSummary(t *testing.T) {
	h := sentHarness(t, nil)
	ctx := context.Background()

	_, err := h.bot.ProcessReply(ctx, journalReply("First answer."))
	require.NoError(t, err)

	h.summarizer.summary = "Second summary."
	_, err = h.bot.ProcessReply(ctx, journalReply("Second answer."))
	require.NoError(t, err)

	rec := recordOnThread(t, h, "thread-1")
	assert.Equal(t, "Second answer.", rec.Reply)
	assert.Equal(t, "Second summary.", rec.Summary)
}

func TestProcessReplySummarizerFailure(t *testing.T) {
	h := sentHarness(t, nil)
	h.summarizer.err = errors.New("rate limited")
	ctx := context.Background()

	outcome, err := h.bot.ProcessReply(ctx, journalReply("Skipped today."))
	require.NoError(t, err)
	assert.Equal(t, ReplyRecorded, outcome)

	rec := recordOnThread(t, h, "thread-1")
	assert.Equal(t, "Skipped today.", rec.Reply)
	assert.Empty(t, rec.Summary)
	assert.Equal(t, model.StatusReplied, rec.Status)

	// A later pass retries the summary.
	h.summarizer.err = nil
	outcome, err = h.bot.ProcessReply(ctx, journalReply("Skipped today."))
	require.NoError(t, err)
	assert.Equal(t, ReplySummarized, outcome)
	assert.Equal(t, model.StatusSummarized, recordOnThread(t, h, "thread-1").Status)
}

func TestProcessReplyWithoutSummarizer(t *testing.T) {
	h := sentHarness(t, func(_ *config.Config, d *Deps) {
		d.Summarizer = nil
	})

	outcome, err := h.bot.ProcessReply(context.Background(), journalReply("Done."))
	require.NoError(t, err)
	assert.Equal(t, ReplyRecorded, outcome)
}

func TestPollInboxSkipsUnrelatedMessages(t *testing.T) {
	h := sentHarness(t, nil)
	h.mailer.unread = []model.InboundMessage{
		{ID: "no-token", ThreadID: "thread-1", Subject: "Re: lunch?", Body: "Sure"},
		{ID: "bad-date", ThreadID: "thread-1", Subject: "[IMPACT-c-journal-2025011] hi", Body: "Sure"},
		{ID: "unknown-thread", ThreadID: "thread-99", Subject: "Re: " + journalSubject, Body: "Sure"},
		{ID: "quote-only", ThreadID: "thread-1", Subject: "Re: " + journalSubject, Body: "> quoted\n> only"},
	}

	res, err := h.bot.PollInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollResult{Fetched: 4, Skipped: 4}, res)
	assert.ElementsMatch(t, []string{"no-token", "bad-date", "unknown-thread", "quote-only"}, h.mailer.read())

	rec := recordOnThread(t, h, "thread-1")
	assert.Equal(t, model.StatusSent, rec.Status)
	assert.Empty(t, rec.Reply)
	assert.Zero(t, h.summarizer.calls)
}

func TestPollInboxStoreFailureLeavesUnread(t *testing.T) {
	var fs *flakyStore
	h := sentHarness(t, func(_ *config.Config, d *Deps) {
		fs = &flakyStore{Store: d.Store.(*store.Store)}
		d.Store = fs
	})
	fs.replyErr = errors.New("database is locked")

	other := journalReply("Ignore me")
	other.ID = "msg-2"
	other.Subject = "newsletter"
	h.mailer.unread = []model.InboundMessage{journalReply("Done."), other}

	res, err := h.bot.PollInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PollResult{Fetched: 2, Skipped: 1, Failed: 1}, res)
	assert.Equal(t, []string{"msg-2"}, h.mailer.read())
	assert.Equal(t, model.StatusSent, recordOnThread(t, h, "thread-1").Status)
}

func TestPollInboxListFailure(t *testing.T) {
	h := sentHarness(t, nil)
	h.mailer.listErr = errors.New("gmail 503")

	_, err := h.bot.PollInbox(context.Background())
	require.Error(t, err)
	assert.Empty(t, h.mailer.read())
}

func TestProcessReplyDegradesWithoutCommitment(t *testing.T) {
	h := newHarness(t, time.Date(2025, 1, 15, 9, 5, 0, 0, time.UTC), nil)
	ctx := context.Background()

	id, err := h.store.CreateReminderRecord(ctx, &model.ReminderRecord{CommitmentID: "c-gone"})
	require.NoError(t, err)
	require.NoError(t, h.store.UpdateRecordThreadID(ctx, id, "thread-gone"))

	outcome, err := h.bot.ProcessReply(ctx, model.InboundMessage{
		ID:       "msg-gone",
		ThreadID: "thread-gone",
		Subject:  "Re: [IMPACT-c-gone-20250115] Gone",
		Body:     "Still did it.",
	})
	require.NoError(t, err)
	assert.Equal(t, ReplySummarized, outcome)

	require.Equal(t, 1, h.summarizer.calls)
	assert.Nil(t, h.summarizer.context[0])
	assert.Empty(t, h.summarizer.prompts[0])
}

func TestProcessReplyTrustsThreadOverToken(t *testing.T) {
	h := sentHarness(t, nil)
	msg := journalReply("Done.")
	msg.Subject = "Re: [IMPACT-someone-else-20250115] Journal check-in"

	outcome, err := h.bot.ProcessReply(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, ReplySummarized, outcome)
	assert.Equal(t, "Done.", recordOnThread(t, h, "thread-1").Reply)
}

func TestCleanReplyBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "gmail quote header",
			body: "Wrote 3 pages.\n\nOn Wed, Jan 15, 2025 at 9:05 AM Impact <me@example.com> wrote:\n> How did it go?",
			want: "Wrote 3 pages.",
		},
		{
			name: "quoted lines only stripped",
			body: "First line\n> quoted\n  > indented quote\nSecond line",
			want: "First line\nSecond line",
		},
		{
			name: "outlook separator",
			body: "All good\n\n-----Original Message-----\nFrom: me",
			want: "All good",
		},
		{
			name: "signature delimiter",
			body: "Ran 5k\n-- \nSent from my phone",
			want: "Ran 5k",
		},
		{
			name: "crlf line endings",
			body: "Did it\r\n\r\n--\r\nMe",
			want: "Did it",
		},
		{
			name: "dashes inside a line are kept",
			body: "Mood - good",
			want: "Mood - good",
		},
		{
			name: "case insensitive header",
			body: "Yes\non monday, someone WROTE:\nold",
			want: "Yes",
		},
		{
			name: "nothing left",
			body: "> only quotes",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanReplyBody(tt.body))
		})
	}
}

func TestReplyOutcomeString(t *testing.T) {
	assert.Equal(t, "skipped", ReplySkipped.String())
	assert.Equal(t, "replied", ReplyRecorded.String())
	assert.Equal(t, "summarized", ReplySummarized.String())
}
