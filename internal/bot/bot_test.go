package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pathakanu/impact/internal/config"
	"github.com/pathakanu/impact/internal/goals"
	"github.com/pathakanu/impact/internal/model"
	myopenai "github.com/pathakanu/impact/internal/openai"
	"github.com/pathakanu/impact/internal/store"
	"github.com/pathakanu/impact/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu         sync.Mutex
	sent       []sentMail
	sendErr    error
	unread     []model.InboundMessage
	listErr    error
	filters    []string
	markedRead []string

	// When block is set ListUnread signals entered and waits for block to close.
	block   chan struct{}
	entered chan struct{}
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return fmt.Sprintf("thread-%d", len(m.sent)), nil
}

func (m *fakeMailer) ListUnread(_ context.Context, filter string) ([]model.InboundMessage, error) {
	if m.block != nil {
		select {
		case m.entered <- struct{}{}:
		default:
		}
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]model.InboundMessage(nil), m.unread...), nil
}

func (m *fakeMailer) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedRead = append(m.markedRead, id)
	return nil
}

func (m *fakeMailer) sentMails() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func (m *fakeMailer) read() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.markedRead...)
}

type fakeSummarizer struct {
	summary string
	err     error

	calls   int
	replies []string
	prompts []string
	context []*myopenai.SummaryContext
}

func (s *fakeSummarizer) Summarize(_ context.Context, reply string, sc *myopenai.SummaryContext, prompt string) (string, error) {
	s.calls++
	s.replies = append(s.replies, reply)
	s.prompts = append(s.prompts, prompt)
	s.context = append(s.context, sc)
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

type fakeNotifier struct {
	to     []string
	bodies []string
	err    error
}

func (n *fakeNotifier) SendWhatsAppMessage(to, body string) error {
	n.to = append(n.to, to)
	n.bodies = append(n.bodies, body)
	return n.err
}

// flakyStore fails selected writes.
type flakyStore struct {
	*store.Store
	listErr   error
	replyErr  error
	threadErr error
}

func (s *flakyStore) ListActiveCommitments(ctx context.Context) ([]model.Commitment, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.ListActiveCommitments(ctx)
}

func (s *flakyStore) UpdateRecordReply(ctx context.Context, id, reply string) error {
	if s.replyErr != nil {
		return s.replyErr
	}
	return s.Store.UpdateRecordReply(ctx, id, reply)
}

func (s *flakyStore) UpdateRecordThreadID(ctx context.Context, id, threadID string) error {
	if s.threadErr != nil {
		return s.threadErr
	}
	return s.Store.UpdateRecordThreadID(ctx, id, threadID)
}

type harness struct {
	bot        *Bot
	store      *store.Store
	mailer     *fakeMailer
	summarizer *fakeSummarizer
	clock      *testutil.Clock
	cfg        *config.Config
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHarness wires a Bot to an in-memory store and fakes. mutate may adjust
// the deps before the Bot is built.
func newHarness(t *testing.T, now time.Time, mutate func(*config.Config, *Deps)) *harness {
	t.Helper()

	h := &harness{
		store:      store.New(testutil.NewDB(t)),
		mailer:     &fakeMailer{},
		summarizer: &fakeSummarizer{summary: "Wrote three pages."},
		clock:      testutil.NewClock(now),
		cfg: &config.Config{
			GmailUserEmail: "me@example.com",
			CheckSchedule:  "* * * * *",
			PollSchedule:   "*/5 * * * *",
			LocalTimezone:  now.Location(),
		},
	}

	g, err := goals.Parse([]byte("goals:\n  health:\n    - Run a half marathon\n"))
	require.NoError(t, err)

	deps := Deps{
		Store:      h.store,
		Mailer:     h.mailer,
		Summarizer: h.summarizer,
		Goals:      g,
		Logger:     discardLogger(),
		Now:        h.clock.Now,
	}
	if mutate != nil {
		mutate(h.cfg, &deps)
	}
	h.bot = New(h.cfg, deps)
	return h
}

func (h *harness) seedTemplate(t *testing.T, tmpl model.Template) {
	t.Helper()
	require.NoError(t, h.store.UpsertTemplate(context.Background(), &tmpl))
}

func (h *harness) seedCommitment(t *testing.T, c model.Commitment) {
	t.Helper()
	require.NoError(t, h.store.UpsertCommitment(context.Background(), &c))
}

func TestRunPollCycleSingleFlight(t *testing.T) {
	h := newHarness(t, time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), nil)
	h.mailer.block = make(chan struct{})
	h.mailer.entered = make(chan struct{}, 1)

	first := make(chan bool)
	go func() { first <- h.bot.RunPollCycle(context.Background()) }()

	select {
	case <-h.mailer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first poll never reached the mailer")
	}

	assert.False(t, h.bot.RunPollCycle(context.Background()), "overlapping poll must be skipped")

	close(h.mailer.block)
	assert.True(t, <-first)

	// The guard is released once the cycle returns.
	assert.True(t, h.bot.RunPollCycle(context.Background()))
}

func TestRunCheckCycleReleasesGuardOnError(t *testing.T) {
	h := newHarness(t, time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), nil)
	h.mailer.listErr = assert.AnError

	assert.True(t, h.bot.RunPollCycle(context.Background()))
	assert.True(t, h.bot.RunPollCycle(context.Background()))
	assert.True(t, h.bot.RunCheckCycle(context.Background()))
	assert.True(t, h.bot.RunCheckCycle(context.Background()))
}

func TestCyclesRecordStartTime(t *testing.T) {
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, start, nil)

	_, ok := h.bot.LastCheck()
	assert.False(t, ok)
	_, ok = h.bot.LastPoll()
	assert.False(t, ok)

	h.bot.RunCheckCycle(context.Background())
	h.clock.Advance(time.Minute)
	h.mailer.listErr = assert.AnError
	h.bot.RunPollCycle(context.Background())

	last, ok := h.bot.LastCheck()
	require.True(t, ok)
	assert.True(t, last.Equal(start))

	last, ok = h.bot.LastPoll()
	require.True(t, ok, "a failed poll still counts as a started cycle")
	assert.True(t, last.Equal(start.Add(time.Minute)))
}

func TestStartSchedulerRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, time.Now(), func(cfg *config.Config, _ *Deps) {
		cfg.PollSchedule = "every so often"
	})
	require.Error(t, h.bot.StartScheduler())
}

func TestStopSchedulerWaitsForRunningCycle(t *testing.T) {
	h := newHarness(t, time.Now(), func(cfg *config.Config, _ *Deps) {
		cfg.CheckSchedule = "@every 1h"
		cfg.PollSchedule = "@every 1s"
	})
	h.mailer.block = make(chan struct{})
	h.mailer.entered = make(chan struct{}, 1)

	require.NoError(t, h.bot.StartScheduler())

	select {
	case <-h.mailer.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler never started a poll")
	}

	stopped := make(chan struct{})
	go func() {
		h.bot.StopScheduler()
		close(stopped)
	}()

	assert.Never(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 20*time.Millisecond, "stop must wait for the poll in flight")

	close(h.mailer.block)
	assert.Eventually(t, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	_, ok := h.bot.LastPoll()
	assert.True(t, ok)
}

func TestHealthHandler(t *testing.T) {
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, start, nil)
	srv := httptest.NewServer(h.bot.Handler())
	defer srv.Close()

	get := func(path string) (*http.Response, map[string]any) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		}
		return resp, body
	}

	resp, body := get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", body["status"])
	assert.Nil(t, body["lastPoll"])
	assert.Nil(t, body["lastCheck"])

	h.bot.RunCheckCycle(context.Background())
	h.clock.Advance(90 * time.Second)

	_, body = get("/health")
	assert.InDelta(t, 90.0, body["uptime"], 0.001)
	assert.Equal(t, start.Format(time.RFC3339), body["lastCheck"])
	assert.Nil(t, body["lastPoll"])
	assert.Equal(t, start.Add(90*time.Second).Format(time.RFC3339), body["timestamp"])

	resp, _ = get("/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
