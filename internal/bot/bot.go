package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathakanu/impact/internal/cadence"
	"github.com/pathakanu/impact/internal/config"
	"github.com/pathakanu/impact/internal/goals"
	"github.com/pathakanu/impact/internal/model"
	myopenai "github.com/pathakanu/impact/internal/openai"
	"github.com/robfig/cron/v3"
)

// ErrTemplateNotFound is returned when a commitment points at a missing template.
var ErrTemplateNotFound = errors.New("template not found")

// Mailer sends reminders and fetches replies.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) (threadID string, err error)
	ListUnread(ctx context.Context, filter string) ([]model.InboundMessage, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Store persists commitments, templates and reminder records. Lookups return
// nil, nil when the row does not exist.
type Store interface {
	ListActiveCommitments(ctx context.Context) ([]model.Commitment, error)
	GetCommitment(ctx context.Context, id string) (*model.Commitment, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	CreateReminderRecord(ctx context.Context, rec *model.ReminderRecord) (string, error)
	UpdateRecordThreadID(ctx context.Context, id, threadID string) error
	UpdateRecordReply(ctx context.Context, id, reply string) error
	UpdateRecordSummary(ctx context.Context, id, summary string) error
	UpdateCommitmentLastSent(ctx context.Context, id string, sentAt time.Time) error
	FindRecordByThreadID(ctx context.Context, threadID string) (*model.ReminderRecord, error)
}

// Summarizer turns a cleaned reply into a short log entry.
type Summarizer interface {
	Summarize(ctx context.Context, reply string, sc *myopenai.SummaryContext, customPrompt string) (string, error)
}

// Notifier pushes a short side-channel message after a reminder goes out.
type Notifier interface {
	SendWhatsAppMessage(to, body string) error
}

// Deps are the collaborators a Bot drives. Notifier, Goals and Now are optional.
type Deps struct {
	Store      Store
	Mailer     Mailer
	Summarizer Summarizer
	Notifier   Notifier
	Goals      *goals.Goals
	Logger     *slog.Logger
	Now        func() time.Time
}

// Bot coordinates the commitment-check and inbox-poll cycles.
type Bot struct {
	cfg        *config.Config
	store      Store
	mailer     Mailer
	summarizer Summarizer
	notifier   Notifier
	goals      *goals.Goals
	evaluator  *cadence.Evaluator
	cron       *cron.Cron
	logger     *slog.Logger
	now        func() time.Time
	startedAt  time.Time

	check cycle
	poll  cycle
}

// New creates a fully configured Bot instance.
func New(cfg *config.Config, deps Deps) *Bot {
	loc := cfg.LocalTimezone
	if loc == nil {
		loc = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	cl := cronLogger{logger: logger}
	b := &Bot{
		cfg:        cfg,
		store:      deps.Store,
		mailer:     deps.Mailer,
		summarizer: deps.Summarizer,
		notifier:   deps.Notifier,
		goals:      deps.Goals,
		evaluator:  cadence.New(loc),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:    logger,
		now:       now,
		startedAt: now(),
		check:     cycle{name: "commitment-check"},
		poll:      cycle{name: "inbox-poll"},
	}
	return b
}

// StartScheduler registers both cycles and starts the scheduler loop.
func (b *Bot) StartScheduler() error {
	// Cycles run on a context that shutdown does not cancel: a send in
	// flight must finish its protocol.
	ctx := context.Background()

	if _, err := b.cron.AddFunc(b.cfg.CheckSchedule, func() {
		b.RunCheckCycle(ctx)
	}); err != nil {
		return fmt.Errorf("schedule commitment check %q: %w", b.cfg.CheckSchedule, err)
	}
	if _, err := b.cron.AddFunc(b.cfg.PollSchedule, func() {
		b.RunPollCycle(ctx)
	}); err != nil {
		return fmt.Errorf("schedule inbox poll %q: %w", b.cfg.PollSchedule, err)
	}

	b.cron.Start()
	b.logger.Info("scheduler started",
		"check_schedule", b.cfg.CheckSchedule,
		"poll_schedule", b.cfg.PollSchedule,
		"timezone", b.evaluator.Location().String(),
	)
	return nil
}

// StopScheduler stops both timers and waits for running cycles to finish.
func (b *Bot) StopScheduler() {
	b.logger.Info("stopping scheduler")
	ctx := b.cron.Stop()
	<-ctx.Done()
	b.logger.Info("scheduler stopped")
}

// RunCheckCycle runs one commitment check unless one is already running.
// It reports whether the cycle ran.
func (b *Bot) RunCheckCycle(ctx context.Context) bool {
	return b.check.run(b.logger, b.now(), func() {
		res, err := b.CheckCommitments(ctx)
		if err != nil {
			b.logger.Error("commitment check failed", "error", err)
			return
		}
		b.logger.Debug("commitment check complete",
			"commitments", res.Evaluated,
			"due", res.Due,
			"sent", res.Sent,
			"failed", res.Failed,
		)
	})
}

// RunPollCycle runs one inbox poll unless one is already running.
// It reports whether the cycle ran.
func (b *Bot) RunPollCycle(ctx context.Context) bool {
	return b.poll.run(b.logger, b.now(), func() {
		res, err := b.PollInbox(ctx)
		if err != nil {
			b.logger.Error("inbox poll failed", "error", err)
			return
		}
		b.logger.Debug("inbox poll complete",
			"messages", res.Fetched,
			"summarized", res.Summarized,
			"replied", res.Replied,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	})
}

// LastCheck returns when the last commitment check started.
func (b *Bot) LastCheck() (time.Time, bool) {
	return b.check.lastStart()
}

// LastPoll returns when the last inbox poll started.
func (b *Bot) LastPoll() (time.Time, bool) {
	return b.poll.lastStart()
}

// cycle is a single-flight guard that also remembers its last start time.
type cycle struct {
	name    string
	running atomic.Bool

	mu      sync.Mutex
	started time.Time
}

func (c *cycle) run(logger *slog.Logger, now time.Time, fn func()) bool {
	if !c.running.CompareAndSwap(false, true) {
		logger.Warn("previous cycle still active, skipping", "cycle", c.name)
		return false
	}
	defer c.running.Store(false)

	c.mu.Lock()
	c.started = now
	c.mu.Unlock()

	fn()
	return true
}

func (c *cycle) lastStart() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, !c.started.IsZero()
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
