package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"repschema/internal/metrics"
	"repschema/internal/schedule"
)

// Cycle results, used as metric labels.
const (
	ResultOK            = "ok"
	ResultFetchError    = "fetch_error"
	ResultParseError    = "parse_error"
	ResultDeliveryError = "delivery_error"
)

var ErrNoCycleYet = errors.New("no poll cycle has completed yet")

// Fetcher returns the raw calendar feed for a window.
type Fetcher interface {
	Fetch(ctx context.Context, windowStart time.Time, windowDays int) ([]byte, error)
}

// Parser turns a raw feed into bookings.
type Parser interface {
	Parse(raw []byte) ([]schedule.Booking, error)
}

// Publisher delivers text to chat channels.
type Publisher interface {
	PostMessage(ctx context.Context, chatID int64, text string) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
}

// Config holds the poller settings.
type Config struct {
	ScheduleChatID     int64
	NotificationChatID int64
	// ScheduleMessageID is the message edited with the schedule. Zero posts
	// a new message on the first cycle and keeps editing that one.
	ScheduleMessageID int
	WindowDays        int
	Interval          time.Duration
	// Location decides which calendar day is "today".
	Location *time.Location
	Now      func() time.Time
}

// Status describes the most recent cycle.
type Status struct {
	At     time.Time
	Result string
	Err    error
}

// Poller runs fetch, parse, reconcile, render and deliver cycles. Cycles
// never overlap.
type Poller struct {
	cfg        Config
	fetcher    Fetcher
	parser     Parser
	reconciler *schedule.Reconciler
	publisher  Publisher
	logger     *zerolog.Logger

	mu                sync.Mutex
	scheduleMessageID int

	statusMu sync.RWMutex
	status   Status
}

func New(
	cfg Config,
	fetcher Fetcher,
	parser Parser,
	reconciler *schedule.Reconciler,
	publisher Publisher,
	logger *zerolog.Logger,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Poller{
		cfg:               cfg,
		fetcher:           fetcher,
		parser:            parser,
		reconciler:        reconciler,
		publisher:         publisher,
		logger:            logger,
		scheduleMessageID: cfg.ScheduleMessageID,
	}
}

// Start runs a cycle immediately and then every Interval until ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	cronLogger := cron.PrintfLogger(p.logger)
	c := cron.New(
		cron.WithLocation(p.cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", p.cfg.Interval), func() { p.runJob(ctx) }); err != nil {
		return fmt.Errorf("schedule poll job: %w", err)
	}

	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("poller started")
	p.runJob(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Info().Msg("poller stopped")
	return nil
}

func (p *Poller) runJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.RunCycle(ctx); err != nil {
		p.logger.Error().Err(err).Msg("poll cycle failed")
	}
}

// RunCycle performs one full cycle. Fetch and parse failures leave the
// schedule state untouched and publish the last known schedule with a
// failure note.
func (p *Poller) RunCycle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := p.logger.With().Str("cycle_id", uuid.New().String()).Logger()
	ctx = l.WithContext(ctx)

	now := p.cfg.Now().In(p.cfg.Location)
	windowStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.cfg.Location)

	raw, err := p.fetcher.Fetch(ctx, windowStart, p.cfg.WindowDays)
	if err != nil {
		metrics.IncFetchError()
		l.Warn().Err(err).Msg("feed fetch failed, keeping previous schedule")
		return p.finish(ResultFetchError, err, p.publishSchedule(ctx, p.reconciler.RenderUnavailable()))
	}

	bookings, err := p.parser.Parse(raw)
	if err != nil {
		metrics.IncParseError()
		l.Warn().Err(err).Int("bytes", len(raw)).Msg("feed parse failed, keeping previous schedule")
		return p.finish(ResultParseError, err, p.publishSchedule(ctx, p.reconciler.RenderUnavailable()))
	}

	added := p.reconciler.Reconcile(bookings)
	metrics.AddNewBookings(added)
	metrics.SetScheduledBookings(len(p.reconciler.Entries()))
	l.Info().Int("bookings", len(bookings)).Int("new", added).Msg("schedule reconciled")

	var deliveryErr error
	if notes := p.reconciler.RenderNotifications(); notes != "" {
		if _, err := p.publisher.PostMessage(ctx, p.cfg.NotificationChatID, notes); err != nil {
			deliveryErr = fmt.Errorf("post notifications: %w", err)
		}
	}
	if err := p.publishSchedule(ctx, p.reconciler.RenderSchedule()); err != nil {
		deliveryErr = errors.Join(deliveryErr, err)
	}

	if deliveryErr != nil {
		return p.finish(ResultDeliveryError, deliveryErr, nil)
	}
	return p.finish(ResultOK, nil, nil)
}

func (p *Poller) publishSchedule(ctx context.Context, text string) error {
	if p.scheduleMessageID == 0 {
		id, err := p.publisher.PostMessage(ctx, p.cfg.ScheduleChatID, text)
		if err != nil {
			return fmt.Errorf("post schedule: %w", err)
		}
		p.scheduleMessageID = id
		zerolog.Ctx(ctx).Info().Int("message_id", id).Msg("schedule message posted, set telegram.schedule_message_id to reuse it")
		return nil
	}
	if err := p.publisher.EditMessage(ctx, p.cfg.ScheduleChatID, p.scheduleMessageID, text); err != nil {
		return fmt.Errorf("edit schedule: %w", err)
	}
	return nil
}

func (p *Poller) finish(result string, cycleErr, deliveryErr error) error {
	err := errors.Join(cycleErr, deliveryErr)
	metrics.IncCycle(result)

	p.statusMu.Lock()
	p.status = Status{At: p.cfg.Now(), Result: result, Err: err}
	p.statusMu.Unlock()
	return err
}

// LastStatus returns the outcome of the most recent cycle.
func (p *Poller) LastStatus() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

// Ready reports an error until a cycle has completed successfully.
func (p *Poller) Ready() error {
	st := p.LastStatus()
	if st.At.IsZero() {
		return ErrNoCycleYet
	}
	if st.Err != nil {
		return fmt.Errorf("last cycle %s: %w", st.Result, st.Err)
	}
	return nil
}

// ScheduleMessageID returns the id of the message holding the schedule.
func (p *Poller) ScheduleMessageID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduleMessageID
}
