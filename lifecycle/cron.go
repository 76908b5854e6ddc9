package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// tickParser accepts five-field expressions with an optional leading
// seconds field, plus descriptors such as "@every 1s".
var tickParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Poster runs callbacks on the goroutine that owns node state.
// runtime.Engine satisfies it.
type Poster interface {
	Post(fn func())
}

// CronTickerConfig configures a CronTicker.
type CronTickerConfig struct {
	// Schedule is a cron expression or descriptor, e.g. "@every 1s".
	Schedule string

	// Emitter receives the tick pulses.
	Emitter *ManualEmitter

	// Poster moves each firing onto the engine's driving goroutine.
	Poster Poster

	// Logger receives ticker diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// CronTicker fires PulseTick on a cron schedule. Each firing is posted
// rather than run directly, so listeners never race the engine.
type CronTicker struct {
	cron    *cron.Cron
	emitter *ManualEmitter
	poster  Poster
	logger  *slog.Logger
	ticks   atomic.Int64

	mu      sync.Mutex
	running bool
}

// ParseSchedule validates a tick schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("tick schedule is required")
	}
	schedule, err := tickParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid tick schedule: %w", err)
	}
	return schedule, nil
}

// NewCronTicker creates a ticker. It does not start until Start is called.
func NewCronTicker(cfg CronTickerConfig) (*CronTicker, error) {
	if cfg.Emitter == nil {
		return nil, errors.New("cron ticker emitter is nil")
	}
	if cfg.Poster == nil {
		return nil, errors.New("cron ticker poster is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	t := &CronTicker{
		cron:    cron.New(cron.WithParser(tickParser)),
		emitter: cfg.Emitter,
		poster:  cfg.Poster,
		logger:  cfg.Logger,
	}
	t.cron.Schedule(schedule, cron.FuncJob(t.fire))
	return t, nil
}

func (t *CronTicker) fire() {
	n := t.ticks.Add(1)
	t.logger.Debug("tick scheduled", "tick", n)
	t.poster.Post(func() {
		t.emitter.Fire(PulseTick)
	})
}

// Ticks returns how many ticks have been scheduled so far.
func (t *CronTicker) Ticks() int64 {
	return t.ticks.Load()
}

// Start begins firing ticks in the background.
func (t *CronTicker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.cron.Start()
}

// Stop stops scheduling ticks and waits for a running job to return or
// ctx to end.
func (t *CronTicker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	select {
	case <-t.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
