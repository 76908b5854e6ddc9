package lifecycle

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestManualEmitter_FireInSubscriptionOrder(t *testing.T) {
	m := NewManualEmitter()
	var got []string
	m.Subscribe(PulseTick, func() { got = append(got, "a") })
	m.Subscribe(PulseTick, func() { got = append(got, "b") })
	m.Subscribe(PulseStart, func() { got = append(got, "start") })

	if n := m.Fire(PulseTick); n != 2 {
		t.Errorf("Fire(tick) = %d, want 2", n)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("listeners ran %v, want %v", got, want)
	}
	if n := m.Fire(PulseEnd); n != 0 {
		t.Errorf("Fire(end) = %d, want 0", n)
	}
}

func TestManualEmitter_Unsubscribe(t *testing.T) {
	m := NewManualEmitter()
	calls := 0
	unsub := m.Subscribe(PulseTick, func() { calls++ })
	other := m.Subscribe(PulseTick, func() {})

	unsub()
	unsub()
	m.Fire(PulseTick)

	if calls != 0 {
		t.Errorf("unsubscribed listener called %d times", calls)
	}
	if got := m.ListenerCount(PulseTick); got != 1 {
		t.Errorf("ListenerCount() = %d, want 1", got)
	}
	other()
	if got := m.ListenerCount(PulseTick); got != 0 {
		t.Errorf("ListenerCount() = %d, want 0", got)
	}
}

func TestManualEmitter_UnsubscribeDuringFire(t *testing.T) {
	m := NewManualEmitter()
	var unsub func()
	calls := 0
	unsub = m.Subscribe(PulseTick, func() {
		calls++
		unsub()
	})
	m.Fire(PulseTick)
	m.Fire(PulseTick)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 1s", false},
		{"*/5 * * * *", false},
		{"*/10 * * * * *", false},
		{"", true},
		{"not a schedule", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

type queuePoster struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queuePoster) Post(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
}

func (q *queuePoster) drain() {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func TestCronTicker_FirePostsTick(t *testing.T) {
	m := NewManualEmitter()
	ticks := 0
	m.Subscribe(PulseTick, func() { ticks++ })
	poster := &queuePoster{}

	ct, err := NewCronTicker(CronTickerConfig{Schedule: "@every 1s", Emitter: m, Poster: poster})
	if err != nil {
		t.Fatalf("NewCronTicker() error = %v", err)
	}

	ct.fire()
	ct.fire()
	if ticks != 0 {
		t.Fatalf("tick listeners ran before the poster drained")
	}
	poster.drain()
	if ticks != 2 {
		t.Errorf("ticks = %d, want 2", ticks)
	}
	if ct.Ticks() != 2 {
		t.Errorf("Ticks() = %d, want 2", ct.Ticks())
	}
}

func TestCronTicker_StartStop(t *testing.T) {
	ct, err := NewCronTicker(CronTickerConfig{
		Schedule: "@every 1s",
		Emitter:  NewManualEmitter(),
		Poster:   &queuePoster{},
	})
	if err != nil {
		t.Fatalf("NewCronTicker() error = %v", err)
	}
	ct.Start()
	ct.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ct.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := ct.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestNewCronTicker_Validation(t *testing.T) {
	if _, err := NewCronTicker(CronTickerConfig{Schedule: "@every 1s", Poster: &queuePoster{}}); err == nil {
		t.Error("expected error for nil emitter")
	}
	if _, err := NewCronTicker(CronTickerConfig{Schedule: "@every 1s", Emitter: NewManualEmitter()}); err == nil {
		t.Error("expected error for nil poster")
	}
	if _, err := NewCronTicker(CronTickerConfig{Schedule: "bogus", Emitter: NewManualEmitter(), Poster: &queuePoster{}}); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
