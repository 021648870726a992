// Package timers reifies the module-level timer state the source kept as
// mutable globals into a single owned registry: one-shot timers backed by
// time.AfterFunc and recurring timers backed by a cron expression, both
// cancellable and enumerable, with an explicit Close for shutdown.
package timers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Timer describes a single scheduled callback, whether one-shot or
// recurring.
type Timer struct {
	ID       string
	Label    string
	CronExpr string        // set for recurring timers
	Every    time.Duration // set for one-shot timers
	FireAt   time.Time
	created  time.Time
}

// Registry owns every live timer's lifetime. Zero value is not usable;
// construct with NewRegistry.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*entry
	onFire func(Timer)
	nextID int
}

type entry struct {
	timer  Timer
	stop   func()
	sched  cron.Schedule
}

// NewRegistry returns a Registry that invokes onFire (from its own
// goroutine) each time a timer fires. onFire must not block.
func NewRegistry(onFire func(Timer)) *Registry {
	if onFire == nil {
		onFire = func(Timer) {}
	}
	return &Registry{timers: make(map[string]*entry), onFire: onFire}
}

// ScheduleOnce registers a one-shot timer that fires after d.
func (r *Registry) ScheduleOnce(label string, d time.Duration) (Timer, error) {
	if d <= 0 {
		return Timer{}, fmt.Errorf("duration must be positive")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.allocID()
	t := Timer{ID: id, Label: label, Every: d, FireAt: time.Now().Add(d), created: time.Now()}
	timer := time.AfterFunc(d, func() { r.fire(id) })
	r.timers[id] = &entry{timer: t, stop: func() { timer.Stop() }}
	return t, nil
}

// ScheduleRecurring registers a timer driven by a standard cron
// expression (seconds-optional, per robfig/cron/v3's default parser).
func (r *Registry) ScheduleRecurring(label, cronExpr string) (Timer, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	if cronExpr == "" {
		return Timer{}, fmt.Errorf("cron expression is required")
	}
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return Timer{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.allocID()
	next := sched.Next(time.Now())
	t := Timer{ID: id, Label: label, CronExpr: cronExpr, FireAt: next, created: time.Now()}
	e := &entry{timer: t, sched: sched}

	var arm func(time.Time)
	arm = func(from time.Time) {
		delay := time.Until(sched.Next(from))
		timer := time.AfterFunc(delay, func() {
			r.fire(id)
			fired := time.Now()
			r.mu.Lock()
			if cur, ok := r.timers[id]; ok {
				cur.timer.FireAt = sched.Next(fired)
			}
			r.mu.Unlock()
			arm(fired)
		})
		r.mu.Lock()
		if cur, ok := r.timers[id]; ok {
			cur.stop = func() { timer.Stop() }
		}
		r.mu.Unlock()
	}
	r.timers[id] = e
	arm(time.Now())
	return t, nil
}

func (r *Registry) fire(id string) {
	r.mu.Lock()
	e, ok := r.timers[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.onFire(e.timer)
}

// Cancel stops and removes a timer. Reports whether it existed.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.timers[id]
	if !ok {
		return false
	}
	if e.stop != nil {
		e.stop()
	}
	delete(r.timers, id)
	return true
}

// List returns every live timer, ordered by ID.
func (r *Registry) List() []Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Timer, 0, len(r.timers))
	for _, e := range r.timers {
		out = append(out, e.timer)
	}
	// IDs are "timer-N"; shorter IDs have smaller N.
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].ID) != len(out[j].ID) {
			return len(out[i].ID) < len(out[j].ID)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close cancels every live timer. Safe to call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.timers {
		if e.stop != nil {
			e.stop()
		}
		delete(r.timers, id)
	}
}

func (r *Registry) allocID() string {
	r.nextID++
	return fmt.Sprintf("timer-%d", r.nextID)
}
