// Package scheduler implements the kernel's scheduler (C10): a single
// cooperative loop ticking every 100ms that advances cron, interval, and
// one-shot scheduled tasks into the priority task queue once their
// dependencies and timing are satisfied. Grounded on the teacher's
// control_plane/scheduler.Scheduler worker loop (100ms ticker feeding a
// queue) and zkoranges-go-claw's internal/cron.Scheduler for real cron
// expression parsing via robfig/cron/v3.
package scheduler

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// TriggerKind distinguishes a scheduled task's advance-time rule.
type TriggerKind int

const (
	TriggerCron TriggerKind = iota
	TriggerInterval
	TriggerOneShot
)

// Trigger computes a scheduled task's next run time. Exactly one of Expr
// (TriggerCron) or Period (TriggerInterval) is meaningful for its kind.
type Trigger struct {
	Kind   TriggerKind
	Expr   string        // cron expression, TriggerCron only
	Period time.Duration // TriggerInterval only
}

// Next computes the next run time after from. TriggerOneShot returns from
// unchanged since a one-shot task is disabled after its single firing,
// never rescheduled.
func (t Trigger) Next(from time.Time) (time.Time, error) {
	switch t.Kind {
	case TriggerCron:
		sched, err := cronParser.Parse(t.Expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("scheduler: invalid cron expression %q: %w", t.Expr, err)
		}
		return sched.Next(from), nil
	case TriggerInterval:
		return from.Add(t.Period), nil
	case TriggerOneShot:
		return from, nil
	default:
		return time.Time{}, fmt.Errorf("scheduler: unknown trigger kind %d", t.Kind)
	}
}
