package forge

import (
	"context"
	"fmt"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/robfig/cron/v3"
)

// Autosaver writes a session to a SaveStore on a cron schedule. It does not
// run timers of its own; the host calls MaybeSave from its loop.
type Autosaver struct {
	schedule cron.Schedule
	store    SaveStore
	slot     string
	logger   runtime.Logger
	next     time.Time
}

// NewAutosaver parses spec, which may be a five-field cron expression or a
// descriptor such as "@every 30s".
func NewAutosaver(spec string, store SaveStore, slot string, logger runtime.Logger) (*Autosaver, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: autosave schedule %q: %v", ErrInvalidGameData, spec, err)
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Autosaver{schedule: schedule, store: store, slot: slot, logger: logger}, nil
}

// Next returns the next due time, zero before the first MaybeSave call.
func (a *Autosaver) Next() time.Time {
	return a.next
}

// MaybeSave saves the session if the schedule is due at now. The first call
// only arms the schedule. It reports whether a save was written.
func (a *Autosaver) MaybeSave(ctx context.Context, now time.Time, ctrl *Controller) (bool, error) {
	if a.next.IsZero() {
		a.next = a.schedule.Next(now)
		return false, nil
	}
	if now.Before(a.next) {
		return false, nil
	}

	a.next = a.schedule.Next(now)
	if err := a.Flush(ctx, ctrl); err != nil {
		return false, err
	}
	return true, nil
}

// Flush saves the session immediately.
func (a *Autosaver) Flush(ctx context.Context, ctrl *Controller) error {
	if err := a.store.Save(ctx, a.slot, ctrl.Save()); err != nil {
		a.logger.Error("Failed to autosave slot %s: %v", a.slot, err)
		return err
	}
	return nil
}
