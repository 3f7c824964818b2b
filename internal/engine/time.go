package engine

import (
	"context"
	"errors"
	"time"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/policy"
	"taskline/internal/repo"
)

// TimerStartOptions are parameters for starting a timer.
type TimerStartOptions struct {
	ProjectID   string
	TaskID      string
	Description string
	Billable    bool
}

func (e Engine) durationMinutes(start string) int {
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0
	}
	minutes := int(e.now().UTC().Sub(t) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

// StartTimer opens a running entry for the actor. Any timer already
// running is closed in the same transaction, so at most one entry per
// user is active; the partial unique index backstops concurrent starts.
func (e Engine) StartTimer(ctx context.Context, actor policy.Actor, opts TimerStartOptions) (domain.TimeEntry, error) {
	if err := policy.CanAccess(actor, policy.ActionTimeTrack); err != nil {
		return domain.TimeEntry{}, err
	}
	if opts.TaskID != "" {
		if _, err := e.GetTask(ctx, actor, opts.TaskID); err != nil {
			return domain.TimeEntry{}, err
		}
	}
	if opts.ProjectID != "" {
		p, err := e.Repo.GetProject(ctx, opts.ProjectID)
		if err != nil {
			return domain.TimeEntry{}, err
		}
		if !policy.CanReadProject(actor, policyProject(p)) {
			return domain.TimeEntry{}, repo.ErrNotFound
		}
	}
	var rate *float64
	if opts.Billable {
		u, err := e.Repo.GetUser(ctx, actor.ID)
		if err != nil {
			return domain.TimeEntry{}, err
		}
		rate = u.HourlyRate
	}
	now := e.timestamp()
	entry := domain.TimeEntry{
		ID:          newID(),
		UserID:      actor.ID,
		ProjectID:   optionalString(opts.ProjectID),
		TaskID:      optionalString(opts.TaskID),
		Description: opts.Description,
		StartTime:   now,
		IsActive:    true,
		Billable:    opts.Billable,
		HourlyRate:  rate,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()
	active, err := e.Repo.ActiveEntriesTx(ctx, tx, actor.ID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	for _, prev := range active {
		end := now
		prev.EndTime = &end
		prev.DurationMinutes = e.durationMinutes(prev.StartTime)
		prev.IsActive = false
		if err := e.Repo.UpdateTimeEntry(ctx, tx, prev); err != nil {
			return domain.TimeEntry{}, err
		}
	}
	if err := e.Repo.InsertTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "time.started", "time_entry", entry.ID, actor.ID, events.EventPayload{"task_id": opts.TaskID, "project_id": opts.ProjectID}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// StopTimer closes the actor's entry and records its duration.
func (e Engine) StopTimer(ctx context.Context, actor policy.Actor, id string) (domain.TimeEntry, error) {
	entry, err := e.Repo.GetTimeEntry(ctx, id)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if entry.UserID != actor.ID && actor.Role != policy.RoleAdmin {
		return domain.TimeEntry{}, repo.ErrNotFound
	}
	if !entry.IsActive {
		return domain.TimeEntry{}, errors.New("timer is not running")
	}
	end := e.timestamp()
	entry.EndTime = &end
	entry.DurationMinutes = e.durationMinutes(entry.StartTime)
	entry.IsActive = false

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Events.Append(ctx, tx, "time.stopped", "time_entry", entry.ID, actor.ID, events.EventPayload{"minutes": entry.DurationMinutes}); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// TimeEntryFilters narrows a time entry listing.
type TimeEntryFilters struct {
	UserID    string
	ProjectID string
	TaskID    string
	From      string
	To        string
	Limit     int
}

// ListTimeEntries returns entries; non-admins only ever see their own.
func (e Engine) ListTimeEntries(ctx context.Context, actor policy.Actor, f TimeEntryFilters) ([]domain.TimeEntry, error) {
	if err := policy.CanAccess(actor, policy.ActionTimeTrack); err != nil {
		return nil, err
	}
	if actor.Role != policy.RoleAdmin {
		f.UserID = actor.ID
	}
	return e.Repo.ListTimeEntries(ctx, repo.TimeEntryFilters{
		UserID:    f.UserID,
		ProjectID: f.ProjectID,
		TaskID:    f.TaskID,
		From:      f.From,
		To:        f.To,
		Limit:     f.Limit,
	})
}

// TimeEntryUpdate carries optional changes to a closed entry.
type TimeEntryUpdate struct {
	Description     *string
	Billable        *bool
	DurationMinutes *int
}

func (e Engine) UpdateTimeEntry(ctx context.Context, actor policy.Actor, id string, upd TimeEntryUpdate) (domain.TimeEntry, error) {
	entry, err := e.Repo.GetTimeEntry(ctx, id)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if entry.UserID != actor.ID && actor.Role != policy.RoleAdmin {
		return domain.TimeEntry{}, repo.ErrNotFound
	}
	if upd.Description != nil {
		entry.Description = *upd.Description
	}
	if upd.Billable != nil {
		entry.Billable = *upd.Billable
	}
	if upd.DurationMinutes != nil {
		if *upd.DurationMinutes < 0 {
			return domain.TimeEntry{}, errors.New("duration must not be negative")
		}
		if entry.IsActive {
			return domain.TimeEntry{}, errors.New("cannot set duration on a running timer")
		}
		entry.DurationMinutes = *upd.DurationMinutes
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTimeEntry(ctx, tx, entry); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

func (e Engine) DeleteTimeEntry(ctx context.Context, actor policy.Actor, id string) error {
	entry, err := e.Repo.GetTimeEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.UserID != actor.ID && actor.Role != policy.RoleAdmin {
		return repo.ErrNotFound
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTimeEntry(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// TimeStats summarizes the actor's own closed entries in a window.
func (e Engine) TimeStats(ctx context.Context, actor policy.Actor, from, to string) (repo.TimeStats, error) {
	if err := policy.CanAccess(actor, policy.ActionTimeTrack); err != nil {
		return repo.TimeStats{}, err
	}
	return e.Repo.TimeStatsFor(ctx, actor.ID, from, to)
}
