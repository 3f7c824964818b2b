package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/policy"
	"taskline/internal/repo"
)

// visibleProjectIDs resolves the actor's project scope to an id snapshot
// for the two-step task visibility query. Admins skip the lookup.
func (e Engine) visibleProjectIDs(ctx context.Context, actor policy.Actor) ([]string, error) {
	scope := policy.ScopeProjects(actor)
	if scope.All {
		return nil, nil
	}
	return e.Repo.VisibleProjectIDs(ctx, scope)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title          string
	Description    string
	Status         string
	Priority       string
	DueDate        string
	ProjectID      string
	MilestoneID    string
	AssigneeIDs    []string
	EstimatedHours *float64
}

func (e Engine) CreateTask(ctx context.Context, actor policy.Actor, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, errors.New("title is required")
	}
	var proj *policy.Project
	if opts.ProjectID != "" {
		p, err := e.Repo.GetProject(ctx, opts.ProjectID)
		if err != nil {
			return domain.Task{}, err
		}
		snapshot := policyProject(p)
		proj = &snapshot
	}
	if err := policy.CanCreateTask(actor, proj); err != nil {
		return domain.Task{}, err
	}
	if opts.Status == "" {
		opts.Status = "todo"
	}
	if !policy.ValidTaskStatus(opts.Status) {
		return domain.Task{}, fmt.Errorf("invalid status %q", opts.Status)
	}
	if opts.Priority == "" {
		opts.Priority = "Medium"
	}
	if !validPriority(opts.Priority) {
		return domain.Task{}, fmt.Errorf("invalid priority %q", opts.Priority)
	}
	if opts.MilestoneID != "" {
		m, err := e.Repo.GetMilestone(ctx, opts.MilestoneID)
		if err != nil {
			return domain.Task{}, err
		}
		if opts.ProjectID == "" || m.ProjectID != opts.ProjectID {
			return domain.Task{}, errors.New("invalid milestone: not in task project")
		}
	}
	for _, uid := range opts.AssigneeIDs {
		if _, err := e.Repo.GetUser(ctx, uid); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, fmt.Errorf("invalid assignee %s", uid)
			}
			return domain.Task{}, err
		}
	}
	now := e.timestamp()
	t := domain.Task{
		ID:             newID(),
		Title:          opts.Title,
		Description:    opts.Description,
		Status:         opts.Status,
		Priority:       opts.Priority,
		DueDate:        optionalString(opts.DueDate),
		Completed:      policy.CompletedFor(opts.Status),
		ProjectID:      optionalString(opts.ProjectID),
		MilestoneID:    optionalString(opts.MilestoneID),
		OwnerID:        actor.ID,
		AssigneeIDs:    opts.AssigneeIDs,
		EstimatedHours: opts.EstimatedHours,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, actor.ID, events.EventPayload{"title": t.Title, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

type TaskListFilters struct {
	ProjectID       string
	MilestoneID     string
	Status          string
	Priority        string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (e Engine) ListTasks(ctx context.Context, actor policy.Actor, f TaskListFilters) ([]domain.Task, error) {
	if err := policy.CanAccess(actor, policy.ActionTaskList); err != nil {
		return nil, err
	}
	projectIDs, err := e.visibleProjectIDs(ctx, actor)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListTasksFor(ctx, policy.ScopeTasks(actor), projectIDs, repo.TaskFilters{
		ProjectID:       f.ProjectID,
		MilestoneID:     f.MilestoneID,
		Status:          f.Status,
		Priority:        f.Priority,
		AssigneeID:      f.AssigneeID,
		Limit:           f.Limit,
		CursorCreatedAt: f.CursorCreatedAt,
		CursorID:        f.CursorID,
	})
}

// GetTask returns a task the actor can see; out-of-scope tasks read as
// not found so their existence is not revealed.
func (e Engine) GetTask(ctx context.Context, actor policy.Actor, id string) (domain.Task, error) {
	if err := policy.CanAccess(actor, policy.ActionTaskRead); err != nil {
		return domain.Task{}, err
	}
	projectIDs, err := e.visibleProjectIDs(ctx, actor)
	if err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTaskFor(ctx, policy.ScopeTasks(actor), projectIDs, id)
}

// taskProjectSnapshot loads the owning project's policy view, or nil for
// standalone tasks.
func (e Engine) taskProjectSnapshot(ctx context.Context, t domain.Task) (*policy.Project, error) {
	if t.ProjectID == nil {
		return nil, nil
	}
	p, err := e.Repo.GetProject(ctx, *t.ProjectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	snapshot := policyProject(p)
	return &snapshot, nil
}

// applyStatusCoupling keeps completed and status consistent: status wins
// when both change, and completed alone drags status across the done
// boundary.
func applyStatusCoupling(t *domain.Task, status *string, completed *bool) {
	if status != nil {
		t.Status = *status
		t.Completed = policy.CompletedFor(*status)
		return
	}
	if completed != nil {
		t.Completed = *completed
		if *completed {
			t.Status = "done"
		} else if t.Status == "done" {
			t.Status = "in-progress"
		}
	}
}

func (e Engine) UpdateTask(ctx context.Context, actor policy.Actor, id string, change policy.TaskChange) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	proj, err := e.taskProjectSnapshot(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	if err := policy.CanUpdateTask(actor, policyTask(t), proj, change); err != nil {
		return domain.Task{}, err
	}
	if change.Status != nil && !policy.ValidTaskStatus(*change.Status) {
		return domain.Task{}, fmt.Errorf("invalid status %q", *change.Status)
	}
	if change.Priority != nil && !validPriority(*change.Priority) {
		return domain.Task{}, fmt.Errorf("invalid priority %q", *change.Priority)
	}
	if change.Title != nil {
		if strings.TrimSpace(*change.Title) == "" {
			return domain.Task{}, errors.New("title is required")
		}
		t.Title = *change.Title
	}
	if change.Description != nil {
		t.Description = *change.Description
	}
	if change.Priority != nil {
		t.Priority = *change.Priority
	}
	if change.DueDate != nil {
		t.DueDate = optionalString(*change.DueDate)
	}
	if change.ProjectID != nil {
		if *change.ProjectID == "" {
			t.ProjectID = nil
		} else {
			if _, err := e.Repo.GetProject(ctx, *change.ProjectID); err != nil {
				return domain.Task{}, err
			}
			t.ProjectID = change.ProjectID
		}
	}
	if change.MilestoneID != nil {
		if *change.MilestoneID == "" {
			t.MilestoneID = nil
		} else {
			m, err := e.Repo.GetMilestone(ctx, *change.MilestoneID)
			if err != nil {
				return domain.Task{}, err
			}
			if t.ProjectID == nil || m.ProjectID != *t.ProjectID {
				return domain.Task{}, errors.New("invalid milestone: not in task project")
			}
			t.MilestoneID = change.MilestoneID
		}
	}
	if change.EstimatedHours != nil {
		t.EstimatedHours = change.EstimatedHours
	}
	if change.ActualHours != nil {
		t.ActualHours = *change.ActualHours
	}
	if change.AssigneesSet {
		for _, uid := range change.Assignees {
			if _, err := e.Repo.GetUser(ctx, uid); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return domain.Task{}, fmt.Errorf("invalid assignee %s", uid)
				}
				return domain.Task{}, err
			}
		}
		t.AssigneeIDs = change.Assignees
	}
	applyStatusCoupling(&t, change.Status, change.Completed)
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t, change.AssigneesSet); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", t.ID, actor.ID, events.EventPayload{"status": t.Status, "completed": t.Completed}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTaskStatus is the dedicated transition path. Employees qualify
// through ownership, assignment, or membership in the task's project team.
func (e Engine) UpdateTaskStatus(ctx context.Context, actor policy.Actor, id, status string) (domain.Task, error) {
	if !policy.ValidTaskStatus(status) {
		return domain.Task{}, fmt.Errorf("invalid status %q", status)
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	member := false
	if actor.Role == policy.RoleEmployee && t.ProjectID != nil {
		member, err = e.Repo.IsProjectMember(ctx, *t.ProjectID, actor.ID)
		if err != nil {
			return domain.Task{}, err
		}
	}
	if err := policy.CanUpdateTaskStatus(actor, policyTask(t), member); err != nil {
		return domain.Task{}, err
	}
	from := t.Status
	t.Status = status
	t.Completed = policy.CompletedFor(status)
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t, false); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.status.changed", "task", t.ID, actor.ID, events.EventPayload{"from": from, "to": status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, actor policy.Actor, id string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.CanDeleteTask(actor, policyTask(t)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AddComment requires read access to the parent task, so commenting can
// never reach a task the actor cannot see.
func (e Engine) AddComment(ctx context.Context, actor policy.Actor, taskID, body string) (domain.Comment, error) {
	if err := policy.CanAccess(actor, policy.ActionTaskComment); err != nil {
		return domain.Comment{}, err
	}
	if strings.TrimSpace(body) == "" {
		return domain.Comment{}, errors.New("body is required")
	}
	t, err := e.GetTask(ctx, actor, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        newID(),
		TaskID:    t.ID,
		AuthorID:  actor.ID,
		Body:      body,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.commented", "task", t.ID, actor.ID, nil); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (e Engine) ListComments(ctx context.Context, actor policy.Actor, taskID string) ([]domain.Comment, error) {
	t, err := e.GetTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, t.ID)
}

// AddSubtask is manager/admin only; assignment or team membership does
// not qualify.
func (e Engine) AddSubtask(ctx context.Context, actor policy.Actor, taskID, title string) (domain.Subtask, error) {
	if err := policy.CanAccess(actor, policy.ActionTaskSubtask); err != nil {
		return domain.Subtask{}, err
	}
	if strings.TrimSpace(title) == "" {
		return domain.Subtask{}, errors.New("title is required")
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Subtask{}, err
	}
	s := domain.Subtask{
		ID:        newID(),
		TaskID:    t.ID,
		Title:     title,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Subtask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSubtask(ctx, tx, s); err != nil {
		return domain.Subtask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Subtask{}, err
	}
	return s, nil
}

func (e Engine) ListSubtasks(ctx context.Context, actor policy.Actor, taskID string) ([]domain.Subtask, error) {
	t, err := e.GetTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListSubtasks(ctx, t.ID)
}

func (e Engine) CompleteSubtask(ctx context.Context, actor policy.Actor, taskID, subtaskID string, completed bool) error {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	member := false
	if actor.Role == policy.RoleEmployee && t.ProjectID != nil {
		member, err = e.Repo.IsProjectMember(ctx, *t.ProjectID, actor.ID)
		if err != nil {
			return err
		}
	}
	if err := policy.CanUpdateTaskStatus(actor, policyTask(t), member); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetSubtaskCompleted(ctx, tx, subtaskID, completed); err != nil {
		return err
	}
	return tx.Commit()
}
