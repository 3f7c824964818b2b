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

var milestoneStatuses = []string{"pending", "in-progress", "completed"}

func validMilestoneStatus(s string) bool {
	for _, v := range milestoneStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ListMilestones shows a project's milestones to anyone who can see the
// project itself.
func (e Engine) ListMilestones(ctx context.Context, actor policy.Actor, projectID string) ([]domain.Milestone, error) {
	if err := policy.CanAccess(actor, policy.ActionMilestoneRead); err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !policy.CanReadProject(actor, policyProject(p)) {
		return nil, repo.ErrNotFound
	}
	return e.Repo.ListMilestones(ctx, projectID)
}

// milestoneProject checks the actor may manage milestones on the project.
func (e Engine) milestoneProject(ctx context.Context, actor policy.Actor, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := policy.CanMutateProject(actor, policy.ActionMilestoneManage, policyProject(p)); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// MilestoneCreateOptions are parameters for creating a milestone.
type MilestoneCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	DueDate     string
	Status      string
	AssigneeIDs []string
}

func (e Engine) CreateMilestone(ctx context.Context, actor policy.Actor, opts MilestoneCreateOptions) (domain.Milestone, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Milestone{}, errors.New("title is required")
	}
	if _, err := e.milestoneProject(ctx, actor, opts.ProjectID); err != nil {
		return domain.Milestone{}, err
	}
	if opts.Status == "" {
		opts.Status = "pending"
	}
	if !validMilestoneStatus(opts.Status) {
		return domain.Milestone{}, fmt.Errorf("invalid status %q", opts.Status)
	}
	for _, uid := range opts.AssigneeIDs {
		if _, err := e.Repo.GetUser(ctx, uid); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Milestone{}, fmt.Errorf("invalid assignee %s", uid)
			}
			return domain.Milestone{}, err
		}
	}
	now := e.timestamp()
	m := domain.Milestone{
		ID:          newID(),
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		DueDate:     optionalString(opts.DueDate),
		Status:      opts.Status,
		AssigneeIDs: opts.AssigneeIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if m.Status == "completed" {
		m.Progress = 100
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMilestone(ctx, tx, m); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Events.Append(ctx, tx, "milestone.created", "milestone", m.ID, actor.ID, events.EventPayload{"project_id": m.ProjectID, "title": m.Title}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// MilestoneUpdate carries optional changes to a milestone.
type MilestoneUpdate struct {
	Title        *string
	Description  *string
	DueDate      *string
	Status       *string
	Progress     *int
	Assignees    []string
	AssigneesSet bool
}

func (e Engine) UpdateMilestone(ctx context.Context, actor policy.Actor, id string, upd MilestoneUpdate) (domain.Milestone, error) {
	m, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return domain.Milestone{}, err
	}
	if _, err := e.milestoneProject(ctx, actor, m.ProjectID); err != nil {
		return domain.Milestone{}, err
	}
	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return domain.Milestone{}, errors.New("title is required")
		}
		m.Title = *upd.Title
	}
	if upd.Description != nil {
		m.Description = *upd.Description
	}
	if upd.DueDate != nil {
		m.DueDate = optionalString(*upd.DueDate)
	}
	if upd.Status != nil {
		if !validMilestoneStatus(*upd.Status) {
			return domain.Milestone{}, fmt.Errorf("invalid status %q", *upd.Status)
		}
		m.Status = *upd.Status
		if m.Status == "completed" {
			m.Progress = 100
		}
	}
	if upd.Progress != nil {
		if *upd.Progress < 0 || *upd.Progress > 100 {
			return domain.Milestone{}, errors.New("progress must be between 0 and 100")
		}
		m.Progress = *upd.Progress
	}
	if upd.AssigneesSet {
		for _, uid := range upd.Assignees {
			if _, err := e.Repo.GetUser(ctx, uid); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return domain.Milestone{}, fmt.Errorf("invalid assignee %s", uid)
				}
				return domain.Milestone{}, err
			}
		}
		m.AssigneeIDs = upd.Assignees
	}
	m.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMilestone(ctx, tx, m, upd.AssigneesSet); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Events.Append(ctx, tx, "milestone.updated", "milestone", m.ID, actor.ID, events.EventPayload{"status": m.Status, "progress": m.Progress}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

func (e Engine) DeleteMilestone(ctx context.Context, actor policy.Actor, id string) error {
	m, err := e.Repo.GetMilestone(ctx, id)
	if err != nil {
		return err
	}
	if _, err := e.milestoneProject(ctx, actor, m.ProjectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMilestone(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "milestone.deleted", "milestone", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
