package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/policy"
	"taskline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string { return uuid.NewString() }

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func policyProject(p domain.Project) policy.Project {
	ids := make([]string, 0, len(p.Team))
	for _, m := range p.Team {
		ids = append(ids, m.UserID)
	}
	return policy.Project{ID: p.ID, OwnerID: p.OwnerID, TeamIDs: ids}
}

func policyTask(t domain.Task) policy.Task {
	return policy.Task{ID: t.ID, OwnerID: t.OwnerID, ProjectID: t.ProjectID, AssigneeIDs: t.AssigneeIDs}
}

var projectStatuses = []string{"planning", "active", "on-hold", "completed", "cancelled"}
var priorities = []string{"Low", "Medium", "High", "Critical"}

func validProjectStatus(s string) bool {
	for _, v := range projectStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func validPriority(s string) bool {
	for _, v := range priorities {
		if v == s {
			return true
		}
	}
	return false
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Name            string
	Description     string
	Status          string
	Priority        string
	StartDate       string
	EndDate         string
	BudgetAllocated *float64
	TeamUserIDs     []string
}

func (e Engine) CreateProject(ctx context.Context, actor policy.Actor, opts ProjectCreateOptions) (domain.Project, error) {
	if err := policy.CanAccess(actor, policy.ActionProjectCreate); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.Status == "" {
		opts.Status = "planning"
	}
	if !validProjectStatus(opts.Status) {
		return domain.Project{}, fmt.Errorf("invalid status %q", opts.Status)
	}
	if opts.Priority == "" {
		opts.Priority = "Medium"
	}
	if !validPriority(opts.Priority) {
		return domain.Project{}, fmt.Errorf("invalid priority %q", opts.Priority)
	}
	now := e.timestamp()
	p := domain.Project{
		ID:              newID(),
		Name:            opts.Name,
		Description:     opts.Description,
		Status:          opts.Status,
		Priority:        opts.Priority,
		StartDate:       optionalString(opts.StartDate),
		EndDate:         optionalString(opts.EndDate),
		BudgetAllocated: opts.BudgetAllocated,
		OwnerID:         actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	seen := map[string]bool{}
	for _, uid := range opts.TeamUserIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		if _, err := e.Repo.GetUserTx(ctx, tx, uid); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Project{}, fmt.Errorf("invalid team member %s", uid)
			}
			return domain.Project{}, err
		}
		m := domain.TeamMember{UserID: uid, Role: "member", JoinedAt: now}
		if err := e.Repo.AddTeamMember(ctx, tx, p.ID, m); err != nil {
			return domain.Project{}, err
		}
		p.Team = append(p.Team, m)
	}
	if err := e.Events.Append(ctx, tx, "project.created", "project", p.ID, actor.ID, events.EventPayload{"name": p.Name, "status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

type ProjectFilters struct {
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (e Engine) ListProjects(ctx context.Context, actor policy.Actor, f ProjectFilters) ([]domain.Project, error) {
	if err := policy.CanAccess(actor, policy.ActionProjectList); err != nil {
		return nil, err
	}
	return e.Repo.ListProjectsFor(ctx, policy.ScopeProjects(actor), repo.ProjectFilters{
		Status:          f.Status,
		Limit:           f.Limit,
		CursorCreatedAt: f.CursorCreatedAt,
		CursorID:        f.CursorID,
	})
}

// GetProject returns a project the actor can see. An invisible project
// reads as not found rather than forbidden.
func (e Engine) GetProject(ctx context.Context, actor policy.Actor, id string) (domain.Project, error) {
	if err := policy.CanAccess(actor, policy.ActionProjectRead); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if !policy.CanReadProject(actor, policyProject(p)) {
		return domain.Project{}, repo.ErrNotFound
	}
	return p, nil
}

// ProjectUpdate carries optional project field changes.
type ProjectUpdate struct {
	Name            *string
	Description     *string
	Status          *string
	Priority        *string
	StartDate       *string
	EndDate         *string
	BudgetAllocated *float64
	BudgetSpent     *float64
	Progress        *int
}

func (e Engine) UpdateProject(ctx context.Context, actor policy.Actor, id string, upd ProjectUpdate) (domain.Project, error) {
	p, err := e.GetProject(ctx, actor, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := policy.CanMutateProject(actor, policy.ActionProjectUpdate, policyProject(p)); err != nil {
		return domain.Project{}, err
	}
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return domain.Project{}, errors.New("name is required")
		}
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.Status != nil {
		if !validProjectStatus(*upd.Status) {
			return domain.Project{}, fmt.Errorf("invalid status %q", *upd.Status)
		}
		p.Status = *upd.Status
	}
	if upd.Priority != nil {
		if !validPriority(*upd.Priority) {
			return domain.Project{}, fmt.Errorf("invalid priority %q", *upd.Priority)
		}
		p.Priority = *upd.Priority
	}
	if upd.StartDate != nil {
		p.StartDate = optionalString(*upd.StartDate)
	}
	if upd.EndDate != nil {
		p.EndDate = optionalString(*upd.EndDate)
	}
	if upd.BudgetAllocated != nil {
		p.BudgetAllocated = upd.BudgetAllocated
	}
	if upd.BudgetSpent != nil {
		p.BudgetSpent = *upd.BudgetSpent
	}
	if upd.Progress != nil {
		if *upd.Progress < 0 || *upd.Progress > 100 {
			return domain.Project{}, errors.New("invalid progress: must be 0-100")
		}
		p.Progress = *upd.Progress
	}
	p.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", "project", p.ID, actor.ID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, actor policy.Actor, id string) error {
	p, err := e.GetProject(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := policy.CanMutateProject(actor, policy.ActionProjectDelete, policyProject(p)); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", "project", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddTeamMember(ctx context.Context, actor policy.Actor, projectID, userID, role string) (domain.Project, error) {
	p, err := e.GetProject(ctx, actor, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := policy.CanMutateProject(actor, policy.ActionProjectTeam, policyProject(p)); err != nil {
		return domain.Project{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Project{}, errors.New("user_id is required")
	}
	if role == "" {
		role = "member"
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, fmt.Errorf("invalid team member %s", userID)
		}
		return domain.Project{}, err
	}
	// duplicate membership is a validation error, not an auth one
	for _, m := range p.Team {
		if m.UserID == userID {
			return domain.Project{}, fmt.Errorf("user %s is already a team member", userID)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.AddTeamMember(ctx, tx, projectID, domain.TeamMember{UserID: userID, Role: role, JoinedAt: e.timestamp()}); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.member.added", "project", projectID, actor.ID, events.EventPayload{"user_id": userID, "role": role}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) RemoveTeamMember(ctx context.Context, actor policy.Actor, projectID, userID string) (domain.Project, error) {
	p, err := e.GetProject(ctx, actor, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := policy.CanMutateProject(actor, policy.ActionProjectTeam, policyProject(p)); err != nil {
		return domain.Project{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveTeamMember(ctx, tx, projectID, userID); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.member.removed", "project", projectID, actor.ID, events.EventPayload{"user_id": userID}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// ProjectStats summarizes one visible project.
type ProjectStats struct {
	ProjectID      string  `json:"project_id"`
	TaskTotal      int     `json:"task_total"`
	TaskDone       int     `json:"task_done"`
	Progress       int     `json:"progress"`
	TeamSize       int     `json:"team_size"`
	MilestoneCount int     `json:"milestone_count"`
	TrackedMinutes int     `json:"tracked_minutes"`
	BudgetSpent    float64 `json:"budget_spent"`
}

func (e Engine) ProjectStats(ctx context.Context, actor policy.Actor, id string) (ProjectStats, error) {
	if err := policy.CanAccess(actor, policy.ActionProjectStats); err != nil {
		return ProjectStats{}, err
	}
	p, err := e.GetProject(ctx, actor, id)
	if err != nil {
		return ProjectStats{}, err
	}
	total, done, err := e.Repo.CountProjectTasks(ctx, id)
	if err != nil {
		return ProjectStats{}, err
	}
	milestones, err := e.Repo.ListMilestones(ctx, id)
	if err != nil {
		return ProjectStats{}, err
	}
	minutes, err := e.Repo.TotalMinutesByProject(ctx, []string{id})
	if err != nil {
		return ProjectStats{}, err
	}
	return ProjectStats{
		ProjectID:      id,
		TaskTotal:      total,
		TaskDone:       done,
		Progress:       p.Progress,
		TeamSize:       len(p.Team),
		MilestoneCount: len(milestones),
		TrackedMinutes: minutes[id],
		BudgetSpent:    p.BudgetSpent,
	}, nil
}
