package engine

import (
	"context"

	"taskline/internal/domain"
	"taskline/internal/policy"
	"taskline/internal/repo"
)

// AdminDashboard is the org-wide summary.
type AdminDashboard struct {
	Users            UserStats      `json:"users"`
	ProjectsByStatus map[string]int `json:"projects_by_status"`
	TasksByStatus    map[string]int `json:"tasks_by_status"`
	RecentEvents     []domain.Event `json:"recent_events"`
}

func (e Engine) DashboardAdmin(ctx context.Context, actor policy.Actor) (AdminDashboard, error) {
	if err := policy.CanAccess(actor, policy.ActionDashboardAdmin); err != nil {
		return AdminDashboard{}, err
	}
	users, err := e.UserStats(ctx, actor)
	if err != nil {
		return AdminDashboard{}, err
	}
	projects, err := e.Repo.CountProjectsByStatus(ctx, policy.ProjectScope{All: true})
	if err != nil {
		return AdminDashboard{}, err
	}
	tasks, err := e.Repo.CountTasksByStatus(ctx, policy.TaskScope{All: true}, nil)
	if err != nil {
		return AdminDashboard{}, err
	}
	recent, err := e.Repo.LatestEvents(ctx, 20, 0, "", "", "")
	if err != nil {
		return AdminDashboard{}, err
	}
	return AdminDashboard{Users: users, ProjectsByStatus: projects, TasksByStatus: tasks, RecentEvents: recent}, nil
}

// ManagerDashboard summarizes the manager's own slice: owned or joined
// projects and the tasks visible through them.
type ManagerDashboard struct {
	ProjectsByStatus map[string]int `json:"projects_by_status"`
	TasksByStatus    map[string]int `json:"tasks_by_status"`
	ProjectCount     int            `json:"project_count"`
	OpenTasks        int            `json:"open_tasks"`
}

func (e Engine) DashboardManager(ctx context.Context, actor policy.Actor) (ManagerDashboard, error) {
	if err := policy.CanAccess(actor, policy.ActionDashboardMgr); err != nil {
		return ManagerDashboard{}, err
	}
	scope := policy.ScopeProjects(actor)
	projects, err := e.Repo.CountProjectsByStatus(ctx, scope)
	if err != nil {
		return ManagerDashboard{}, err
	}
	projectIDs, err := e.visibleProjectIDs(ctx, actor)
	if err != nil {
		return ManagerDashboard{}, err
	}
	tasks, err := e.Repo.CountTasksByStatus(ctx, policy.ScopeTasks(actor), projectIDs)
	if err != nil {
		return ManagerDashboard{}, err
	}
	d := ManagerDashboard{ProjectsByStatus: projects, TasksByStatus: tasks}
	for _, n := range projects {
		d.ProjectCount += n
	}
	for status, n := range tasks {
		if status != "done" {
			d.OpenTasks += n
		}
	}
	return d, nil
}

// EmployeeDashboard is the personal view: assigned work and the running
// timer, if any.
type EmployeeDashboard struct {
	TasksByStatus map[string]int    `json:"tasks_by_status"`
	OpenTasks     int               `json:"open_tasks"`
	ProjectCount  int               `json:"project_count"`
	ActiveTimer   *domain.TimeEntry `json:"active_timer,omitempty"`
}

func (e Engine) DashboardEmployee(ctx context.Context, actor policy.Actor) (EmployeeDashboard, error) {
	if err := policy.CanAccess(actor, policy.ActionDashboardSelf); err != nil {
		return EmployeeDashboard{}, err
	}
	projectIDs, err := e.visibleProjectIDs(ctx, actor)
	if err != nil {
		return EmployeeDashboard{}, err
	}
	tasks, err := e.Repo.CountTasksByStatus(ctx, policy.ScopeTasks(actor), projectIDs)
	if err != nil {
		return EmployeeDashboard{}, err
	}
	d := EmployeeDashboard{TasksByStatus: tasks, ProjectCount: len(projectIDs)}
	if policy.ScopeTasks(actor).All {
		projects, err := e.Repo.CountProjectsByStatus(ctx, policy.ProjectScope{All: true})
		if err != nil {
			return EmployeeDashboard{}, err
		}
		d.ProjectCount = 0
		for _, n := range projects {
			d.ProjectCount += n
		}
	}
	for status, n := range tasks {
		if status != "done" {
			d.OpenTasks += n
		}
	}
	running, err := e.Repo.ListTimeEntries(ctx, repo.TimeEntryFilters{UserID: actor.ID, Limit: 1})
	if err != nil {
		return EmployeeDashboard{}, err
	}
	if len(running) > 0 && running[0].IsActive {
		d.ActiveTimer = &running[0]
	}
	return d, nil
}

// Analytics is a per-user productivity summary.
type Analytics struct {
	UserID        string         `json:"user_id"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
	TasksDone     int            `json:"tasks_done"`
	Time          repo.TimeStats `json:"time"`
}

// SelfAnalytics reports the actor's own numbers in a window.
func (e Engine) SelfAnalytics(ctx context.Context, actor policy.Actor, from, to string) (Analytics, error) {
	if err := policy.CanAccess(actor, policy.ActionAnalyticsSelf); err != nil {
		return Analytics{}, err
	}
	return e.analyticsFor(ctx, actor, from, to)
}

func (e Engine) analyticsFor(ctx context.Context, subject policy.Actor, from, to string) (Analytics, error) {
	projectIDs, err := e.visibleProjectIDs(ctx, subject)
	if err != nil {
		return Analytics{}, err
	}
	tasks, err := e.Repo.CountTasksByStatus(ctx, policy.TaskScope{UserID: subject.ID}, projectIDs)
	if err != nil {
		return Analytics{}, err
	}
	stats, err := e.Repo.TimeStatsFor(ctx, subject.ID, from, to)
	if err != nil {
		return Analytics{}, err
	}
	return Analytics{UserID: subject.ID, TasksByStatus: tasks, TasksDone: tasks["done"], Time: stats}, nil
}

// TeamAnalytics reports every active user's numbers; admin only.
func (e Engine) TeamAnalytics(ctx context.Context, actor policy.Actor, from, to string) ([]Analytics, error) {
	if err := policy.CanAccess(actor, policy.ActionAnalyticsTeam); err != nil {
		return nil, err
	}
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []Analytics
	for _, u := range users {
		if !u.IsActive {
			continue
		}
		role, err := policy.ParseRole(u.Role)
		if err != nil {
			continue
		}
		a, err := e.analyticsFor(ctx, policy.Actor{ID: u.ID, Role: role}, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// RecentEvents exposes the audit trail to admins.
func (e Engine) RecentEvents(ctx context.Context, actor policy.Actor, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if err := policy.CanAccess(actor, policy.ActionDashboardAdmin); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, limit, cursor, evtType, entityKind, entityID)
}
