package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskline/internal/db"
	"taskline/internal/migrate"
	"taskline/internal/policy"
	"taskline/internal/repo"
)

type fixture struct {
	engine   Engine
	admin    policy.Actor
	manager  policy.Actor
	manager2 policy.Actor
	employee policy.Actor
	clock    *time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &start
	e := New(conn, nil)
	e.Now = func() time.Time {
		*clock = clock.Add(time.Second)
		return *clock
	}

	f := fixture{engine: e, clock: clock}
	ctx := context.Background()
	mk := func(name, email, role string) policy.Actor {
		u, err := e.CreateUser(ctx, policy.Actor{ID: "bootstrap", Role: policy.RoleAdmin}, UserCreateOptions{
			Name: name, Email: email, Password: "secret1", Role: role,
		})
		require.NoError(t, err)
		parsed, err := policy.ParseRole(u.Role)
		require.NoError(t, err)
		return policy.Actor{ID: u.ID, Role: parsed}
	}
	f.admin = mk("Ada", "ada@example.com", "admin")
	f.manager = mk("Mona", "mona@example.com", "manager")
	f.manager2 = mk("Max", "max@example.com", "manager")
	f.employee = mk("Eli", "eli@example.com", "employee")
	return f
}

func TestProjectVisibilityScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.engine.CreateProject(ctx, f.manager, ProjectCreateOptions{Name: "mine"})
	require.NoError(t, err)
	_, err = f.engine.CreateProject(ctx, f.manager2, ProjectCreateOptions{Name: "theirs"})
	require.NoError(t, err)
	shared, err := f.engine.CreateProject(ctx, f.manager2, ProjectCreateOptions{Name: "shared", TeamUserIDs: []string{f.employee.ID}})
	require.NoError(t, err)

	all, err := f.engine.ListProjects(ctx, f.admin, ProjectFilters{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	managerView, err := f.engine.ListProjects(ctx, f.manager, ProjectFilters{})
	require.NoError(t, err)
	require.Len(t, managerView, 1)
	require.Equal(t, mine.ID, managerView[0].ID)

	employeeView, err := f.engine.ListProjects(ctx, f.employee, ProjectFilters{})
	require.NoError(t, err)
	require.Len(t, employeeView, 1)
	require.Equal(t, shared.ID, employeeView[0].ID)
}

func TestInvisibleProjectReadsAsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.CreateProject(ctx, f.manager2, ProjectCreateOptions{Name: "private"})
	require.NoError(t, err)

	_, err = f.engine.GetProject(ctx, f.employee, p.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = f.engine.GetProject(ctx, f.manager, p.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = f.engine.GetProject(ctx, f.admin, p.ID)
	require.NoError(t, err)
}

func TestTaskVisibilityThroughProjectMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.CreateProject(ctx, f.manager2, ProjectCreateOptions{Name: "shared", TeamUserIDs: []string{f.employee.ID}})
	require.NoError(t, err)
	inProject, err := f.engine.CreateTask(ctx, f.manager2, TaskCreateOptions{Title: "in project", ProjectID: p.ID})
	require.NoError(t, err)
	standalone, err := f.engine.CreateTask(ctx, f.manager2, TaskCreateOptions{Title: "standalone"})
	require.NoError(t, err)

	visible, err := f.engine.ListTasks(ctx, f.employee, TaskListFilters{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, inProject.ID, visible[0].ID)

	// single read of an out-of-scope task collapses to not found
	_, err = f.engine.GetTask(ctx, f.employee, standalone.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = f.engine.GetTask(ctx, f.employee, inProject.ID)
	require.NoError(t, err)
}

func TestTaskCreationRequiresProjectOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// manager2 is on the team of manager's project, but does not own it
	p, err := f.engine.CreateProject(ctx, f.manager, ProjectCreateOptions{Name: "owned", TeamUserIDs: []string{f.manager2.ID}})
	require.NoError(t, err)

	_, err = f.engine.CreateTask(ctx, f.manager2, TaskCreateOptions{Title: "intruding", ProjectID: p.ID})
	var denied policy.DeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, policy.ReasonNotOwner, denied.Reason)

	// the owner and an admin both may
	_, err = f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "owner's", ProjectID: p.ID})
	require.NoError(t, err)
	_, err = f.engine.CreateTask(ctx, f.admin, TaskCreateOptions{Title: "admin's", ProjectID: p.ID})
	require.NoError(t, err)
}

func TestSubtaskCreationIsManagerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "split me", AssigneeIDs: []string{f.employee.ID}})
	require.NoError(t, err)

	// even the assignee may not add subtasks
	_, err = f.engine.AddSubtask(ctx, f.employee, task.ID, "not yours")
	var denied policy.DeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, policy.ReasonInsufficientRole, denied.Reason)

	sub, err := f.engine.AddSubtask(ctx, f.manager, task.ID, "step one")
	require.NoError(t, err)

	// completing an existing subtask stays open to the assignee
	require.NoError(t, f.engine.CompleteSubtask(ctx, f.employee, task.ID, sub.ID, true))
}

func TestEmployeeUpdateFieldGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "work", AssigneeIDs: []string{f.employee.ID}})
	require.NoError(t, err)

	status := "in-progress"
	updated, err := f.engine.UpdateTask(ctx, f.employee, task.ID, policy.TaskChange{Status: &status})
	require.NoError(t, err)
	require.Equal(t, "in-progress", updated.Status)

	title := "renamed"
	_, err = f.engine.UpdateTask(ctx, f.employee, task.ID, policy.TaskChange{Title: &title})
	var denied policy.DeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, policy.ReasonRestrictedFields, denied.Reason)
	require.Contains(t, denied.Fields, "title")

	// the same change passes for the manager who owns the task
	_, err = f.engine.UpdateTask(ctx, f.manager, task.ID, policy.TaskChange{Title: &title})
	require.NoError(t, err)
}

func TestEmployeeNotAssignedCannotUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "unassigned"})
	require.NoError(t, err)

	status := "done"
	_, err = f.engine.UpdateTask(ctx, f.employee, task.ID, policy.TaskChange{Status: &status})
	var denied policy.DeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, policy.ReasonNotAssigned, denied.Reason)
}

func TestDeleteCoarserThanUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "doomed"})
	require.NoError(t, err)

	// manager2 neither owns the task nor its project, so update is refused
	title := "renamed"
	_, err = f.engine.UpdateTask(ctx, f.manager2, task.ID, policy.TaskChange{Title: &title})
	var denied policy.DeniedError
	require.ErrorAs(t, err, &denied)

	// but any manager may delete
	require.NoError(t, f.engine.DeleteTask(ctx, f.manager2, task.ID))
	_, err = f.engine.GetTask(ctx, f.admin, task.ID)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStatusDoneCouplesCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "finish me"})
	require.NoError(t, err)
	require.False(t, task.Completed)

	done, err := f.engine.UpdateTaskStatus(ctx, f.manager, task.ID, "done")
	require.NoError(t, err)
	require.True(t, done.Completed)

	reopened, err := f.engine.UpdateTaskStatus(ctx, f.manager, task.ID, "review")
	require.NoError(t, err)
	require.False(t, reopened.Completed)

	// completed alone drags the status across the done boundary
	completed := true
	viaFlag, err := f.engine.UpdateTask(ctx, f.manager, task.ID, policy.TaskChange{Completed: &completed})
	require.NoError(t, err)
	require.Equal(t, "done", viaFlag.Status)
}

func TestStatusUpdateProjectTeamFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.CreateProject(ctx, f.manager, ProjectCreateOptions{Name: "team", TeamUserIDs: []string{f.employee.ID}})
	require.NoError(t, err)
	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "team task", ProjectID: p.ID})
	require.NoError(t, err)

	// not owner, not assignee, but a member of the task's project team
	updated, err := f.engine.UpdateTaskStatus(ctx, f.employee, task.ID, "in-progress")
	require.NoError(t, err)
	require.Equal(t, "in-progress", updated.Status)
}

func TestSingleActiveTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.StartTimer(ctx, f.employee, TimerStartOptions{Description: "one"})
	require.NoError(t, err)
	require.True(t, first.IsActive)

	*f.clock = f.clock.Add(30 * time.Minute)
	second, err := f.engine.StartTimer(ctx, f.employee, TimerStartOptions{Description: "two"})
	require.NoError(t, err)

	entries, err := f.engine.ListTimeEntries(ctx, f.employee, TimeEntryFilters{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	active := 0
	for _, e := range entries {
		if e.IsActive {
			active++
			require.Equal(t, second.ID, e.ID)
		} else {
			require.Equal(t, first.ID, e.ID)
			require.NotNil(t, e.EndTime)
			require.Equal(t, 30, e.DurationMinutes)
		}
	}
	require.Equal(t, 1, active)
}

func TestStopTimerRecordsDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.engine.StartTimer(ctx, f.employee, TimerStartOptions{Billable: true})
	require.NoError(t, err)
	*f.clock = f.clock.Add(90 * time.Minute)
	stopped, err := f.engine.StopTimer(ctx, f.employee, entry.ID)
	require.NoError(t, err)
	require.False(t, stopped.IsActive)
	require.Equal(t, 90, stopped.DurationMinutes)

	_, err = f.engine.StopTimer(ctx, f.employee, entry.ID)
	require.Error(t, err)
}

func TestTimeEntriesScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.StartTimer(ctx, f.employee, TimerStartOptions{})
	require.NoError(t, err)
	_, err = f.engine.StartTimer(ctx, f.manager, TimerStartOptions{})
	require.NoError(t, err)

	// a non-admin asking for someone else's entries still only sees their own
	own, err := f.engine.ListTimeEntries(ctx, f.manager, TimeEntryFilters{UserID: f.employee.ID})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, f.manager.ID, own[0].UserID)

	all, err := f.engine.ListTimeEntries(ctx, f.admin, TimeEntryFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestDuplicateTeamMemberIsValidationError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.CreateProject(ctx, f.manager, ProjectCreateOptions{Name: "crew"})
	require.NoError(t, err)
	_, err = f.engine.AddTeamMember(ctx, f.manager, p.ID, f.employee.ID, "member")
	require.NoError(t, err)
	_, err = f.engine.AddTeamMember(ctx, f.manager, p.ID, f.employee.ID, "member")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already a team member")
}

func TestMutationsWriteEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.CreateProject(ctx, f.manager, ProjectCreateOptions{Name: "audited"})
	require.NoError(t, err)
	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "audited", ProjectID: p.ID})
	require.NoError(t, err)
	_, err = f.engine.UpdateTaskStatus(ctx, f.manager, task.ID, "done")
	require.NoError(t, err)

	evts, err := f.engine.RecentEvents(ctx, f.admin, 10, 0, "", "task", task.ID)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	// newest first
	require.Equal(t, "task.status.changed", evts[0].Type)
	require.Equal(t, "task.created", evts[1].Type)
}

func TestAuthenticateRefusesDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Authenticate(ctx, "eli@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.engine.Authenticate(ctx, "eli@example.com", "wrong-password")
	require.EqualError(t, err, "invalid credentials")

	inactive := false
	_, err = f.engine.UpdateUser(ctx, f.admin, f.employee.ID, UserUpdate{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.engine.Authenticate(ctx, "eli@example.com", "secret1")
	require.EqualError(t, err, "account is deactivated")
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RegisterUser(ctx, UserCreateOptions{Name: "X", Email: "x@example.com", Password: "secret1", Role: "admin"})
	require.Error(t, err)
	_, err = f.engine.RegisterUser(ctx, UserCreateOptions{Name: "X", Email: "x@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = f.engine.RegisterUser(ctx, UserCreateOptions{Name: "X2", Email: "x@example.com", Password: "secret1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already registered")
}

func TestMilestoneManagementRequiresProjectOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.CreateProject(ctx, f.manager, ProjectCreateOptions{Name: "planned"})
	require.NoError(t, err)

	m, err := f.engine.CreateMilestone(ctx, f.manager, MilestoneCreateOptions{ProjectID: p.ID, Title: "v1"})
	require.NoError(t, err)

	_, err = f.engine.CreateMilestone(ctx, f.manager2, MilestoneCreateOptions{ProjectID: p.ID, Title: "intruder"})
	var denied policy.DeniedError
	require.ErrorAs(t, err, &denied)

	done := "completed"
	updated, err := f.engine.UpdateMilestone(ctx, f.admin, m.ID, MilestoneUpdate{Status: &done})
	require.NoError(t, err)
	require.Equal(t, 100, updated.Progress)
}

func TestProjectStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.CreateProject(ctx, f.manager, ProjectCreateOptions{Name: "measured", TeamUserIDs: []string{f.employee.ID}})
	require.NoError(t, err)
	t1, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "a", ProjectID: p.ID})
	require.NoError(t, err)
	_, err = f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "b", ProjectID: p.ID})
	require.NoError(t, err)
	_, err = f.engine.UpdateTaskStatus(ctx, f.manager, t1.ID, "done")
	require.NoError(t, err)

	stats, err := f.engine.ProjectStats(ctx, f.manager, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TaskTotal)
	require.Equal(t, 1, stats.TaskDone)
	require.Equal(t, 1, stats.TeamSize)
}

func TestDashboardsRespectRoleGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.DashboardAdmin(ctx, f.manager)
	var denied policy.DeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, policy.ReasonInsufficientRole, denied.Reason)

	_, err = f.engine.DashboardAdmin(ctx, f.admin)
	require.NoError(t, err)
	_, err = f.engine.DashboardManager(ctx, f.employee)
	require.ErrorAs(t, err, &denied)
	_, err = f.engine.DashboardEmployee(ctx, f.employee)
	require.NoError(t, err)
}

func TestCommentsRequireTaskVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.engine.CreateTask(ctx, f.manager, TaskCreateOptions{Title: "private"})
	require.NoError(t, err)

	_, err = f.engine.AddComment(ctx, f.employee, task.ID, "hello?")
	require.ErrorIs(t, err, repo.ErrNotFound)

	c, err := f.engine.AddComment(ctx, f.manager, task.ID, "note to self")
	require.NoError(t, err)
	require.Equal(t, f.manager.ID, c.AuthorID)

	list, err := f.engine.ListComments(ctx, f.manager, task.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
