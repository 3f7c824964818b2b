package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestParseRole(t *testing.T) {
	for _, s := range []string{"admin", "manager", "employee"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(r))
	}
	for _, s := range []string{"", "Admin", "superuser", "guest"} {
		_, err := ParseRole(s)
		assert.Error(t, err, "role %q should not parse", s)
	}
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleManager))
	assert.True(t, RoleAdmin.AtLeast(RoleEmployee))
	assert.True(t, RoleManager.AtLeast(RoleEmployee))
	assert.True(t, RoleManager.AtLeast(RoleManager))
	assert.False(t, RoleEmployee.AtLeast(RoleManager))
	assert.False(t, RoleManager.AtLeast(RoleAdmin))
	// unknown role ranks below everything
	assert.False(t, Role("guest").AtLeast(RoleEmployee))
}

func TestCanAccess(t *testing.T) {
	tests := []struct {
		name   string
		actor  Actor
		action Action
		reason Reason
	}{
		{"admin user manage", Actor{ID: "u1", Role: RoleAdmin}, ActionUserManage, ""},
		{"manager user manage denied", Actor{ID: "u1", Role: RoleManager}, ActionUserManage, ReasonInsufficientRole},
		{"employee project create denied", Actor{ID: "u1", Role: RoleEmployee}, ActionProjectCreate, ReasonInsufficientRole},
		{"manager project create", Actor{ID: "u1", Role: RoleManager}, ActionProjectCreate, ""},
		{"employee task list", Actor{ID: "u1", Role: RoleEmployee}, ActionTaskList, ""},
		{"anonymous denied", Actor{}, ActionTaskList, ReasonNotAuthenticated},
		{"unknown role denied", Actor{ID: "u1", Role: Role("guest")}, ActionTaskList, ReasonNotAuthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CanAccess(tc.actor, tc.action)
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			var de DeniedError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.reason, de.Reason)
		})
	}
}

func TestDeniedErrorCarriesAllowedRoles(t *testing.T) {
	err := CanAccess(Actor{ID: "u1", Role: RoleEmployee}, ActionUserManage)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, RoleEmployee, de.Role)
	assert.Equal(t, []Role{RoleAdmin}, de.Allowed)
}

func TestProjectVisibility(t *testing.T) {
	p := Project{ID: "p1", OwnerID: "mgr", TeamIDs: []string{"emp", "mgr2"}}
	assert.True(t, CanReadProject(Actor{ID: "x", Role: RoleAdmin}, p))
	assert.True(t, CanReadProject(Actor{ID: "mgr", Role: RoleManager}, p))
	assert.True(t, CanReadProject(Actor{ID: "mgr2", Role: RoleManager}, p))
	assert.False(t, CanReadProject(Actor{ID: "mgr3", Role: RoleManager}, p))
	assert.True(t, CanReadProject(Actor{ID: "emp", Role: RoleEmployee}, p))
	assert.False(t, CanReadProject(Actor{ID: "emp2", Role: RoleEmployee}, p))
	// employees do not see owned-but-not-joined projects
	assert.False(t, CanReadProject(Actor{ID: "mgr", Role: RoleEmployee}, Project{OwnerID: "mgr"}))
}

func TestCanMutateProject(t *testing.T) {
	p := Project{ID: "p1", OwnerID: "mgr", TeamIDs: []string{"mgr2"}}
	assert.NoError(t, CanMutateProject(Actor{ID: "x", Role: RoleAdmin}, ActionProjectUpdate, p))
	assert.NoError(t, CanMutateProject(Actor{ID: "mgr", Role: RoleManager}, ActionProjectUpdate, p))

	// membership is not ownership
	err := CanMutateProject(Actor{ID: "mgr2", Role: RoleManager}, ActionProjectDelete, p)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonNotOwner, de.Reason)

	err = CanMutateProject(Actor{ID: "emp", Role: RoleEmployee}, ActionProjectUpdate, p)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonInsufficientRole, de.Reason)
}

func TestCanCreateTaskRequiresProjectOwnership(t *testing.T) {
	p := &Project{ID: "p1", OwnerID: "mgr", TeamIDs: []string{"mgr2", "emp"}}

	assert.NoError(t, CanCreateTask(Actor{ID: "root", Role: RoleAdmin}, p))
	assert.NoError(t, CanCreateTask(Actor{ID: "mgr", Role: RoleManager}, p))
	// standalone tasks need no project ownership
	assert.NoError(t, CanCreateTask(Actor{ID: "mgr2", Role: RoleManager}, nil))

	// being on the team is not owning the project
	err := CanCreateTask(Actor{ID: "mgr2", Role: RoleManager}, p)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonNotOwner, de.Reason)

	err = CanCreateTask(Actor{ID: "emp", Role: RoleEmployee}, p)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonInsufficientRole, de.Reason)
}

func TestSubtaskActionIsManagerOnly(t *testing.T) {
	assert.NoError(t, CanAccess(Actor{ID: "root", Role: RoleAdmin}, ActionTaskSubtask))
	assert.NoError(t, CanAccess(Actor{ID: "mgr", Role: RoleManager}, ActionTaskSubtask))
	err := CanAccess(Actor{ID: "emp", Role: RoleEmployee}, ActionTaskSubtask)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonInsufficientRole, de.Reason)
}

func TestCanUpdateTaskEmployeeFieldGate(t *testing.T) {
	task := Task{ID: "t1", OwnerID: "other", AssigneeIDs: []string{"emp"}}
	actor := Actor{ID: "emp", Role: RoleEmployee}

	allowed := TaskChange{Status: strp("done"), Description: strp("wrapped up")}
	assert.NoError(t, CanUpdateTask(actor, task, nil, allowed))

	over := TaskChange{Status: strp("done"), Title: strp("new title")}
	err := CanUpdateTask(actor, task, nil, over)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonRestrictedFields, de.Reason)
	assert.Equal(t, []string{"title"}, de.Fields)

	// assignment changes are restricted even when clearing
	err = CanUpdateTask(actor, task, nil, TaskChange{AssigneesSet: true})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonRestrictedFields, de.Reason)
}

func TestCanUpdateTaskManagerOwnership(t *testing.T) {
	projID := "p1"
	task := Task{ID: "t1", OwnerID: "someone", ProjectID: &projID}
	change := TaskChange{Title: strp("rename")}

	// owns the task
	assert.NoError(t, CanUpdateTask(Actor{ID: "someone", Role: RoleManager}, task, nil, change))
	// owns the project
	proj := &Project{ID: projID, OwnerID: "mgr"}
	assert.NoError(t, CanUpdateTask(Actor{ID: "mgr", Role: RoleManager}, task, proj, change))
	// owns neither
	err := CanUpdateTask(Actor{ID: "mgr2", Role: RoleManager}, task, proj, change)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonNotOwner, de.Reason)
	// admin bypasses ownership
	assert.NoError(t, CanUpdateTask(Actor{ID: "root", Role: RoleAdmin}, task, proj, change))
}

func TestCanUpdateTaskEmployeeNotAssigned(t *testing.T) {
	task := Task{ID: "t1", OwnerID: "other", AssigneeIDs: []string{"someone-else"}}
	err := CanUpdateTask(Actor{ID: "emp", Role: RoleEmployee}, task, nil, TaskChange{Status: strp("review")})
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonNotAssigned, de.Reason)
}

func TestCanDeleteTaskCoarserThanUpdate(t *testing.T) {
	task := Task{ID: "t1", OwnerID: "emp"}
	// any manager may delete, even without ownership
	assert.NoError(t, CanDeleteTask(Actor{ID: "mgr", Role: RoleManager}, task))
	// the owning employee may delete their own task
	assert.NoError(t, CanDeleteTask(Actor{ID: "emp", Role: RoleEmployee}, task))
	// but that same manager could not pass the update ownership gate
	err := CanUpdateTask(Actor{ID: "mgr", Role: RoleManager}, task, nil, TaskChange{Title: strp("x")})
	assert.Error(t, err)
	// non-owner employee cannot delete
	err = CanDeleteTask(Actor{ID: "emp2", Role: RoleEmployee}, task)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonNotOwner, de.Reason)
}

func TestCanUpdateTaskStatusProjectTeamFallback(t *testing.T) {
	task := Task{ID: "t1", OwnerID: "other"}
	actor := Actor{ID: "emp", Role: RoleEmployee}
	// not owner, not assignee, not member
	err := CanUpdateTaskStatus(actor, task, false)
	var de DeniedError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ReasonNotAssigned, de.Reason)
	// project team membership opens the status path
	assert.NoError(t, CanUpdateTaskStatus(actor, task, true))
	assert.NoError(t, CanUpdateTaskStatus(Actor{ID: "mgr", Role: RoleManager}, task, false))
}

func TestScopes(t *testing.T) {
	admin := ScopeProjects(Actor{ID: "a", Role: RoleAdmin})
	assert.True(t, admin.All)

	mgr := ScopeProjects(Actor{ID: "m", Role: RoleManager})
	assert.False(t, mgr.All)
	assert.Equal(t, "m", mgr.OwnerID)
	assert.Equal(t, "m", mgr.MemberID)

	emp := ScopeProjects(Actor{ID: "e", Role: RoleEmployee})
	assert.Empty(t, emp.OwnerID)
	assert.Equal(t, "e", emp.MemberID)

	// scopes are pure data: recomputing yields the identical filter
	assert.Equal(t, mgr, ScopeProjects(Actor{ID: "m", Role: RoleManager}))

	ts := ScopeTasks(Actor{ID: "e", Role: RoleEmployee})
	assert.False(t, ts.All)
	assert.Equal(t, "e", ts.UserID)
	assert.True(t, ScopeTasks(Actor{ID: "a", Role: RoleAdmin}).All)
}

func TestCompletedFor(t *testing.T) {
	assert.True(t, CompletedFor("done"))
	for _, s := range []string{"todo", "in-progress", "review"} {
		assert.False(t, CompletedFor(s))
	}
}

func TestDeniedErrorIsNotFoundMistake(t *testing.T) {
	// DeniedError must stay distinguishable from generic errors
	err := CanAccess(Actor{ID: "u", Role: RoleEmployee}, ActionUserManage)
	assert.False(t, errors.Is(err, errors.New("not found")))
	var de DeniedError
	assert.True(t, errors.As(err, &de))
}
