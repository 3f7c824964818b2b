// Package policy is the single place authorization decisions are made.
// It is pure: callers pass entity snapshots in and get a verdict back,
// so the same rules apply identically to the API, the engine, and tests.
package policy

import (
	"fmt"
	"strings"
)

// Action names a gated operation.
type Action string

const (
	ActionProjectCreate   Action = "project.create"
	ActionProjectList     Action = "project.list"
	ActionProjectRead     Action = "project.read"
	ActionProjectUpdate   Action = "project.update"
	ActionProjectDelete   Action = "project.delete"
	ActionProjectTeam     Action = "project.team"
	ActionProjectStats    Action = "project.stats"
	ActionTaskCreate      Action = "task.create"
	ActionTaskList        Action = "task.list"
	ActionTaskRead        Action = "task.read"
	ActionTaskUpdate      Action = "task.update"
	ActionTaskDelete      Action = "task.delete"
	ActionTaskStatus      Action = "task.status"
	ActionTaskComment     Action = "task.comment"
	ActionTaskSubtask     Action = "task.subtask"
	ActionMilestoneManage Action = "milestone.manage"
	ActionMilestoneRead   Action = "milestone.read"
	ActionTimeTrack       Action = "time.track"
	ActionUserList        Action = "user.list"
	ActionUserManage      Action = "user.manage"
	ActionUserStats       Action = "user.stats"
	ActionDashboardAdmin  Action = "dashboard.admin"
	ActionDashboardMgr    Action = "dashboard.manager"
	ActionDashboardSelf   Action = "dashboard.employee"
	ActionAnalyticsSelf   Action = "analytics.self"
	ActionAnalyticsTeam   Action = "analytics.team"
)

// allowedRoles is the coarse role gate per action. Fine-grained ownership
// checks come after this in the Can* functions.
var allowedRoles = map[Action][]Role{
	ActionProjectCreate:   {RoleAdmin, RoleManager},
	ActionProjectList:     {RoleAdmin, RoleManager, RoleEmployee},
	ActionProjectRead:     {RoleAdmin, RoleManager, RoleEmployee},
	ActionProjectUpdate:   {RoleAdmin, RoleManager},
	ActionProjectDelete:   {RoleAdmin, RoleManager},
	ActionProjectTeam:     {RoleAdmin, RoleManager},
	ActionProjectStats:    {RoleAdmin, RoleManager, RoleEmployee},
	ActionTaskCreate:      {RoleAdmin, RoleManager},
	ActionTaskList:        {RoleAdmin, RoleManager, RoleEmployee},
	ActionTaskRead:        {RoleAdmin, RoleManager, RoleEmployee},
	ActionTaskUpdate:      {RoleAdmin, RoleManager, RoleEmployee},
	ActionTaskDelete:      {RoleAdmin, RoleManager, RoleEmployee},
	ActionTaskStatus:      {RoleAdmin, RoleManager, RoleEmployee},
	ActionTaskComment:     {RoleAdmin, RoleManager, RoleEmployee},
	ActionTaskSubtask:     {RoleAdmin, RoleManager},
	ActionMilestoneManage: {RoleAdmin, RoleManager},
	ActionMilestoneRead:   {RoleAdmin, RoleManager, RoleEmployee},
	ActionTimeTrack:       {RoleAdmin, RoleManager, RoleEmployee},
	ActionUserList:        {RoleAdmin, RoleManager},
	ActionUserManage:      {RoleAdmin},
	ActionUserStats:       {RoleAdmin, RoleManager},
	ActionDashboardAdmin:  {RoleAdmin},
	ActionDashboardMgr:    {RoleAdmin, RoleManager},
	ActionDashboardSelf:   {RoleAdmin, RoleManager, RoleEmployee},
	ActionAnalyticsSelf:   {RoleAdmin, RoleManager, RoleEmployee},
	ActionAnalyticsTeam:   {RoleAdmin},
}

// Reason tags why a decision denied; the transport layer maps these to
// HTTP status codes.
type Reason string

const (
	ReasonNotAuthenticated Reason = "not-authenticated"
	ReasonInsufficientRole Reason = "insufficient-role"
	ReasonNotOwner         Reason = "not-owner"
	ReasonNotAssigned      Reason = "not-assigned"
	ReasonRestrictedFields Reason = "restricted-fields"
)

// DeniedError is the typed verdict for a refused action.
type DeniedError struct {
	Reason  Reason
	Action  Action
	Role    Role
	Allowed []Role
	Fields  []string
}

func (e DeniedError) Error() string {
	switch e.Reason {
	case ReasonNotAuthenticated:
		return "authentication required"
	case ReasonInsufficientRole:
		names := make([]string, len(e.Allowed))
		for i, r := range e.Allowed {
			names[i] = string(r)
		}
		return fmt.Sprintf("access denied: %s requires role %s", e.Action, strings.Join(names, " or "))
	case ReasonNotOwner:
		return fmt.Sprintf("access denied: %s requires ownership", e.Action)
	case ReasonNotAssigned:
		return fmt.Sprintf("access denied: %s requires assignment or ownership", e.Action)
	case ReasonRestrictedFields:
		return fmt.Sprintf("employees may only update status, completed and description (got: %s)", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("access denied: %s", e.Action)
}

// CanAccess is the coarse role-set gate for an action.
func CanAccess(actor Actor, action Action) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return DeniedError{Reason: ReasonNotAuthenticated, Action: action}
	}
	allowed := allowedRoles[action]
	for _, r := range allowed {
		if actor.Role == r {
			return nil
		}
	}
	return DeniedError{Reason: ReasonInsufficientRole, Action: action, Role: actor.Role, Allowed: allowed}
}

// Project is the snapshot a project decision needs.
type Project struct {
	ID      string
	OwnerID string
	TeamIDs []string
}

func (p Project) HasMember(userID string) bool {
	for _, id := range p.TeamIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Task is the snapshot a task decision needs.
type Task struct {
	ID          string
	OwnerID     string
	ProjectID   *string
	AssigneeIDs []string
}

func (t Task) HasAssignee(userID string) bool {
	for _, id := range t.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CanReadProject reports whether the project is visible to the actor.
// Admins see everything, managers see owned or joined projects,
// employees only joined ones.
func CanReadProject(actor Actor, p Project) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return p.OwnerID == actor.ID || p.HasMember(actor.ID)
	case RoleEmployee:
		return p.HasMember(actor.ID)
	}
	return false
}

// CanMutateProject gates update, delete and team changes: owner or admin.
func CanMutateProject(actor Actor, action Action, p Project) error {
	if err := CanAccess(actor, action); err != nil {
		return err
	}
	if actor.Role == RoleAdmin || p.OwnerID == actor.ID {
		return nil
	}
	return DeniedError{Reason: ReasonNotOwner, Action: action, Role: actor.Role}
}

// CanCreateTask gates task creation. Admins may create anywhere; managers
// only in projects they own. Team membership alone does not qualify.
// A nil project is a standalone task.
func CanCreateTask(actor Actor, p *Project) error {
	if err := CanAccess(actor, ActionTaskCreate); err != nil {
		return err
	}
	if actor.Role == RoleAdmin || p == nil {
		return nil
	}
	if p.OwnerID == actor.ID {
		return nil
	}
	return DeniedError{Reason: ReasonNotOwner, Action: ActionTaskCreate, Role: actor.Role}
}

// TaskChange records which task fields an update request carries. Pointer
// fields are nil when absent; AssigneesSet distinguishes clearing the
// assignee list from omitting it.
type TaskChange struct {
	Title          *string
	Description    *string
	Status         *string
	Priority       *string
	DueDate        *string
	Completed      *bool
	ProjectID      *string
	MilestoneID    *string
	EstimatedHours *float64
	ActualHours    *float64
	Assignees      []string
	AssigneesSet   bool
}

// EmployeeTaskUpdate is the full set of fields an employee may change.
// Anything outside this struct is refused before it reaches storage.
type EmployeeTaskUpdate struct {
	Status      *string
	Completed   *bool
	Description *string
}

// restricted returns the names of fields in the change that fall outside
// the employee subset.
func (c TaskChange) restricted() []string {
	var out []string
	if c.Title != nil {
		out = append(out, "title")
	}
	if c.Priority != nil {
		out = append(out, "priority")
	}
	if c.DueDate != nil {
		out = append(out, "due_date")
	}
	if c.ProjectID != nil {
		out = append(out, "project_id")
	}
	if c.MilestoneID != nil {
		out = append(out, "milestone_id")
	}
	if c.EstimatedHours != nil {
		out = append(out, "estimated_hours")
	}
	if c.ActualHours != nil {
		out = append(out, "actual_hours")
	}
	if c.AssigneesSet {
		out = append(out, "assignee_ids")
	}
	return out
}

// EmployeeSubset narrows a change to the employee-permitted fields, or
// denies when the change touches anything else.
func (c TaskChange) EmployeeSubset() (EmployeeTaskUpdate, error) {
	if extra := c.restricted(); len(extra) > 0 {
		return EmployeeTaskUpdate{}, DeniedError{Reason: ReasonRestrictedFields, Action: ActionTaskUpdate, Fields: extra}
	}
	return EmployeeTaskUpdate{Status: c.Status, Completed: c.Completed, Description: c.Description}, nil
}

// CanUpdateTask decides a general task update. Admins always may; managers
// when they own the task or its project; employees when they own or are
// assigned the task AND the change stays inside the employee subset.
func CanUpdateTask(actor Actor, t Task, p *Project, c TaskChange) error {
	if err := CanAccess(actor, ActionTaskUpdate); err != nil {
		return err
	}
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleManager:
		if t.OwnerID == actor.ID {
			return nil
		}
		if p != nil && p.OwnerID == actor.ID {
			return nil
		}
		return DeniedError{Reason: ReasonNotOwner, Action: ActionTaskUpdate, Role: actor.Role}
	default:
		if t.OwnerID != actor.ID && !t.HasAssignee(actor.ID) {
			return DeniedError{Reason: ReasonNotAssigned, Action: ActionTaskUpdate, Role: actor.Role}
		}
		_, err := c.EmployeeSubset()
		return err
	}
}

// CanDeleteTask is deliberately coarser than update: admin, any manager,
// or the task owner.
func CanDeleteTask(actor Actor, t Task) error {
	if err := CanAccess(actor, ActionTaskDelete); err != nil {
		return err
	}
	if actor.Role.AtLeast(RoleManager) || t.OwnerID == actor.ID {
		return nil
	}
	return DeniedError{Reason: ReasonNotOwner, Action: ActionTaskDelete, Role: actor.Role}
}

// CanUpdateTaskStatus decides the dedicated status transition. Owners and
// assignees always may; employees additionally qualify through membership
// in the task's project team (resolved by the caller).
func CanUpdateTaskStatus(actor Actor, t Task, projectMember bool) error {
	if err := CanAccess(actor, ActionTaskStatus); err != nil {
		return err
	}
	if actor.Role.AtLeast(RoleManager) {
		return nil
	}
	if t.OwnerID == actor.ID || t.HasAssignee(actor.ID) || projectMember {
		return nil
	}
	return DeniedError{Reason: ReasonNotAssigned, Action: ActionTaskStatus, Role: actor.Role}
}

// ProjectScope is the visibility filter for project reads, translated to
// SQL by the repo. Applying it twice yields the same set.
type ProjectScope struct {
	All      bool
	OwnerID  string
	MemberID string
}

func ScopeProjects(actor Actor) ProjectScope {
	switch actor.Role {
	case RoleAdmin:
		return ProjectScope{All: true}
	case RoleManager:
		return ProjectScope{OwnerID: actor.ID, MemberID: actor.ID}
	default:
		return ProjectScope{MemberID: actor.ID}
	}
}

// TaskScope is the visibility filter for task reads: everything for
// admins, otherwise tasks the user owns, is assigned to, or that live in
// a visible project.
type TaskScope struct {
	All    bool
	UserID string
}

func ScopeTasks(actor Actor) TaskScope {
	if actor.Role == RoleAdmin {
		return TaskScope{All: true}
	}
	return TaskScope{UserID: actor.ID}
}

// TaskStatuses in workflow order.
var TaskStatuses = []string{"todo", "in-progress", "review", "done"}

func ValidTaskStatus(s string) bool {
	for _, st := range TaskStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// CompletedFor couples the completed flag to the status: done means
// completed, anything else means not.
func CompletedFor(status string) bool { return status == "done" }
