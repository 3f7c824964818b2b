package server

import (
	"taskline/internal/domain"
	"taskline/internal/engine"
)

// Request payloads

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty" enum:"manager,employee"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UpdateProfileRequest struct {
	Name       *string `json:"name,omitempty"`
	Department *string `json:"department,omitempty"`
}

type CreateUserRequest struct {
	Name       string   `json:"name"`
	Email      string   `json:"email" format:"email"`
	Password   string   `json:"password"`
	Role       string   `json:"role,omitempty" enum:"admin,manager,employee"`
	Department string   `json:"department,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
}

type UpdateUserRequest struct {
	Name       *string  `json:"name,omitempty"`
	Email      *string  `json:"email,omitempty" format:"email"`
	Role       *string  `json:"role,omitempty" enum:"admin,manager,employee"`
	Department *string  `json:"department,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	IsActive   *bool    `json:"is_active,omitempty"`
}

type CreateProjectRequest struct {
	Name            string   `json:"name"`
	Description     *string  `json:"description,omitempty"`
	Status          string   `json:"status,omitempty" enum:"planning,active,on-hold,completed,cancelled"`
	Priority        string   `json:"priority,omitempty" enum:"Low,Medium,High,Critical"`
	StartDate       *string  `json:"start_date,omitempty" format:"date-time"`
	EndDate         *string  `json:"end_date,omitempty" format:"date-time"`
	BudgetAllocated *float64 `json:"budget_allocated,omitempty"`
	Team            []string `json:"team,omitempty"`
}

type UpdateProjectRequest struct {
	Name            *string  `json:"name,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Status          *string  `json:"status,omitempty" enum:"planning,active,on-hold,completed,cancelled"`
	Priority        *string  `json:"priority,omitempty" enum:"Low,Medium,High,Critical"`
	StartDate       *string  `json:"start_date,omitempty" format:"date-time"`
	EndDate         *string  `json:"end_date,omitempty" format:"date-time"`
	BudgetAllocated *float64 `json:"budget_allocated,omitempty"`
	BudgetSpent     *float64 `json:"budget_spent,omitempty"`
	Progress        *int     `json:"progress,omitempty" minimum:"0" maximum:"100"`
}

type AddTeamMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type CreateTaskRequest struct {
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	Status         string   `json:"status,omitempty" enum:"todo,in-progress,review,done"`
	Priority       string   `json:"priority,omitempty" enum:"Low,Medium,High,Critical"`
	DueDate        *string  `json:"due_date,omitempty" format:"date-time"`
	ProjectID      *string  `json:"project_id,omitempty"`
	MilestoneID    *string  `json:"milestone_id,omitempty"`
	AssigneeIDs    []string `json:"assignee_ids,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

type UpdateTaskRequest struct {
	Title          *string  `json:"title,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Status         *string  `json:"status,omitempty" enum:"todo,in-progress,review,done"`
	Priority       *string  `json:"priority,omitempty" enum:"Low,Medium,High,Critical"`
	DueDate        *string  `json:"due_date,omitempty" format:"date-time"`
	Completed      *bool    `json:"completed,omitempty"`
	ProjectID      *string  `json:"project_id,omitempty"`
	MilestoneID    *string  `json:"milestone_id,omitempty"`
	AssigneeIDs    []string `json:"assignee_ids,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    *float64 `json:"actual_hours,omitempty"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status" enum:"todo,in-progress,review,done"`
}

type AddCommentRequest struct {
	Body string `json:"body"`
}

type AddSubtaskRequest struct {
	Title string `json:"title"`
}

type SetSubtaskCompletedRequest struct {
	Completed bool `json:"completed"`
}

type CreateMilestoneRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	Status      string   `json:"status,omitempty" enum:"pending,in-progress,completed"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
}

type UpdateMilestoneRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	Status      *string  `json:"status,omitempty" enum:"pending,in-progress,completed"`
	Progress    *int     `json:"progress,omitempty" minimum:"0" maximum:"100"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
}

type StartTimerRequest struct {
	ProjectID   *string `json:"project_id,omitempty"`
	TaskID      *string `json:"task_id,omitempty"`
	Description *string `json:"description,omitempty"`
	Billable    bool    `json:"billable,omitempty"`
}

type UpdateTimeEntryRequest struct {
	Description     *string `json:"description,omitempty"`
	Billable        *bool   `json:"billable,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty" minimum:"0"`
}

// Response payloads

type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         UserResponse `json:"user"`
}

type UserResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email" format:"email"`
	Role       string   `json:"role" enum:"admin,manager,employee"`
	Department *string  `json:"department,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	IsActive   bool     `json:"is_active"`
	LastLogin  *string  `json:"last_login,omitempty" format:"date-time"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
}

type TeamMemberResponse struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at" format:"date-time"`
}

type ProjectResponse struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Description     string               `json:"description,omitempty"`
	Status          string               `json:"status" enum:"planning,active,on-hold,completed,cancelled"`
	Priority        string               `json:"priority" enum:"Low,Medium,High,Critical"`
	StartDate       *string              `json:"start_date,omitempty" format:"date-time"`
	EndDate         *string              `json:"end_date,omitempty" format:"date-time"`
	BudgetAllocated *float64             `json:"budget_allocated,omitempty"`
	BudgetSpent     float64              `json:"budget_spent"`
	Progress        int                  `json:"progress"`
	OwnerID         string               `json:"owner_id"`
	Team            []TeamMemberResponse `json:"team"`
	CreatedAt       string               `json:"created_at" format:"date-time"`
	UpdatedAt       string               `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         string   `json:"status" enum:"todo,in-progress,review,done"`
	Priority       string   `json:"priority" enum:"Low,Medium,High,Critical"`
	DueDate        *string  `json:"due_date,omitempty" format:"date-time"`
	Completed      bool     `json:"completed"`
	ProjectID      *string  `json:"project_id,omitempty"`
	MilestoneID    *string  `json:"milestone_id,omitempty"`
	OwnerID        string   `json:"owner_id"`
	AssigneeIDs    []string `json:"assignee_ids"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    float64  `json:"actual_hours"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
}

type SubtaskResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CommentResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MilestoneResponse struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	Status      string   `json:"status" enum:"pending,in-progress,completed"`
	Progress    int      `json:"progress"`
	AssigneeIDs []string `json:"assignee_ids"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type TimeEntryResponse struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	ProjectID       *string  `json:"project_id,omitempty"`
	TaskID          *string  `json:"task_id,omitempty"`
	Description     string   `json:"description,omitempty"`
	StartTime       string   `json:"start_time" format:"date-time"`
	EndTime         *string  `json:"end_time,omitempty" format:"date-time"`
	DurationMinutes int      `json:"duration_minutes"`
	IsActive        bool     `json:"is_active"`
	Billable        bool     `json:"billable"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Mappers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
		HourlyRate: u.HourlyRate,
		IsActive:   u.IsActive,
		LastLogin:  u.LastLogin,
		CreatedAt:  u.CreatedAt,
	}
}

func mapUsers(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u))
	}
	return out
}

func projectResponse(p domain.Project) ProjectResponse {
	team := make([]TeamMemberResponse, 0, len(p.Team))
	for _, m := range p.Team {
		team = append(team, TeamMemberResponse{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return ProjectResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Status:          p.Status,
		Priority:        p.Priority,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		BudgetAllocated: p.BudgetAllocated,
		BudgetSpent:     p.BudgetSpent,
		Progress:        p.Progress,
		OwnerID:         p.OwnerID,
		Team:            team,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func mapProjects(projects []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectResponse(p))
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	assignees := t.AssigneeIDs
	if assignees == nil {
		assignees = []string{}
	}
	return TaskResponse{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         t.Status,
		Priority:       t.Priority,
		DueDate:        t.DueDate,
		Completed:      t.Completed,
		ProjectID:      t.ProjectID,
		MilestoneID:    t.MilestoneID,
		OwnerID:        t.OwnerID,
		AssigneeIDs:    assignees,
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse(t))
	}
	return out
}

func subtaskResponse(s domain.Subtask) SubtaskResponse {
	return SubtaskResponse{ID: s.ID, TaskID: s.TaskID, Title: s.Title, Completed: s.Completed, CreatedAt: s.CreatedAt}
}

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse{ID: c.ID, TaskID: c.TaskID, AuthorID: c.AuthorID, Body: c.Body, CreatedAt: c.CreatedAt}
}

func milestoneResponse(m domain.Milestone) MilestoneResponse {
	assignees := m.AssigneeIDs
	if assignees == nil {
		assignees = []string{}
	}
	return MilestoneResponse{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Title:       m.Title,
		Description: m.Description,
		DueDate:     m.DueDate,
		Status:      m.Status,
		Progress:    m.Progress,
		AssigneeIDs: assignees,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func timeEntryResponse(e domain.TimeEntry) TimeEntryResponse {
	return TimeEntryResponse{
		ID:              e.ID,
		UserID:          e.UserID,
		ProjectID:       e.ProjectID,
		TaskID:          e.TaskID,
		Description:     e.Description,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		DurationMinutes: e.DurationMinutes,
		IsActive:        e.IsActive,
		Billable:        e.Billable,
		HourlyRate:      e.HourlyRate,
		CreatedAt:       e.CreatedAt,
	}
}

func mapTimeEntries(entries []domain.TimeEntry) []TimeEntryResponse {
	out := make([]TimeEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, timeEntryResponse(e))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func taskCreateOptions(req CreateTaskRequest) engine.TaskCreateOptions {
	opts := engine.TaskCreateOptions{
		Title:          req.Title,
		Status:         req.Status,
		Priority:       req.Priority,
		AssigneeIDs:    req.AssigneeIDs,
		EstimatedHours: req.EstimatedHours,
	}
	if req.Description != nil {
		opts.Description = *req.Description
	}
	if req.DueDate != nil {
		opts.DueDate = *req.DueDate
	}
	if req.ProjectID != nil {
		opts.ProjectID = *req.ProjectID
	}
	if req.MilestoneID != nil {
		opts.MilestoneID = *req.MilestoneID
	}
	return opts
}
