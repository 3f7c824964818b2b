package domain

type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	Role         string   `json:"role" enum:"admin,manager,employee"`
	Department   *string  `json:"department,omitempty"`
	HourlyRate   *float64 `json:"hourly_rate,omitempty"`
	IsActive     bool     `json:"is_active"`
	LastLogin    *string  `json:"last_login,omitempty" format:"date-time"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Status          string       `json:"status" enum:"planning,active,on-hold,completed,cancelled"`
	Priority        string       `json:"priority" enum:"Low,Medium,High,Critical"`
	StartDate       *string      `json:"start_date,omitempty" format:"date-time"`
	EndDate         *string      `json:"end_date,omitempty" format:"date-time"`
	BudgetAllocated *float64     `json:"budget_allocated,omitempty"`
	BudgetSpent     float64      `json:"budget_spent"`
	Progress        int          `json:"progress"`
	OwnerID         string       `json:"owner_id"`
	Team            []TeamMember `json:"team,omitempty"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
	UpdatedAt       string       `json:"updated_at" format:"date-time"`
}

type TeamMember struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at" format:"date-time"`
}

type Task struct {
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
	AssigneeIDs    []string `json:"assignee_ids,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	ActualHours    float64  `json:"actual_hours"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
}

type Subtask struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Milestone struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	Status      string   `json:"status" enum:"pending,in-progress,completed"`
	Progress    int      `json:"progress"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type TimeEntry struct {
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

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
