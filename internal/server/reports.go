package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/engine"
	"taskline/internal/repo"
)

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(users)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, actor, engine.UserCreateOptions{
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			Password:   input.Body.Password,
			Role:       input.Body.Role,
			Department: input.Body.Department,
			HourlyRate: input.Body.HourlyRate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Update user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdateUser(ctx, actor, input.ID, engine.UserUpdate{
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			Role:       input.Body.Role,
			Department: input.Body.Department,
			HourlyRate: input.Body.HourlyRate,
			IsActive:   input.Body.IsActive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-user",
		Method:      http.MethodDelete,
		Path:        "/users/{id}",
		Summary:     "Delete user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteUser(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-stats",
		Method:      http.MethodGet,
		Path:        "/users/stats",
		Summary:     "Account statistics",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.UserStats `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.UserStats(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.UserStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerTime(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-time-entries",
		Method:      http.MethodGet,
		Path:        "/time",
		Summary:     "List time entries",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		UserID    string `query:"user_id"`
		ProjectID string `query:"project_id"`
		TaskID    string `query:"task_id"`
		From      string `query:"from" format:"date-time"`
		To        string `query:"to" format:"date-time"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []TimeEntryResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTimeEntries(ctx, actor, engine.TimeEntryFilters{
			UserID:    input.UserID,
			ProjectID: input.ProjectID,
			TaskID:    input.TaskID,
			From:      input.From,
			To:        input.To,
			Limit:     normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TimeEntryResponse `json:"body"`
		}{Body: mapTimeEntries(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-timer",
		Method:        http.MethodPost,
		Path:          "/time/start",
		Summary:       "Start a timer",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body StartTimerRequest `json:"body"`
	}) (*struct {
		Body TimeEntryResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TimerStartOptions{Billable: input.Body.Billable}
		if input.Body.ProjectID != nil {
			opts.ProjectID = *input.Body.ProjectID
		}
		if input.Body.TaskID != nil {
			opts.TaskID = *input.Body.TaskID
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		entry, err := e.StartTimer(ctx, actor, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimeEntryResponse `json:"body"`
		}{Body: timeEntryResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-timer",
		Method:      http.MethodPost,
		Path:        "/time/{id}/stop",
		Summary:     "Stop a timer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TimeEntryResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.StopTimer(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimeEntryResponse `json:"body"`
		}{Body: timeEntryResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-time-entry",
		Method:      http.MethodPatch,
		Path:        "/time/{id}",
		Summary:     "Update time entry",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body UpdateTimeEntryRequest `json:"body"`
	}) (*struct {
		Body TimeEntryResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.UpdateTimeEntry(ctx, actor, input.ID, engine.TimeEntryUpdate{
			Description:     input.Body.Description,
			Billable:        input.Body.Billable,
			DurationMinutes: input.Body.DurationMinutes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimeEntryResponse `json:"body"`
		}{Body: timeEntryResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-time-entry",
		Method:      http.MethodDelete,
		Path:        "/time/{id}",
		Summary:     "Delete time entry",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTimeEntry(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "time-stats",
		Method:      http.MethodGet,
		Path:        "/time/stats",
		Summary:     "Own time summary",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" format:"date-time"`
		To   string `query:"to" format:"date-time"`
	}) (*struct {
		Body repo.TimeStats `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.TimeStats(ctx, actor, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body repo.TimeStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerDashboards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-admin",
		Method:      http.MethodGet,
		Path:        "/dashboard/admin",
		Summary:     "Admin dashboard",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.AdminDashboard `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.DashboardAdmin(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.AdminDashboard `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-manager",
		Method:      http.MethodGet,
		Path:        "/dashboard/manager",
		Summary:     "Manager dashboard",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ManagerDashboard `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.DashboardManager(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ManagerDashboard `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-employee",
		Method:      http.MethodGet,
		Path:        "/dashboard/employee",
		Summary:     "Personal dashboard",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.EmployeeDashboard `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.DashboardEmployee(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.EmployeeDashboard `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-self",
		Method:      http.MethodGet,
		Path:        "/analytics/me",
		Summary:     "Own productivity analytics",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" format:"date-time"`
		To   string `query:"to" format:"date-time"`
	}) (*struct {
		Body engine.Analytics `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SelfAnalytics(ctx, actor, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Analytics `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics-team",
		Method:      http.MethodGet,
		Path:        "/analytics/team",
		Summary:     "Team productivity analytics",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" format:"date-time"`
		To   string `query:"to" format:"date-time"`
	}) (*struct {
		Body []engine.Analytics `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.TeamAnalytics(ctx, actor, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []engine.Analytics{}
		}
		return &struct {
			Body []engine.Analytics `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit trail",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.RecentEvents(ctx, actor, normalizeLimit(input.Limit), input.Cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
