package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sessions "taskline/internal/auth"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/migrate"
	"taskline/internal/policy"
)

type testAPI struct {
	server *httptest.Server
	engine engine.Engine
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	e := engine.New(conn, nil)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			Issuer: sessions.Issuer{Config: sessions.Config{
				AccessSecret:  "test-access",
				RefreshSecret: "test-refresh",
				AccessTTL:     15 * time.Minute,
				RefreshTTL:    7 * 24 * time.Hour,
			}},
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return testAPI{server: srv, engine: e}
}

func (a testAPI) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// register signs up an account and returns its access token and user id.
func (a testAPI) register(t *testing.T, name, role string) (token, userID string) {
	t.Helper()
	email := fmt.Sprintf("%s@example.com", name)
	resp, body := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name":     name,
		"email":    email,
		"password": "secret1",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register %s: %v", name, body)
	user := body["user"].(map[string]any)
	return body["access_token"].(string), user["id"].(string)
}

// registerAdmin promotes a registered manager through the store, since
// admin accounts cannot self-register.
func (a testAPI) registerAdmin(t *testing.T, name string) string {
	t.Helper()
	token, userID := a.register(t, name, "manager")
	_, err := a.engine.UpdateUser(t.Context(), policy.Actor{ID: "bootstrap", Role: policy.RoleAdmin}, userID, engine.UserUpdate{
		Role: strPtr("admin"),
	})
	require.NoError(t, err)
	return token
}

func strPtr(s string) *string { return &s }

func TestHealthIsPublic(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(t, http.MethodGet, "/v1/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestUnauthenticatedRequestsAreRefused(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(t, http.MethodGet, "/v1/projects", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "unauthorized", errBody["code"])
}

func TestRegisterLoginAndMe(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register(t, "mona", "manager")

	resp, body := api.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "mona@example.com", body["email"])
	require.Equal(t, "manager", body["role"])

	resp, body = api.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "mona@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["access_token"])

	resp, body = api.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "mona@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "invalid_credentials", errBody["code"])
}

func TestRefreshRotatesTokens(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name":     "eli",
		"email":    "eli@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	refresh := body["refresh_token"].(string)

	resp, body = api.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refresh,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["access_token"])

	resp, _ = api.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": "not-a-token",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEmployeeCannotCreateProject(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register(t, "worker", "employee")

	resp, body := api.do(t, http.MethodPost, "/v1/projects", token, map[string]any{
		"name": "forbidden",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "forbidden", errBody["code"])
	details := errBody["details"].(map[string]any)
	require.Equal(t, "insufficient-role", details["reason"])
}

func TestProjectVisibilityOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	owner, _ := api.register(t, "owner", "manager")
	other, _ := api.register(t, "other", "manager")

	resp, body := api.do(t, http.MethodPost, "/v1/projects", owner, map[string]any{
		"name": "mine",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	projectID := body["id"].(string)

	// invisible to another manager: list omits it, read is 404
	resp, body = api.do(t, http.MethodGet, "/v1/projects", other, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, body["items"])

	resp, _ = api.do(t, http.MethodGet, "/v1/projects/"+projectID, other, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/v1/projects/"+projectID, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmployeeFieldGateOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	manager, _ := api.register(t, "lead", "manager")
	worker, workerID := api.register(t, "dev", "employee")

	resp, body := api.do(t, http.MethodPost, "/v1/tasks", manager, map[string]any{
		"title":        "implement",
		"assignee_ids": []string{workerID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskID := body["id"].(string)

	resp, _ = api.do(t, http.MethodPatch, "/v1/tasks/"+taskID, worker, map[string]any{
		"status": "in-progress",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = api.do(t, http.MethodPatch, "/v1/tasks/"+taskID, worker, map[string]any{
		"title": "renamed",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	details := errBody["details"].(map[string]any)
	require.Equal(t, "restricted-fields", details["reason"])
}

func TestStatusDoneSetsCompletedOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	manager, _ := api.register(t, "lead", "manager")

	resp, body := api.do(t, http.MethodPost, "/v1/tasks", manager, map[string]any{
		"title": "finish",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskID := body["id"].(string)

	resp, body = api.do(t, http.MethodPatch, "/v1/tasks/"+taskID+"/status", manager, map[string]any{
		"status": "done",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["completed"])
}

func TestDuplicateTeamMemberIs400(t *testing.T) {
	api := newTestAPI(t)
	manager, _ := api.register(t, "lead", "manager")
	_, workerID := api.register(t, "dev", "employee")

	resp, body := api.do(t, http.MethodPost, "/v1/projects", manager, map[string]any{
		"name": "crewed",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	projectID := body["id"].(string)

	resp, _ = api.do(t, http.MethodPost, "/v1/projects/"+projectID+"/team", manager, map[string]any{
		"user_id": workerID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = api.do(t, http.MethodPost, "/v1/projects/"+projectID+"/team", manager, map[string]any{
		"user_id": workerID,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "bad_request", errBody["code"])
}

func TestDuplicateEmailIs409(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "dup", "employee")
	resp, body := api.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"name":     "dup again",
		"email":    "dup@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "conflict", errBody["code"])
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	manager, _ := api.register(t, "lead", "manager")
	admin := api.registerAdmin(t, "root")

	resp, _ := api.do(t, http.MethodPost, "/v1/users", manager, map[string]any{
		"name":     "new",
		"email":    "new@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/v1/users", admin, map[string]any{
		"name":     "new",
		"email":    "new@example.com",
		"password": "secret1",
		"role":     "admin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "admin", body["role"])
}

func TestDeactivatedUserLosesAccess(t *testing.T) {
	api := newTestAPI(t)
	admin := api.registerAdmin(t, "root")
	worker, workerID := api.register(t, "dev", "employee")

	resp, _ := api.do(t, http.MethodGet, "/v1/tasks", worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPatch, "/v1/users/"+workerID, admin, map[string]any{
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the still-valid token no longer resolves to an active account
	resp, _ = api.do(t, http.MethodGet, "/v1/tasks", worker, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTimerLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	worker, _ := api.register(t, "dev", "employee")

	resp, body := api.do(t, http.MethodPost, "/v1/time/start", worker, map[string]any{
		"description": "deep work",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entryID := body["id"].(string)
	require.Equal(t, true, body["is_active"])

	resp, body = api.do(t, http.MethodPost, "/v1/time/"+entryID+"/stop", worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["is_active"])
}

func TestDashboardGatesOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	worker, _ := api.register(t, "dev", "employee")
	admin := api.registerAdmin(t, "root")

	resp, _ := api.do(t, http.MethodGet, "/v1/dashboard/admin", worker, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/v1/dashboard/admin", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/v1/dashboard/employee", worker, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOpenAPIAndDocsServed(t *testing.T) {
	api := newTestAPI(t)
	resp, err := http.Get(api.server.URL + "/docs")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
