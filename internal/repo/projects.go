package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskline/internal/domain"
	"taskline/internal/policy"
)

const projectColumns = `p.id,p.name,p.description,p.status,p.priority,p.start_date,p.end_date,p.budget_allocated,p.budget_spent,p.progress,p.owner_id,p.created_at,p.updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var description, startDate, endDate sql.NullString
	var budgetAllocated sql.NullFloat64
	err := scan(&p.ID, &p.Name, &description, &p.Status, &p.Priority, &startDate, &endDate,
		&budgetAllocated, &p.BudgetSpent, &p.Progress, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if description.Valid {
		p.Description = description.String
	}
	if startDate.Valid {
		p.StartDate = &startDate.String
	}
	if endDate.Valid {
		p.EndDate = &endDate.String
	}
	if budgetAllocated.Valid {
		p.BudgetAllocated = &budgetAllocated.Float64
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,status,priority,start_date,end_date,budget_allocated,budget_spent,progress,owner_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.Status, p.Priority, nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate),
		nullableFloatPtr(p.BudgetAllocated), p.BudgetSpent, p.Progress, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, description=?, status=?, priority=?, start_date=?, end_date=?, budget_allocated=?, budget_spent=?, progress=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.Description), p.Status, p.Priority, nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate),
		nullableFloatPtr(p.BudgetAllocated), p.BudgetSpent, p.Progress, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id=?`, id)
	p, err := scanProject(row.Scan)
	if err != nil {
		return p, err
	}
	p.Team, err = r.ListTeam(ctx, p.ID)
	return p, err
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// scopeClause translates a visibility filter into SQL. An empty clause
// means no restriction.
func scopeClause(scope policy.ProjectScope) (string, []any) {
	if scope.All {
		return "", nil
	}
	var parts []string
	var args []any
	if scope.OwnerID != "" {
		parts = append(parts, "p.owner_id=?")
		args = append(args, scope.OwnerID)
	}
	if scope.MemberID != "" {
		parts = append(parts, "EXISTS (SELECT 1 FROM project_members m WHERE m.project_id=p.id AND m.user_id=?)")
		args = append(args, scope.MemberID)
	}
	if len(parts) == 0 {
		// a scope with no principal matches nothing
		return "1=0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

type ProjectFilters struct {
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListProjectsFor returns the projects visible under the given scope.
func (r Repo) ListProjectsFor(ctx context.Context, scope policy.ProjectScope, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if clause, scopeArgs := scopeClause(scope); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, scopeArgs...)
	}
	if f.Status != "" {
		clauses = append(clauses, "p.status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(p.created_at < ? OR (p.created_at = ? AND p.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects p ` + where + ` ORDER BY p.created_at DESC, p.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		team, err := r.ListTeam(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Team = team
	}
	return res, nil
}

// VisibleProjectIDs resolves the scope to a concrete id set, used by the
// two-step task visibility query. The set is a point-in-time snapshot.
func (r Repo) VisibleProjectIDs(ctx context.Context, scope policy.ProjectScope) ([]string, error) {
	clause, args := scopeClause(scope)
	query := `SELECT p.id FROM projects p`
	if clause != "" {
		query += ` WHERE ` + clause
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) ListTeam(ctx context.Context, projectID string) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id, role, joined_at FROM project_members WHERE project_id=? ORDER BY joined_at, user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) AddTeamMember(ctx context.Context, tx *sql.Tx, projectID string, m domain.TeamMember) error {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,user_id,role,joined_at) VALUES (?,?,?,?)`,
		projectID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s is already a team member", m.UserID)
	}
	return nil
}

func (r Repo) RemoveTeamMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsProjectMember checks membership without loading the whole team.
func (r Repo) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&n)
	return n > 0, err
}

func (r Repo) CountProjectsByStatus(ctx context.Context, scope policy.ProjectScope) (map[string]int, error) {
	clause, args := scopeClause(scope)
	query := `SELECT p.status, count(*) FROM projects p`
	if clause != "" {
		query += ` WHERE ` + clause
	}
	query += ` GROUP BY p.status`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
