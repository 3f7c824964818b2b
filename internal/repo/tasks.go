package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskline/internal/domain"
	"taskline/internal/policy"
)

const taskColumns = `t.id,t.title,t.description,t.status,t.priority,t.due_date,t.completed,t.project_id,t.milestone_id,t.owner_id,t.estimated_hours,t.actual_hours,t.created_at,t.updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, dueDate, projectID, milestoneID sql.NullString
	var estimatedHours sql.NullFloat64
	var completed int
	err := scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority, &dueDate, &completed,
		&projectID, &milestoneID, &t.OwnerID, &estimatedHours, &t.ActualHours, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	if milestoneID.Valid {
		t.MilestoneID = &milestoneID.String
	}
	if estimatedHours.Valid {
		t.EstimatedHours = &estimatedHours.Float64
	}
	t.Completed = completed != 0
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,status,priority,due_date,completed,project_id,milestone_id,owner_id,estimated_hours,actual_hours,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.DueDate), boolInt(t.Completed),
		nullableStringPtr(t.ProjectID), nullableStringPtr(t.MilestoneID), t.OwnerID, nullableFloatPtr(t.EstimatedHours), t.ActualHours,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	return r.setAssignees(ctx, tx, t.ID, t.AssigneeIDs)
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task, assigneesChanged bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, due_date=?, completed=?, project_id=?, milestone_id=?, estimated_hours=?, actual_hours=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.DueDate), boolInt(t.Completed),
		nullableStringPtr(t.ProjectID), nullableStringPtr(t.MilestoneID), nullableFloatPtr(t.EstimatedHours), t.ActualHours,
		t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if assigneesChanged {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=?`, t.ID); err != nil {
			return err
		}
		return r.setAssignees(ctx, tx, t.ID, t.AssigneeIDs)
	}
	return nil
}

func (r Repo) setAssignees(ctx context.Context, tx *sql.Tx, taskID string, userIDs []string) error {
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id) VALUES (?,?)`, taskID, uid); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListAssignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM task_assignees WHERE task_id=? ORDER BY user_id`, taskID)
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

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=?`, id)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	t.AssigneeIDs, err = r.ListAssignees(ctx, t.ID)
	return t, err
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	ProjectID       string
	MilestoneID     string
	Status          string
	Priority        string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// taskVisibility is the predicate behind both the list and single-read
// paths: the actor owns the task, is assigned to it, or the task belongs
// to a project the actor can see.
func taskVisibility(scope policy.TaskScope, projectIDs []string) (string, []any) {
	if scope.All {
		return "", nil
	}
	parts := []string{
		"t.owner_id=?",
		"EXISTS (SELECT 1 FROM task_assignees a WHERE a.task_id=t.id AND a.user_id=?)",
	}
	args := []any{scope.UserID, scope.UserID}
	if len(projectIDs) > 0 {
		placeholders := strings.Repeat("?,", len(projectIDs))
		parts = append(parts, "t.project_id IN ("+placeholders[:len(placeholders)-1]+")")
		for _, id := range projectIDs {
			args = append(args, id)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// ListTasksFor lists tasks visible under the scope. projectIDs is the
// visible-project snapshot resolved beforehand; the two reads are not a
// single serializable unit, which is acceptable for this read path.
func (r Repo) ListTasksFor(ctx context.Context, scope policy.TaskScope, projectIDs []string, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if clause, visArgs := taskVisibility(scope, projectIDs); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, visArgs...)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "t.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.MilestoneID != "" {
		clauses = append(clauses, "t.milestone_id=?")
		args = append(args, f.MilestoneID)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "t.priority=?")
		args = append(args, f.Priority)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM task_assignees a WHERE a.task_id=t.id AND a.user_id=?)")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(t.created_at < ? OR (t.created_at = ? AND t.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks t ` + where + ` ORDER BY t.created_at DESC, t.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		assignees, err := r.ListAssignees(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].AssigneeIDs = assignees
	}
	return res, nil
}

// GetTaskFor applies the same visibility predicate to a single read. A
// task that exists but is out of scope collapses to ErrNotFound so the
// response does not reveal its existence.
func (r Repo) GetTaskFor(ctx context.Context, scope policy.TaskScope, projectIDs []string, id string) (domain.Task, error) {
	clauses := []string{"t.id=?"}
	args := []any{id}
	if clause, visArgs := taskVisibility(scope, projectIDs); clause != "" {
		clauses = append(clauses, clause)
		args = append(args, visArgs...)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE `+strings.Join(clauses, " AND "), args...)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	t.AssigneeIDs, err = r.ListAssignees(ctx, t.ID)
	return t, err
}

func (r Repo) CountTasksByStatus(ctx context.Context, scope policy.TaskScope, projectIDs []string) (map[string]int, error) {
	clause, args := taskVisibility(scope, projectIDs)
	query := `SELECT t.status, count(*) FROM tasks t`
	if clause != "" {
		query += ` WHERE ` + clause
	}
	query += ` GROUP BY t.status`
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

func (r Repo) CountProjectTasks(ctx context.Context, projectID string) (total, done int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT count(*), COALESCE(SUM(CASE WHEN status='done' THEN 1 ELSE 0 END),0) FROM tasks WHERE project_id=?`, projectID).Scan(&total, &done)
	return total, done, err
}

func (r Repo) InsertSubtask(ctx context.Context, tx *sql.Tx, s domain.Subtask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO subtasks(id,task_id,title,completed,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.TaskID, s.Title, boolInt(s.Completed), s.CreatedAt)
	return err
}

func (r Repo) ListSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,title,completed,created_at FROM subtasks WHERE task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Subtask
	for rows.Next() {
		var s domain.Subtask
		var completed int
		if err := rows.Scan(&s.ID, &s.TaskID, &s.Title, &completed, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Completed = completed != 0
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) SetSubtaskCompleted(ctx context.Context, tx *sql.Tx, id string, completed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE subtasks SET completed=? WHERE id=?`, boolInt(completed), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,body,created_at FROM comments WHERE task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
