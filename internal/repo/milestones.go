package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func scanMilestone(scan func(dest ...any) error) (domain.Milestone, error) {
	var m domain.Milestone
	var description, dueDate sql.NullString
	err := scan(&m.ID, &m.ProjectID, &m.Title, &description, &dueDate, &m.Status, &m.Progress, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if description.Valid {
		m.Description = description.String
	}
	if dueDate.Valid {
		m.DueDate = &dueDate.String
	}
	return m, nil
}

func (r Repo) InsertMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO milestones(id,project_id,title,description,due_date,status,progress,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, m.Title, nullable(m.Description), nullableStringPtr(m.DueDate), m.Status, m.Progress, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	return r.setMilestoneAssignees(ctx, tx, m.ID, m.AssigneeIDs)
}

func (r Repo) UpdateMilestone(ctx context.Context, tx *sql.Tx, m domain.Milestone, assigneesChanged bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET title=?, description=?, due_date=?, status=?, progress=?, updated_at=? WHERE id=?`,
		m.Title, nullable(m.Description), nullableStringPtr(m.DueDate), m.Status, m.Progress, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if assigneesChanged {
		if _, err := tx.ExecContext(ctx, `DELETE FROM milestone_assignees WHERE milestone_id=?`, m.ID); err != nil {
			return err
		}
		return r.setMilestoneAssignees(ctx, tx, m.ID, m.AssigneeIDs)
	}
	return nil
}

func (r Repo) setMilestoneAssignees(ctx context.Context, tx *sql.Tx, milestoneID string, userIDs []string) error {
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO milestone_assignees(milestone_id,user_id) VALUES (?,?)`, milestoneID, uid); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetMilestone(ctx context.Context, id string) (domain.Milestone, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,project_id,title,description,due_date,status,progress,created_at,updated_at FROM milestones WHERE id=?`, id)
	m, err := scanMilestone(row.Scan)
	if err != nil {
		return m, err
	}
	m.AssigneeIDs, err = r.listMilestoneAssignees(ctx, m.ID)
	return m, err
}

func (r Repo) listMilestoneAssignees(ctx context.Context, milestoneID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM milestone_assignees WHERE milestone_id=? ORDER BY user_id`, milestoneID)
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

func (r Repo) ListMilestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,title,description,due_date,status,progress,created_at,updated_at FROM milestones WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		assignees, err := r.listMilestoneAssignees(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].AssigneeIDs = assignees
	}
	return res, nil
}

func (r Repo) DeleteMilestone(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
