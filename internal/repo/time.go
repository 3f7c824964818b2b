package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskline/internal/domain"
)

const timeEntryColumns = `id,user_id,project_id,task_id,description,start_time,end_time,duration_minutes,is_active,billable,hourly_rate,created_at`

func scanTimeEntry(scan func(dest ...any) error) (domain.TimeEntry, error) {
	var e domain.TimeEntry
	var projectID, taskID, description, endTime sql.NullString
	var hourlyRate sql.NullFloat64
	var isActive, billable int
	err := scan(&e.ID, &e.UserID, &projectID, &taskID, &description, &e.StartTime, &endTime,
		&e.DurationMinutes, &isActive, &billable, &hourlyRate, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if projectID.Valid {
		e.ProjectID = &projectID.String
	}
	if taskID.Valid {
		e.TaskID = &taskID.String
	}
	if description.Valid {
		e.Description = description.String
	}
	if endTime.Valid {
		e.EndTime = &endTime.String
	}
	if hourlyRate.Valid {
		e.HourlyRate = &hourlyRate.Float64
	}
	e.IsActive = isActive != 0
	e.Billable = billable != 0
	return e, nil
}

func (r Repo) InsertTimeEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_entries(`+timeEntryColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, nullableStringPtr(e.ProjectID), nullableStringPtr(e.TaskID), nullable(e.Description),
		e.StartTime, nullableStringPtr(e.EndTime), e.DurationMinutes, boolInt(e.IsActive), boolInt(e.Billable),
		nullableFloatPtr(e.HourlyRate), e.CreatedAt)
	return err
}

func (r Repo) UpdateTimeEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_entries SET project_id=?, task_id=?, description=?, start_time=?, end_time=?, duration_minutes=?, is_active=?, billable=?, hourly_rate=? WHERE id=?`,
		nullableStringPtr(e.ProjectID), nullableStringPtr(e.TaskID), nullable(e.Description), e.StartTime,
		nullableStringPtr(e.EndTime), e.DurationMinutes, boolInt(e.IsActive), boolInt(e.Billable),
		nullableFloatPtr(e.HourlyRate), e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTimeEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+timeEntryColumns+` FROM time_entries WHERE id=?`, id)
	return scanTimeEntry(row.Scan)
}

func (r Repo) DeleteTimeEntry(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TimeEntryFilters struct {
	UserID    string
	ProjectID string
	TaskID    string
	From      string
	To        string
	Limit     int
}

func (r Repo) ListTimeEntries(ctx context.Context, f TimeEntryFilters) ([]domain.TimeEntry, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.From != "" {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, f.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries ` + where + ` ORDER BY start_time DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ActiveEntriesTx reads the user's running timers inside the caller's
// transaction. The partial unique index keeps this to at most one row.
func (r Repo) ActiveEntriesTx(ctx context.Context, tx *sql.Tx, userID string) ([]domain.TimeEntry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+timeEntryColumns+` FROM time_entries WHERE user_id=? AND is_active=1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

type TimeStats struct {
	TotalMinutes    int     `json:"total_minutes"`
	BillableMinutes int     `json:"billable_minutes"`
	Earnings        float64 `json:"earnings"`
	EntryCount      int     `json:"entry_count"`
}

// TimeStatsFor aggregates closed entries for a user in a window.
func (r Repo) TimeStatsFor(ctx context.Context, userID, from, to string) (TimeStats, error) {
	clauses := []string{"user_id=?", "is_active=0"}
	args := []any{userID}
	if from != "" {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, from)
	}
	if to != "" {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, to)
	}
	var s TimeStats
	query := `SELECT COALESCE(SUM(duration_minutes),0),
COALESCE(SUM(CASE WHEN billable=1 THEN duration_minutes ELSE 0 END),0),
COALESCE(SUM(CASE WHEN billable=1 THEN duration_minutes/60.0*COALESCE(hourly_rate,0) ELSE 0 END),0),
count(*)
FROM time_entries WHERE ` + strings.Join(clauses, " AND ")
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&s.TotalMinutes, &s.BillableMinutes, &s.Earnings, &s.EntryCount)
	return s, err
}

// TotalMinutesByProject sums tracked minutes grouped by project for a
// set of project IDs.
func (r Repo) TotalMinutesByProject(ctx context.Context, projectIDs []string) (map[string]int, error) {
	res := map[string]int{}
	if len(projectIDs) == 0 {
		return res, nil
	}
	placeholders := strings.Repeat("?,", len(projectIDs))
	args := make([]any, len(projectIDs))
	for i, id := range projectIDs {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, COALESCE(SUM(duration_minutes),0) FROM time_entries WHERE project_id IN (`+placeholders[:len(placeholders)-1]+`) AND is_active=0 GROUP BY project_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var minutes int
		if err := rows.Scan(&id, &minutes); err != nil {
			return nil, err
		}
		res[id] = minutes
	}
	return res, rows.Err()
}
