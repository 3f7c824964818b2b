package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

const userColumns = `id,name,email,password_hash,role,department,hourly_rate,is_active,last_login,created_at,updated_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var department, lastLogin sql.NullString
	var hourlyRate sql.NullFloat64
	var isActive int
	err := scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &department, &hourlyRate, &isActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if department.Valid {
		u.Department = &department.String
	}
	if hourlyRate.Valid {
		u.HourlyRate = &hourlyRate.Float64
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.String
	}
	u.IsActive = isActive != 0
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, nullableStringPtr(u.Department), nullableFloatPtr(u.HourlyRate),
		boolInt(u.IsActive), nullableStringPtr(u.LastLogin), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET name=?, email=?, password_hash=?, role=?, department=?, hourly_rate=?, is_active=?, last_login=?, updated_at=? WHERE id=?`,
		u.Name, u.Email, u.PasswordHash, u.Role, nullableStringPtr(u.Department), nullableFloatPtr(u.HourlyRate),
		boolInt(u.IsActive), nullableStringPtr(u.LastLogin), u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row.Scan)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) TouchLastLogin(ctx context.Context, id, ts string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE users SET last_login=? WHERE id=?`, ts, id)
	return err
}

func (r Repo) CountUsersByRole(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role, count(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		res[role] = count
	}
	return res, rows.Err()
}

func (r Repo) CountActiveUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE is_active=1`).Scan(&n)
	return n, err
}
