package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskline/internal/auth"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/policy"
	"taskline/internal/repo"
)

// UserCreateOptions are parameters for creating an account.
type UserCreateOptions struct {
	Name       string
	Email      string
	Password   string
	Role       string
	Department string
	HourlyRate *float64
}

func (e Engine) insertUser(ctx context.Context, opts UserCreateOptions, role policy.Role, actorID string) (domain.User, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.User{}, errors.New("name is required")
	}
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if email == "" {
		return domain.User{}, errors.New("email is required")
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("email %s already registered", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	now := e.timestamp()
	u := domain.User{
		ID:           newID(),
		Name:         opts.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         string(role),
		Department:   optionalString(opts.Department),
		HourlyRate:   opts.HourlyRate,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.created", "user", u.ID, actorID, events.EventPayload{"role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// RegisterUser is the public sign-up path. Self-registered accounts may
// claim manager or employee; admin accounts are created by admins only.
func (e Engine) RegisterUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	role := policy.RoleEmployee
	if opts.Role != "" {
		parsed, err := policy.ParseRole(opts.Role)
		if err != nil {
			return domain.User{}, err
		}
		if parsed == policy.RoleAdmin {
			return domain.User{}, errors.New("invalid role: admin accounts cannot self-register")
		}
		role = parsed
	}
	return e.insertUser(ctx, opts, role, "")
}

// CreateUser is the admin path and may assign any role.
func (e Engine) CreateUser(ctx context.Context, actor policy.Actor, opts UserCreateOptions) (domain.User, error) {
	if err := policy.CanAccess(actor, policy.ActionUserManage); err != nil {
		return domain.User{}, err
	}
	role := policy.RoleEmployee
	if opts.Role != "" {
		parsed, err := policy.ParseRole(opts.Role)
		if err != nil {
			return domain.User{}, err
		}
		role = parsed
	}
	return e.insertUser(ctx, opts, role, actor.ID)
}

// Authenticate verifies credentials and refuses deactivated accounts.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, errors.New("invalid credentials")
		}
		return domain.User{}, err
	}
	if !u.IsActive {
		return domain.User{}, errors.New("account is deactivated")
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.User{}, errors.New("invalid credentials")
	}
	ts := e.timestamp()
	if err := e.Repo.TouchLastLogin(ctx, u.ID, ts); err != nil {
		return domain.User{}, err
	}
	u.LastLogin = &ts
	return u, nil
}

// ActiveUser loads a user for session resolution, refusing inactive ones.
func (e Engine) ActiveUser(ctx context.Context, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !u.IsActive {
		return domain.User{}, errors.New("account is deactivated")
	}
	return u, nil
}

func (e Engine) ListUsers(ctx context.Context, actor policy.Actor) ([]domain.User, error) {
	if err := policy.CanAccess(actor, policy.ActionUserList); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx)
}

// UserUpdate carries optional admin changes to an account.
type UserUpdate struct {
	Name       *string
	Email      *string
	Role       *string
	Department *string
	HourlyRate *float64
	IsActive   *bool
}

func (e Engine) UpdateUser(ctx context.Context, actor policy.Actor, id string, upd UserUpdate) (domain.User, error) {
	if err := policy.CanAccess(actor, policy.ActionUserManage); err != nil {
		return domain.User{}, err
	}
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return domain.User{}, errors.New("name is required")
		}
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if email == "" {
			return domain.User{}, errors.New("email is required")
		}
		if email != u.Email {
			if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
				return domain.User{}, fmt.Errorf("email %s already registered", email)
			} else if !errors.Is(err, repo.ErrNotFound) {
				return domain.User{}, err
			}
			u.Email = email
		}
	}
	if upd.Role != nil {
		role, err := policy.ParseRole(*upd.Role)
		if err != nil {
			return domain.User{}, err
		}
		u.Role = string(role)
	}
	if upd.Department != nil {
		u.Department = optionalString(*upd.Department)
	}
	if upd.HourlyRate != nil {
		u.HourlyRate = upd.HourlyRate
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	u.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.updated", "user", u.ID, actor.ID, events.EventPayload{"role": u.Role, "is_active": u.IsActive}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) DeleteUser(ctx context.Context, actor policy.Actor, id string) error {
	if err := policy.CanAccess(actor, policy.ActionUserManage); err != nil {
		return err
	}
	if id == actor.ID {
		return errors.New("invalid target: cannot delete own account")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteUser(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.deleted", "user", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ProfileUpdate is the self-service subset of account fields.
type ProfileUpdate struct {
	Name       *string
	Department *string
}

func (e Engine) UpdateProfile(ctx context.Context, actor policy.Actor, upd ProfileUpdate) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, actor.ID)
	if err != nil {
		return domain.User{}, err
	}
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return domain.User{}, errors.New("name is required")
		}
		u.Name = *upd.Name
	}
	if upd.Department != nil {
		u.Department = optionalString(*upd.Department)
	}
	u.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) ChangePassword(ctx context.Context, actor policy.Actor, current, next string) error {
	u, err := e.Repo.GetUser(ctx, actor.ID)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(u.PasswordHash, current); err != nil {
		return errors.New("invalid credentials")
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.password.changed", "user", u.ID, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// UserStats summarizes accounts for manager and admin views.
type UserStats struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	CountByRole map[string]int `json:"count_by_role"`
}

func (e Engine) UserStats(ctx context.Context, actor policy.Actor) (UserStats, error) {
	if err := policy.CanAccess(actor, policy.ActionUserStats); err != nil {
		return UserStats{}, err
	}
	byRole, err := e.Repo.CountUsersByRole(ctx)
	if err != nil {
		return UserStats{}, err
	}
	active, err := e.Repo.CountActiveUsers(ctx)
	if err != nil {
		return UserStats{}, err
	}
	total := 0
	for _, n := range byRole {
		total += n
	}
	return UserStats{Total: total, Active: active, CountByRole: byRole}, nil
}
