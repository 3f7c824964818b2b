package app

import (
	"context"
	"errors"
	"fmt"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/migrate"
	"taskline/internal/policy"
)

// Open loads workspace config, opens the database, applies migrations and
// returns a ready engine. The returned close func must be called when done.
func Open(workspace string) (engine.Engine, func() error, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	return engine.New(conn, cfg), conn.Close, nil
}

// LocalActor is the principal CLI commands run as. Shell access to the
// workspace database already implies full control, so it carries admin.
func LocalActor() policy.Actor {
	return policy.Actor{ID: "cli", Role: policy.RoleAdmin}
}

// EnsureAdmin creates the first admin account when none exists yet.
// It reports whether an account was created.
func EnsureAdmin(ctx context.Context, e engine.Engine, name, email, password string) (domain.User, bool, error) {
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	for _, u := range users {
		if u.Role == string(policy.RoleAdmin) && u.IsActive {
			return u, false, nil
		}
	}
	if email == "" || password == "" {
		return domain.User{}, false, errors.New("no admin account exists; email and password are required to create one")
	}
	u, err := e.CreateUser(ctx, LocalActor(), engine.UserCreateOptions{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     string(policy.RoleAdmin),
	})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("create admin: %w", err)
	}
	return u, true, nil
}
