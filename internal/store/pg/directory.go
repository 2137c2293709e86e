package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"caseshare.org/internal/actor"
)

var _ actor.Directory = (*Store)(nil)

// Authenticate verifies user credentials against the users table. Missing
// users and bad passwords are indistinguishable to the caller.
func (s *Store) Authenticate(ctx context.Context, email, password string) (actor.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u actor.User
	var role string
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, home_org, elevated from users where email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.HomeOrg, &u.Elevated)
	if errors.Is(err, sql.ErrNoRows) {
		return actor.User{}, actor.ErrUnknownUser
	}
	if err != nil {
		return actor.User{}, err
	}
	u.Role = actor.ParseRole(role)
	if err := actor.VerifyPassword(u.PasswordHash, password); err != nil {
		return actor.User{}, actor.ErrUnknownUser
	}
	return u, nil
}

// UpsertUser creates or updates a directory entry. Used by seeding.
func (s *Store) UpsertUser(ctx context.Context, u actor.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, role, home_org, elevated)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (id) do update set
			email = excluded.email,
			password_hash = excluded.password_hash,
			role = excluded.role,
			home_org = excluded.home_org,
			elevated = excluded.elevated
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, string(u.Role), u.HomeOrg, u.Elevated)
	return err
}
