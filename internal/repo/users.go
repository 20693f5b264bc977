package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/keithlinneman/invitegate/internal/tier"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

const userCols = `id, email, name, password_hash, role, tier, created_at`

// CreateUser fills in ID, CreatedAt and defaults. Emails are unique,
// compared lower-cased.
func (d *DB) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = d.clock.Now().UTC()
	if u.Role == "" {
		u.Role = "user"
	}
	if u.Tier == "" {
		u.Tier = tier.Free
	}
	_, err := d.db.ExecContext(ctx, `INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, string(u.Tier), u.CreatedAt)
	if isUnique(err) {
		return User{}, ErrConflict
	}
	if err != nil {
		return User{}, xerrors.Wrap(err, "insert user")
	}
	return u, nil
}

func (d *DB) UserByEmail(ctx context.Context, email string) (User, error) {
	return d.scanUser(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (d *DB) UserByID(ctx context.Context, id string) (User, error) {
	return d.scanUser(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
}

func (d *DB) scanUser(ctx context.Context, q string, arg any) (User, error) {
	var u User
	var t string
	err := d.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &t, &u.CreatedAt)
	if err != nil {
		return User{}, notFound(err)
	}
	u.Tier = tier.Parse(t)
	return u, nil
}
