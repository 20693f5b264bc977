package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/keithlinneman/invitegate/internal/xerrors"
)

const invitationCols = `id, owner_id, slug, title, fields, created_at, updated_at`

func (d *DB) CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error) {
	inv.ID = uuid.NewString()
	inv.CreatedAt = d.clock.Now().UTC()
	inv.UpdatedAt = inv.CreatedAt
	if inv.Fields == nil {
		inv.Fields = map[string]any{}
	}
	fields, err := json.Marshal(inv.Fields)
	if err != nil {
		return Invitation{}, xerrors.Wrap(err, "encode invitation fields")
	}
	_, err = d.db.ExecContext(ctx, `INSERT INTO invitations (`+invitationCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.OwnerID, inv.Slug, inv.Title, string(fields), inv.CreatedAt, inv.UpdatedAt)
	if isUnique(err) {
		return Invitation{}, ErrConflict
	}
	if err != nil {
		return Invitation{}, xerrors.Wrap(err, "insert invitation")
	}
	return inv, nil
}

func (d *DB) InvitationByID(ctx context.Context, id string) (Invitation, error) {
	return d.scanInvitation(d.db.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id))
}

func (d *DB) InvitationBySlug(ctx context.Context, slug string) (Invitation, error) {
	return d.scanInvitation(d.db.QueryRowContext(ctx, `SELECT `+invitationCols+` FROM invitations WHERE slug = ?`, slug))
}

// UpdateInvitation merges fields into the stored ones and replaces the
// title when non-empty.
func (d *DB) UpdateInvitation(ctx context.Context, id, title string, fields map[string]any) (Invitation, error) {
	inv, err := d.InvitationByID(ctx, id)
	if err != nil {
		return Invitation{}, err
	}
	if title != "" {
		inv.Title = title
	}
	for k, v := range fields {
		inv.Fields[k] = v
	}
	inv.UpdatedAt = d.clock.Now().UTC()
	enc, err := json.Marshal(inv.Fields)
	if err != nil {
		return Invitation{}, xerrors.Wrap(err, "encode invitation fields")
	}
	res, err := d.db.ExecContext(ctx, `UPDATE invitations SET title = ?, fields = ?, updated_at = ? WHERE id = ?`,
		inv.Title, string(enc), inv.UpdatedAt, id)
	if err != nil {
		return Invitation{}, xerrors.Wrap(err, "update invitation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Invitation{}, ErrNotFound
	}
	return inv, nil
}

func (d *DB) scanInvitation(row *sql.Row) (Invitation, error) {
	var inv Invitation
	var fields string
	if err := row.Scan(&inv.ID, &inv.OwnerID, &inv.Slug, &inv.Title, &fields, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invitation{}, notFound(err)
	}
	if err := json.Unmarshal([]byte(fields), &inv.Fields); err != nil {
		return Invitation{}, xerrors.Wrapf(err, "decode fields of invitation %s", inv.ID)
	}
	if inv.Fields == nil {
		inv.Fields = map[string]any{}
	}
	return inv, nil
}
