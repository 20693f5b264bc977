package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/keithlinneman/invitegate/internal/xerrors"
)

func (d *DB) CreateRSVP(ctx context.Context, r RSVP) (RSVP, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = d.clock.Now().UTC()
	if r.Guests < 1 {
		r.Guests = 1
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO rsvps (id, invitation_id, guest_name, attending, guests, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InvitationID, r.GuestName, r.Attending, r.Guests, r.Message, r.CreatedAt)
	if err != nil {
		return RSVP{}, xerrors.Wrap(err, "insert rsvp")
	}
	return r, nil
}

func (d *DB) CreateWish(ctx context.Context, w Wish) (Wish, error) {
	w.ID = uuid.NewString()
	w.CreatedAt = d.clock.Now().UTC()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO wishes (id, invitation_id, guest_name, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.InvitationID, w.GuestName, w.Message, w.CreatedAt)
	if err != nil {
		return Wish{}, xerrors.Wrap(err, "insert wish")
	}
	return w, nil
}

// ListWishes returns wishes newest first.
func (d *DB) ListWishes(ctx context.Context, invitationID string, limit, offset int) ([]Wish, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, invitation_id, guest_name, message, created_at
		FROM wishes WHERE invitation_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, invitationID, limit, offset)
	if err != nil {
		return nil, xerrors.Wrap(err, "query wishes")
	}
	defer rows.Close()

	out := []Wish{}
	for rows.Next() {
		var w Wish
		if err := rows.Scan(&w.ID, &w.InvitationID, &w.GuestName, &w.Message, &w.CreatedAt); err != nil {
			return nil, xerrors.Wrap(err, "scan wish")
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// AddPhotos inserts ps for one invitation in a single transaction. allow is
// called inside the transaction with the invitation's current photo count;
// a non-nil result rolls everything back and is returned unwrapped. The pool
// holds one connection, so concurrent callers see each other's commits.
func (d *DB) AddPhotos(ctx context.Context, invitationID string, ps []Photo, allow func(existing int) error) ([]Photo, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(err, "begin add photos")
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos WHERE invitation_id = ?`, invitationID).Scan(&existing); err != nil {
		return nil, xerrors.Wrap(err, "count photos")
	}
	if allow != nil {
		if err := allow(existing); err != nil {
			return nil, err
		}
	}

	now := d.clock.Now().UTC()
	out := make([]Photo, 0, len(ps))
	for _, p := range ps {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.InvitationID = invitationID
		p.CreatedAt = now
		_, err := tx.ExecContext(ctx, `
			INSERT INTO photos (id, invitation_id, object_key, content_type, size, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.InvitationID, p.Key, p.ContentType, p.Size, p.CreatedAt)
		if err != nil {
			return nil, xerrors.Wrap(err, "insert photo")
		}
		out = append(out, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(err, "commit photos")
	}
	return out, nil
}

func (d *DB) CountPhotos(ctx context.Context, invitationID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photos WHERE invitation_id = ?`, invitationID).Scan(&n)
	return n, xerrors.Wrap(err, "count photos")
}
