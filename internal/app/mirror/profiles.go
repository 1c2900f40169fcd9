package mirror

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oriundostartup/libreta/internal/domain/models"
)

// Profile is the mirrored copy of a remote profile.
type Profile struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsTeacher bool      `json:"is_teacher"`
	IsParent  bool      `json:"is_parent"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertProfile inserts the profile or overwrites every scalar field of the
// existing row. Dependent rows are untouched.
func (s *Store) UpsertProfile(ctx context.Context, p models.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (uid, email, full_name, phone, address, is_teacher, is_parent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			phone = excluded.phone,
			address = excluded.address,
			is_teacher = excluded.is_teacher,
			is_parent = excluded.is_parent,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		p.UID, p.Email, p.FullName, p.Phone, p.Address,
		boolInt(p.IsTeacher), boolInt(p.IsParent),
		millis(p.CreatedAt), millis(p.UpdatedAt),
	)
	return err
}

// GetProfile reads a mirrored profile.
func (s *Store) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	var (
		p                Profile
		teacher, parent  int
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, email, full_name, phone, address, is_teacher, is_parent, created_at, updated_at
		FROM profiles WHERE uid = ?`, uid,
	).Scan(&p.UID, &p.Email, &p.FullName, &p.Phone, &p.Address, &teacher, &parent, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.IsTeacher = teacher == 1
	p.IsParent = parent == 1
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// DeleteProfile removes a profile and, through cascades, every row synced
// for it. Deleting a missing profile is not an error.
func (s *Store) DeleteProfile(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE uid = ?`, uid)
	return err
}
