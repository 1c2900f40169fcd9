package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// table describes one owner-scoped mirror table: the data columns that follow
// owner_uid and remote_id.
type table struct {
	name string
	cols []string
}

// row is one record to upsert; vals line up with table.cols.
type row struct {
	remoteID string
	vals     []any
}

func (t table) upsertSQL() string {
	all := append([]string{"owner_uid", "remote_id"}, t.cols...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(all)), ", ")
	sets := make([]string, 0, len(t.cols))
	for _, c := range t.cols {
		sets = append(sets, c+" = excluded."+c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(owner_uid, remote_id) DO UPDATE SET %s",
		t.name, strings.Join(all, ", "), marks, strings.Join(sets, ", "),
	)
}

// replace makes the owner's rows in t exactly rows: existing rows are
// overwritten in place (keeping their local id), new rows are inserted and
// rows the remote no longer returns are deleted. One transaction per call.
func (s *Store) replace(ctx context.Context, t table, ownerUID string, rows []row) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertRows(ctx, tx, t, ownerUID, rows); err != nil {
			return err
		}
		return prune(ctx, tx, t, ownerUID, rows)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsertRows(ctx context.Context, tx *sql.Tx, t table, ownerUID string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, t.upsertSQL())
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		args := make([]any, 0, 2+len(r.vals))
		args = append(args, ownerUID, r.remoteID)
		args = append(args, r.vals...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("%s %s: %w", t.name, r.remoteID, err)
		}
	}
	return nil
}

func prune(ctx context.Context, tx *sql.Tx, t table, ownerUID string, keep []row) error {
	wanted := make(map[string]struct{}, len(keep))
	for _, r := range keep {
		wanted[r.remoteID] = struct{}{}
	}

	existing, err := remoteIDs(ctx, tx, t.name, ownerUID)
	if err != nil {
		return err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE owner_uid = ? AND remote_id = ?", t.name)
	for _, id := range existing {
		if _, ok := wanted[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, del, ownerUID, id); err != nil {
			return err
		}
	}
	return nil
}

func remoteIDs(ctx context.Context, tx *sql.Tx, tableName, ownerUID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT remote_id FROM "+tableName+" WHERE owner_uid = ?", ownerUID)
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
