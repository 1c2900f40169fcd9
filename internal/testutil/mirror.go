package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/oriundostartup/libreta/internal/app/mirror"
)

// MirrorSnapshot returns every row the mirror holds for owner as
// column→value maps, keyed by table and ordered by local id. It reads the
// database file through its own connection.
func MirrorSnapshot(t *testing.T, m *mirror.Store, owner string) map[string][]map[string]any {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+m.Path()+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open mirror for snapshot: %v", err)
	}
	defer db.Close()

	ctx, cancel := TestContext()
	defer cancel()

	out := make(map[string][]map[string]any, len(mirror.Tables)+1)
	for _, table := range append([]string{"profiles"}, mirror.Tables...) {
		q := `SELECT * FROM ` + table + ` WHERE owner_uid = ? ORDER BY id`
		if table == "profiles" {
			q = `SELECT * FROM profiles WHERE uid = ?`
		}
		recs, err := dumpRows(ctx, db, q, owner)
		if err != nil {
			t.Fatalf("snapshot %s: %v", table, err)
		}
		out[table] = recs
	}
	return out
}

func dumpRows(ctx context.Context, db *sql.DB, q string, args ...any) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
