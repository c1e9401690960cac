package sync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/datacenterhub/idcbus/internal/errkind"
	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/obsmetrics"
)

// ChunkedMover is the shared "key-driven selector + chunked bind-positional
// writes, commit per chunk" pattern spec §4.8 names without a dedicated
// module of its own. It backs both migratetable (select+insert+delete) and
// deletetable (select+delete only) — the two share everything except
// whether DestTable is set.
//
// Grounded on original_source/project/tools/c/migratetable.cpp (the
// insert-then-delete path, including its duplicate-key-is-swallowed
// policy) and deletetable.cpp (the delete-only path).
type ChunkedMover struct {
	Select *sql.DB // connection the source-table key query runs against
	Write  *sql.DB // connection inserts/deletes run against; may equal Select

	SourceTable string
	KeyCol      string
	Where       string // appended verbatim after the table name, e.g. "WHERE status = 1"

	// DestTable and DestCols select the migratetable behavior: when
	// DestTable is non-empty, each chunk is first copied with
	// "INSERT INTO DestTable(cols) SELECT cols FROM SourceTable WHERE
	// keycol IN (...)" before the matching rows are deleted from
	// SourceTable. A 1062 duplicate-key error on that insert is logged
	// and swallowed — the source may already hold a previously-migrated
	// copy — while any other insert error aborts the chunk.
	DestTable string
	DestCols  []string

	MaxCount int // defaults to maxBatchParams when <= 0

	Log *obslog.Logger
}

func (m *ChunkedMover) logf(format string, args ...interface{}) {
	if m.Log != nil {
		m.Log.Printf(format, args...)
	}
}

func (m *ChunkedMover) maxCount() int {
	if m.MaxCount <= 0 || m.MaxCount > maxBatchParams {
		return maxBatchParams
	}
	return m.MaxCount
}

// Run selects every matching key from SourceTable and, one chunk at a
// time, optionally copies then deletes it, committing per chunk. It
// returns the total number of keys processed.
func (m *ChunkedMover) Run(ctx context.Context) (int, error) {
	q := fmt.Sprintf("SELECT %s FROM %s", m.KeyCol, m.SourceTable)
	if m.Where != "" {
		q += " " + m.Where
	}
	rows, err := m.Select.QueryContext(ctx, q)
	if err != nil {
		return 0, errkind.New(errkind.DbTransient, "sync.ChunkedMover.Run", err)
	}
	defer rows.Close()

	max := m.maxCount()
	chunk := make([]string, 0, max)
	moved := 0

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := m.processChunk(ctx, chunk); err != nil {
			return err
		}
		moved += len(chunk)
		obsmetrics.SyncRowsTotal.WithLabelValues(m.SourceTable).Add(float64(len(chunk)))
		chunk = chunk[:0]
		return nil
	}

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return moved, errkind.New(errkind.DbTransient, "sync.ChunkedMover.Scan", err)
		}
		chunk = append(chunk, key)
		if len(chunk) == max {
			if err := flush(); err != nil {
				return moved, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return moved, errkind.New(errkind.DbTransient, "sync.ChunkedMover.rows.Err", err)
	}
	if err := flush(); err != nil {
		return moved, err
	}

	if moved > 0 {
		m.logf("%s %s %d rows", m.action(), m.SourceTable, moved)
	}
	return moved, nil
}

func (m *ChunkedMover) action() string {
	if m.DestTable != "" {
		return "migrated"
	}
	return "deleted from"
}

func (m *ChunkedMover) processChunk(ctx context.Context, keys []string) error {
	tx, err := m.Write.BeginTx(ctx, nil)
	if err != nil {
		return errkind.New(errkind.DbTransient, "sync.ChunkedMover.BeginTx", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	if m.DestTable != "" {
		insertQ := fmt.Sprintf("INSERT INTO %s(%s) SELECT %s FROM %s WHERE %s IN (%s)",
			m.DestTable, strings.Join(m.DestCols, ", "), strings.Join(m.DestCols, ", "),
			m.SourceTable, m.KeyCol, placeholders)
		if _, err := tx.ExecContext(ctx, insertQ, args...); err != nil {
			if isDuplicateKey(err) {
				m.logf("migrate insert duplicate key, swallowed: %v", err)
			} else {
				tx.Rollback()
				return errkind.New(errkind.DbTransient, "sync.ChunkedMover.insert", err)
			}
		}
	}

	deleteQ := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", m.SourceTable, m.KeyCol, placeholders)
	if _, err := tx.ExecContext(ctx, deleteQ, args...); err != nil {
		tx.Rollback()
		return errkind.New(errkind.DbTransient, "sync.ChunkedMover.delete", err)
	}

	if err := tx.Commit(); err != nil {
		return errkind.New(errkind.DbTransient, "sync.ChunkedMover.Commit", err)
	}
	return nil
}
