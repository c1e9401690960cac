package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"

	"github.com/datacenterhub/idcbus/internal/errkind"
	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/obsmetrics"
)

// mysqlDuplicateKey is the numeric error code the source checks ad hoc in
// just one place (migratetable.cpp); here it is the single, named point
// every caller uses to recognize it.
const mysqlDuplicateKey = 1062

// Worker runs one cycle of the watermark-based incremental pull described
// in §4.8: find the local watermark, fetch everything past it from the
// remote table in key order, batch-insert locally, commit per batch.
type Worker struct {
	cfg    Config
	local  *sql.DB
	remote *sql.DB
	log    *obslog.Logger
}

// Open dials both sides. Neither connection goes through the C7 pool —
// each sync worker is its own short-lived process with exactly two
// connections, exactly as syncincrement(ex).cpp's connloc/connrem are.
func Open(cfg Config, log *obslog.Logger) (*Worker, error) {
	cfg = cfg.withDefaults()
	local, err := sql.Open(cfg.LocalDriver, cfg.LocalDSN)
	if err != nil {
		return nil, fmt.Errorf("sync.Open: local: %w", err)
	}
	remote, err := sql.Open(cfg.RemoteDriver, cfg.RemoteDSN)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("sync.Open: remote: %w", err)
	}
	if len(cfg.RemoteCols) == 0 || len(cfg.LocalCols) == 0 {
		cols, err := allColumns(local, cfg.LocalTable)
		if err != nil {
			local.Close()
			remote.Close()
			return nil, fmt.Errorf("sync.Open: %w", err)
		}
		if len(cfg.RemoteCols) == 0 {
			cfg.RemoteCols = cols
		}
		if len(cfg.LocalCols) == 0 {
			cfg.LocalCols = cols
		}
	}
	return &Worker{cfg: cfg, local: local, remote: remote, log: log}, nil
}

func (w *Worker) Close() error {
	err1 := w.local.Close()
	err2 := w.remote.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}

// Run drives RunCycle forever: sleep Config.Interval on a zero-row cycle,
// loop immediately otherwise, until ctx is cancelled. Any cycle error, a
// duplicate-key error included, is returned to the caller unmodified, matching the source's
// EXIT(-1)-on-cycle-failure behavior — an external supervisor restarts the
// process.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		moved, err := w.RunCycle(ctx)
		if err != nil {
			return err
		}
		if moved == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.Interval):
			}
		}
	}
}

// RunCycle executes one pull cycle per §4.8 steps 1-5 and returns the
// number of rows moved.
func (w *Worker) RunCycle(ctx context.Context) (int, error) {
	maxKey, err := w.findMaxKey(ctx)
	if err != nil {
		return 0, errkind.New(errkind.DbTransient, "sync.findMaxKey", err)
	}

	rows, err := w.fetchRemoteRows(ctx, maxKey)
	if err != nil {
		return 0, errkind.New(errkind.DbTransient, "sync.fetchRemoteRows", err)
	}
	defer rows.Close()

	// The federated variant only ever needs the remote key column to drive
	// its "WHERE remotekey IN (...)" insert; the direct variant needs every
	// configured remote column, scanned straight into the local insert.
	cols := w.cfg.RemoteCols
	if w.cfg.FederatedTable != "" {
		cols = []string{w.cfg.RemoteKeyCol}
	}
	batch := make([][]string, 0, w.cfg.MaxCount)
	moved := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.insertBatch(ctx, batch); err != nil {
			return err
		}
		moved += len(batch)
		obsmetrics.SyncRowsTotal.WithLabelValues(w.cfg.LocalTable).Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		dest := make([]any, len(cols))
		vals := make([]string, len(cols))
		for i := range dest {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return moved, errkind.New(errkind.DbTransient, "sync.rows.Scan", err)
		}
		batch = append(batch, vals)

		if len(batch) == w.cfg.MaxCount {
			if err := flush(); err != nil {
				return moved, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return moved, errkind.New(errkind.DbTransient, "sync.rows.Err", err)
	}
	if err := flush(); err != nil {
		return moved, err
	}

	if moved > 0 {
		w.logf("synced %s to %s (%d rows)", w.cfg.RemoteTable, w.cfg.LocalTable, moved)
	}
	return moved, nil
}

func (w *Worker) findMaxKey(ctx context.Context) (string, error) {
	var maxKey sql.NullString
	q := fmt.Sprintf("SELECT MAX(%s) FROM %s", w.cfg.LocalKeyCol, w.cfg.LocalTable)
	if err := w.local.QueryRowContext(ctx, q).Scan(&maxKey); err != nil {
		return "", err
	}
	if !maxKey.Valid {
		return "0", nil
	}
	return maxKey.String, nil
}

// fetchRemoteRetries caps how many times fetchRemoteRows retries a
// transient remote-fetch failure before giving up the cycle.
const fetchRemoteRetries = 5

// fetchRemoteRows retries a failing remote cursor open with exponential
// backoff — the one place §4.8 names a transient-failure retry, since a
// momentary network blip on the remote fetch shouldn't burn a whole cycle.
// Mirrors the reconnect loop shape of leapmux's hub client (NextBackOff
// plus a cancellable sleep) rather than the teacher's own hand-rolled
// client/reconnect.go.
func (w *Worker) fetchRemoteRows(ctx context.Context, maxKey string) (*sql.Rows, error) {
	where := fmt.Sprintf("%s > ?", w.cfg.RemoteKeyCol)
	if w.cfg.Where != "" {
		where += fmt.Sprintf(" AND (%s)", w.cfg.Where)
	}
	selectCols := w.cfg.RemoteCols
	if w.cfg.FederatedTable != "" {
		selectCols = []string{w.cfg.RemoteKeyCol}
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(selectCols, ", "), w.cfg.RemoteTable, where, w.cfg.RemoteKeyCol)

	bo := newFetchBackoff()
	var lastErr error
	for attempt := 0; attempt < fetchRemoteRetries; attempt++ {
		rows, err := w.remote.QueryContext(ctx, q, maxKey)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		interval := bo.NextBackOff()
		w.logf("remote fetch attempt %d failed: %v, retrying in %s", attempt+1, err, interval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, lastErr
}

func newFetchBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	return b
}

// insertBatch writes one batch within a single local transaction, choosing
// the federated INSERT-SELECT form when Config.FederatedTable is set and a
// direct multi-row VALUES insert otherwise.
func (w *Worker) insertBatch(ctx context.Context, batch [][]string) error {
	tx, err := w.local.BeginTx(ctx, nil)
	if err != nil {
		return errkind.New(errkind.DbTransient, "sync.BeginTx", err)
	}

	var execErr error
	if w.cfg.FederatedTable != "" {
		execErr = w.insertFederated(ctx, tx, batch)
	} else {
		execErr = w.insertDirect(ctx, tx, batch)
	}
	if execErr != nil {
		tx.Rollback()
		if isDuplicateKey(execErr) {
			return errkind.New(errkind.Duplicate, "sync.insertBatch", execErr)
		}
		return errkind.New(errkind.DbTransient, "sync.insertBatch", execErr)
	}

	if err := tx.Commit(); err != nil {
		return errkind.New(errkind.DbTransient, "sync.Commit", err)
	}
	return nil
}

// insertDirect binds each fetched row's actual column values into one
// multi-row VALUES insert, the batched generalization of
// syncincrementex.cpp's per-row "insert into local(cols) values(...)".
func (w *Worker) insertDirect(ctx context.Context, tx *sql.Tx, batch [][]string) error {
	placeholderRow := "(" + strings.TrimSuffix(strings.Repeat("?,", len(w.cfg.LocalCols)), ",") + ")"
	placeholders := strings.TrimSuffix(strings.Repeat(placeholderRow+",", len(batch)), ",")
	q := fmt.Sprintf("INSERT INTO %s(%s) VALUES %s", w.cfg.LocalTable, strings.Join(w.cfg.LocalCols, ", "), placeholders)

	args := make([]any, 0, len(batch)*len(w.cfg.LocalCols))
	for _, row := range batch {
		for _, v := range row {
			args = append(args, v)
		}
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// insertFederated is the key-driven "INSERT INTO local(cols) SELECT
// remotecols FROM federated WHERE remotekey IN (...)" variant from
// syncincrement.cpp; batch[i][0] is always the remote key value, since
// fetchRemoteRows only ever selects RemoteKeyCol for this variant.
func (w *Worker) insertFederated(ctx context.Context, tx *sql.Tx, batch [][]string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
	q := fmt.Sprintf("INSERT INTO %s(%s) SELECT %s FROM %s WHERE %s IN (%s)",
		w.cfg.LocalTable, strings.Join(w.cfg.LocalCols, ", "), strings.Join(w.cfg.RemoteCols, ", "),
		w.cfg.FederatedTable, w.cfg.RemoteKeyCol, placeholders)

	args := make([]any, len(batch))
	for i, row := range batch {
		args[i] = row[0]
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

func isDuplicateKey(err error) bool {
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == mysqlDuplicateKey
	}
	return false
}

func allColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, fmt.Errorf("allColumns(%s): %w", table, err)
	}
	defer rows.Close()
	return rows.Columns()
}
