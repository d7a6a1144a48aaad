package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/cccost/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// History is an append-only SQLite ledger of recorded requests.
type History struct {
	db      *sql.DB
	project string
	logger  *slog.Logger
}

// OpenHistory opens or creates the ledger at dbPath. Observations are
// tagged with project.
func OpenHistory(dbPath, project string) (*History, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &History{db: db, project: project, logger: slog.Default()}, nil
}

// Close closes the ledger.
func (h *History) Close() error {
	return h.db.Close()
}

// Observe appends an observation. Failures are logged and dropped.
func (h *History) Observe(obs model.Observation) {
	if err := h.Insert(obs); err != nil {
		h.logger.Debug("history insert failed", "model", obs.Model, "error", err)
	}
}

// Insert appends one observation to the ledger.
func (h *History) Insert(obs model.Observation) error {
	at := obs.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := h.db.Exec(`INSERT INTO requests
		(session_id, project, model, ts_ms, input_tokens, output_tokens,
		 cache_creation_tokens, cache_read_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.SessionID, h.project, obs.Model, at.UnixMilli(),
		obs.Usage.InputTokens, obs.Usage.OutputTokens,
		obs.Usage.CacheCreationInputTokens, obs.Usage.CacheReadInputTokens, obs.Cost,
	)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	return nil
}

// Since returns every request at or after since, oldest first.
func (h *History) Since(since time.Time) ([]model.HistoryRow, error) {
	rows, err := h.db.Query(`SELECT session_id, project, model, ts_ms,
		input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, cost
		FROM requests WHERE ts_ms >= ? ORDER BY ts_ms, id`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.HistoryRow
	for rows.Next() {
		var (
			r  model.HistoryRow
			ts int64
		)
		if err := rows.Scan(&r.SessionID, &r.Project, &r.Model, &ts,
			&r.InputTokens, &r.OutputTokens, &r.CacheCreationInputTokens, &r.CacheReadInputTokens, &r.Cost); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes requests older than before and returns how many went.
func (h *History) Prune(before time.Time) (int64, error) {
	res, err := h.db.Exec("DELETE FROM requests WHERE ts_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored requests.
func (h *History) Count() (int, error) {
	var n int
	err := h.db.QueryRow("SELECT COUNT(*) FROM requests").Scan(&n)
	return n, err
}
