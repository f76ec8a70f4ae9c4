package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"memorial/internal"
)

var ErrRunNotFound = errors.New("run not found")

const dateLayout = "2006-01-02"

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS mails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  source TEXT NOT NULL,
  sourceKind TEXT NOT NULL,
  strategy TEXT NOT NULL,
  mailId INTEGER,
  rawRecords INTEGER NOT NULL,
  dropped INTEGER NOT NULL,
  emitted INTEGER NOT NULL,
  unknownName INTEGER NOT NULL,
  unknownRank INTEGER NOT NULL,
  unknownUnit INTEGER NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(mailId) REFERENCES mails(id)
);
CREATE INDEX IF NOT EXISTS idx_runs_mailId ON runs(mailId);

CREATE TABLE IF NOT EXISTS soldiers (
  runId INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  name TEXT NOT NULL,
  rank TEXT NOT NULL,
  unit TEXT NOT NULL,
  deathDate TEXT NOT NULL,
  deathDateString TEXT NOT NULL,
  PRIMARY KEY(runId, seq),
  FOREIGN KEY(runId) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_soldiers_deathDate ON soldiers(deathDate);

CREATE TABLE IF NOT EXISTS defaulted (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  recordIndex INTEGER NOT NULL,
  field TEXT NOT NULL,
  snippet TEXT NOT NULL,
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// InsertRun stores a parse run with its records and defaulted fields in one
// transaction and returns the run id.
func (d *DB) InsertRun(run internal.RunSummary, records []internal.SoldierRecord, diag internal.Diagnostics) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	timings := run.TimingsJSON
	if timings == "" {
		timings = "{}"
	}
	res, err := tx.Exec(`
INSERT INTO runs (traceId, source, sourceKind, strategy, mailId, rawRecords, dropped, emitted, unknownName, unknownRank, unknownUnit, timingsJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.Source, string(run.SourceKind), run.Strategy, run.MailID,
		diag.RawRecords, diag.Dropped, len(records), diag.UnknownName, diag.UnknownRank, diag.UnknownUnit, timings)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	soldierStmt, err := tx.Prepare(`
INSERT INTO soldiers (runId, seq, name, rank, unit, deathDate, deathDateString)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return 0, err
	}
	defer soldierStmt.Close()
	for i, r := range records {
		if _, err := soldierStmt.Exec(runID, i, r.Name, r.Rank, r.Unit, r.DeathDate.Format(dateLayout), r.DeathDateString); err != nil {
			return 0, err
		}
	}

	defaultedStmt, err := tx.Prepare(`INSERT INTO defaulted (runId, recordIndex, field, snippet) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer defaultedStmt.Close()
	for _, rec := range diag.Defaulted {
		if _, err := defaultedStmt.Exec(runID, rec.Index, string(rec.Field), rec.Snippet); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

const runColumns = `id, traceId, source, sourceKind, strategy, mailId, rawRecords, dropped, emitted,
       unknownName, unknownRank, unknownUnit, timingsJson, createdAt`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (internal.RunSummary, error) {
	var run internal.RunSummary
	var kind string
	var mailID sql.NullInt64
	err := s.Scan(&run.ID, &run.TraceID, &run.Source, &kind, &run.Strategy, &mailID,
		&run.RawRecords, &run.Dropped, &run.Emitted,
		&run.UnknownName, &run.UnknownRank, &run.UnknownUnit, &run.TimingsJSON, &run.CreatedAt)
	if err != nil {
		return internal.RunSummary{}, err
	}
	run.SourceKind = internal.SourceKind(kind)
	if mailID.Valid {
		id := int(mailID.Int64)
		run.MailID = &id
	}
	return run, nil
}

func (d *DB) GetRun(id int64) (internal.RunSummary, error) {
	run, err := scanRun(d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.RunSummary{}, fmt.Errorf("%w: id=%d", ErrRunNotFound, id)
	}
	return run, err
}

// LatestRun returns the newest run, or ErrRunNotFound on an empty database.
func (d *DB) LatestRun() (internal.RunSummary, error) {
	run, err := scanRun(d.conn.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.RunSummary{}, ErrRunNotFound
	}
	return run, err
}

func (d *DB) ListRuns(limit int) ([]internal.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	return d.queryRuns(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
}

// ListRunsForMail returns the runs parsed from one mail in insertion order.
func (d *DB) ListRunsForMail(mailID int) ([]internal.RunSummary, error) {
	return d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE mailId = ? ORDER BY id ASC`, mailID)
}

func (d *DB) queryRuns(query string, args ...any) ([]internal.RunSummary, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (d *DB) ListSoldiers(runID int64) ([]internal.SoldierRecord, error) {
	rows, err := d.conn.Query(`
SELECT name, rank, unit, deathDate, deathDateString
FROM soldiers WHERE runId = ? ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SoldierRecord
	for rows.Next() {
		var r internal.SoldierRecord
		var date string
		if err := rows.Scan(&r.Name, &r.Rank, &r.Unit, &date, &r.DeathDateString); err != nil {
			return nil, err
		}
		r.DeathDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("soldier %d/%d: %w", runID, len(out), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) ListDefaulted(runID int64) ([]internal.DefaultedRecord, error) {
	rows, err := d.conn.Query(`
SELECT recordIndex, field, snippet FROM defaulted WHERE runId = ? ORDER BY id ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DefaultedRecord
	for rows.Next() {
		var rec internal.DefaultedRecord
		var field string
		if err := rows.Scan(&rec.Index, &field, &rec.Snippet); err != nil {
			return nil, err
		}
		rec.Field = internal.Field(field)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadRun rebuilds the records and diagnostics of a stored run.
func (d *DB) LoadRun(runID int64) (internal.RunSummary, []internal.SoldierRecord, internal.Diagnostics, error) {
	run, err := d.GetRun(runID)
	if err != nil {
		return internal.RunSummary{}, nil, internal.Diagnostics{}, err
	}
	records, err := d.ListSoldiers(runID)
	if err != nil {
		return internal.RunSummary{}, nil, internal.Diagnostics{}, err
	}
	defaulted, err := d.ListDefaulted(runID)
	if err != nil {
		return internal.RunSummary{}, nil, internal.Diagnostics{}, err
	}
	diag := internal.Diagnostics{
		RawRecords:  run.RawRecords,
		Dropped:     run.Dropped,
		UnknownName: run.UnknownName,
		UnknownRank: run.UnknownRank,
		UnknownUnit: run.UnknownUnit,
		Defaulted:   defaulted,
	}
	return run, records, diag, nil
}

// ClearMailRuns drops earlier runs of a mail so reprocessing does not duplicate them.
func (d *DB) ClearMailRuns(mailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM soldiers WHERE runId IN (SELECT id FROM runs WHERE mailId = ?)`,
		`DELETE FROM defaulted WHERE runId IN (SELECT id FROM runs WHERE mailId = ?)`,
		`DELETE FROM runs WHERE mailId = ?`,
	} {
		if _, err := tx.Exec(q, mailID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) UpsertMail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO mails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MailRow{}, err
	}

	row, err := d.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MailRow{}, err
	}
	if row == nil {
		return internal.MailRow{}, errors.New("failed to upsert mail")
	}
	return *row, nil
}

const mailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanMail(s rowScanner) (internal.MailRow, error) {
	var row internal.MailRow
	err := s.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetMailByProviderMessageID(provider, messageID string) (*internal.MailRow, error) {
	row, err := scanMail(d.conn.QueryRow(`SELECT `+mailColumns+` FROM mails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetMailByID(id int) (*internal.MailRow, error) {
	row, err := scanMail(d.conn.QueryRow(`SELECT `+mailColumns+` FROM mails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListMailsByStatus returns the oldest mails in status. An empty provider
// matches every provider.
func (d *DB) ListMailsByStatus(status, provider string, limit int) ([]internal.MailRow, error) {
	rows, err := d.conn.Query(`
SELECT `+mailColumns+` FROM mails
WHERE status = ? AND (? = '' OR provider = ?)
ORDER BY receivedAt ASC, id ASC
LIMIT ?`, status, provider, provider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MailRow
	for rows.Next() {
		row, err := scanMail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMailStatus(mailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE mails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, mailID)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
