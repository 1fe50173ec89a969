// Package storage provides SQLite-backed persistence for price alerts.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/coinpulse/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an alert id does not exist.
var ErrNotFound = errors.New("alert not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/coinpulse/alerts.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "coinpulse", "alerts.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id                TEXT PRIMARY KEY,
			coin              TEXT NOT NULL,
			type              TEXT NOT NULL,
			condition         TEXT NOT NULL,
			threshold         REAL NOT NULL CHECK (threshold > 0),
			active            INTEGER NOT NULL DEFAULT 1,
			created_at        INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL,
			last_triggered_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_coin ON alerts(coin, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateAlert stores a new active alert and returns it with its assigned id.
func (s *Storage) CreateAlert(spec models.AlertSpec) (*models.Alert, error) {
	now := s.now()
	a := &models.Alert{
		ID:        uuid.NewString(),
		Coin:      strings.ToUpper(spec.Coin),
		Type:      spec.Type,
		Condition: spec.Condition,
		Threshold: spec.Threshold,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.Exec(`
		INSERT INTO alerts (id, coin, type, condition, threshold, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.Coin, string(a.Type), string(a.Condition), a.Threshold, boolToInt(a.Active),
		now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}
	return a, nil
}

func (s *Storage) GetAlert(id string) (*models.Alert, error) {
	row := s.db.QueryRow(`SELECT `+alertCols+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns a coin's alerts oldest first. An empty coin lists every alert.
func (s *Storage) ListAlerts(coin string) ([]models.Alert, error) {
	if coin == "" {
		return s.query(`SELECT ` + alertCols + ` FROM alerts ORDER BY created_at, id`)
	}
	return s.query(`SELECT `+alertCols+` FROM alerts WHERE coin = ? ORDER BY created_at, id`, strings.ToUpper(coin))
}

// ListActive returns active alerts of one type. An empty coin matches every coin.
func (s *Storage) ListActive(coin string, typ models.AlertType) ([]models.Alert, error) {
	if coin == "" {
		return s.query(`SELECT `+alertCols+` FROM alerts WHERE active = 1 AND type = ? ORDER BY created_at, id`, string(typ))
	}
	return s.query(`SELECT `+alertCols+` FROM alerts WHERE active = 1 AND type = ? AND coin = ? ORDER BY created_at, id`,
		string(typ), strings.ToUpper(coin))
}

// UpdateAlert replaces type, condition and threshold. The coin never changes.
func (s *Storage) UpdateAlert(id string, spec models.AlertSpec) (*models.Alert, error) {
	res, err := s.db.Exec(`
		UPDATE alerts SET type=?, condition=?, threshold=?, updated_at=?
		WHERE id=?`,
		string(spec.Type), string(spec.Condition), spec.Threshold, s.now().UnixNano(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	if err := expectOne(res, id); err != nil {
		return nil, err
	}
	return s.GetAlert(id)
}

func (s *Storage) SetActive(id string, active bool) error {
	res, err := s.db.Exec(`UPDATE alerts SET active=?, updated_at=? WHERE id=?`,
		boolToInt(active), s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return expectOne(res, id)
}

func (s *Storage) DeleteAlert(id string) error {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return expectOne(res, id)
}

// MarkTriggered records when an alert last fired.
func (s *Storage) MarkTriggered(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE alerts SET last_triggered_at=? WHERE id=?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to mark alert triggered: %w", err)
	}
	return expectOne(res, id)
}

func (s *Storage) query(q string, args ...any) ([]models.Alert, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

const alertCols = `id, coin, type, condition, threshold, active, created_at, updated_at, last_triggered_at`

func scanAlert(scan func(...any) error) (*models.Alert, error) {
	var a models.Alert
	var typ, cond string
	var active int
	var createdAtNano, updatedAtNano int64
	var triggeredNano sql.NullInt64
	err := scan(
		&a.ID, &a.Coin, &typ, &cond, &a.Threshold, &active,
		&createdAtNano, &updatedAtNano, &triggeredNano,
	)
	if err != nil {
		return nil, err
	}
	a.Type = models.AlertType(typ)
	a.Condition = models.Condition(cond)
	a.Active = active != 0
	a.CreatedAt = time.Unix(0, createdAtNano)
	a.UpdatedAt = time.Unix(0, updatedAtNano)
	if triggeredNano.Valid {
		t := time.Unix(0, triggeredNano.Int64)
		a.LastTriggeredAt = &t
	}
	return &a, nil
}

func expectOne(res sql.Result, id string) error {
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
