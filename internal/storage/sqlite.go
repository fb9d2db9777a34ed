// Package storage persists monitored searches, result snapshots, and
// notification events in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for monitored searches,
// snapshots, notification events, and per-search leases.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "tourwatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Monitored searches ---

const searchColumns = `id, owner_id, query_json, conditions_json, monitor_until,
	is_active, is_paused, checks_count, notifications_count,
	last_checked_at, last_notification_at, created_at, updated_at`

func (s *Store) CreateSearch(m MonitoredSearch) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO monitored_searches (id, owner_id, query_json, conditions_json, monitor_until,
			is_active, is_paused, checks_count, notifications_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, 0, 0, 0, ?, ?)`,
		m.ID, m.OwnerID, m.QueryJSON, m.ConditionsJSON, fmtTime(m.MonitorUntil),
		fmtTime(m.CreatedAt), fmtTime(m.CreatedAt),
	)
	return err
}

func (s *Store) scanSearch(row interface{ Scan(...any) error }) (MonitoredSearch, error) {
	var m MonitoredSearch
	var monitorUntil, createdAt, updatedAt string
	var lastChecked, lastNotified sql.NullString
	err := row.Scan(&m.ID, &m.OwnerID, &m.QueryJSON, &m.ConditionsJSON, &monitorUntil,
		&m.IsActive, &m.IsPaused, &m.ChecksCount, &m.NotificationsCount,
		&lastChecked, &lastNotified, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return MonitoredSearch{}, ErrNotFound
	}
	if err != nil {
		return MonitoredSearch{}, err
	}
	if m.MonitorUntil, err = parseTime(monitorUntil); err != nil {
		return MonitoredSearch{}, fmt.Errorf("parsing monitor_until: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return MonitoredSearch{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return MonitoredSearch{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if m.LastCheckedAt, err = parseNullableTime(lastChecked); err != nil {
		return MonitoredSearch{}, fmt.Errorf("parsing last_checked_at: %w", err)
	}
	if m.LastNotificationAt, err = parseNullableTime(lastNotified); err != nil {
		return MonitoredSearch{}, fmt.Errorf("parsing last_notification_at: %w", err)
	}
	return m, nil
}

func (s *Store) GetSearch(id string) (MonitoredSearch, error) {
	row := s.db.QueryRow(`SELECT `+searchColumns+` FROM monitored_searches WHERE id = ?`, id)
	return s.scanSearch(row)
}

// ListEligible returns active, unpaused searches whose monitoring window has
// not expired, ordered by creation time for stable tick ordering.
func (s *Store) ListEligible(now time.Time) ([]MonitoredSearch, error) {
	rows, err := s.db.Query(`
		SELECT `+searchColumns+` FROM monitored_searches
		WHERE is_active = 1 AND is_paused = 0 AND monitor_until >= ?
		ORDER BY created_at ASC`, fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectSearches(rows)
}

// ListExpired returns active searches whose monitoring window has passed.
func (s *Store) ListExpired(now time.Time) ([]MonitoredSearch, error) {
	rows, err := s.db.Query(`
		SELECT `+searchColumns+` FROM monitored_searches
		WHERE is_active = 1 AND monitor_until < ?
		ORDER BY created_at ASC`, fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectSearches(rows)
}

// ListByOwner returns an owner's searches, newest first. Stopped searches are
// retained for history and included when includeStopped is set.
func (s *Store) ListByOwner(ownerID string, includeStopped bool) ([]MonitoredSearch, error) {
	query := `SELECT ` + searchColumns + ` FROM monitored_searches WHERE owner_id = ?`
	if !includeStopped {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.Query(query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectSearches(rows)
}

func (s *Store) collectSearches(rows *sql.Rows) ([]MonitoredSearch, error) {
	var results []MonitoredSearch
	for rows.Next() {
		m, err := s.scanSearch(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SetPaused flips the reversible paused flag. Owner-scoped; a stopped search
// cannot be paused or resumed.
func (s *Store) SetPaused(id, ownerID string, paused bool) error {
	m, err := s.GetSearch(id)
	if err != nil {
		return err
	}
	if m.OwnerID != ownerID {
		return ErrNotFound
	}
	if !m.IsActive {
		return ErrStopped
	}
	_, err = s.db.Exec(`UPDATE monitored_searches SET is_paused = ?, updated_at = ? WHERE id = ?`,
		paused, fmtTime(time.Now()), id)
	return err
}

// Stop deactivates a search permanently. Owner-scoped. Stopping an already
// stopped search is a no-op.
func (s *Store) Stop(id, ownerID string) error {
	m, err := s.GetSearch(id)
	if err != nil {
		return err
	}
	if m.OwnerID != ownerID {
		return ErrNotFound
	}
	return s.autoStop(id)
}

// AutoStop deactivates a search without owner scoping. Used by the scheduler
// when the monitoring window expires.
func (s *Store) AutoStop(id string) error {
	return s.autoStop(id)
}

func (s *Store) autoStop(id string) error {
	res, err := s.db.Exec(`UPDATE monitored_searches SET is_active = 0, is_paused = 0, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Leases ---

// AcquireLease claims the per-search processing lease until the given
// deadline. It returns false when another worker holds an unexpired lease.
// The claim is a single guarded UPDATE, so two workers can never both win.
func (s *Store) AcquireLease(id string, now, until time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE monitored_searches SET lease_until = ?
		WHERE id = ? AND (lease_until IS NULL OR lease_until <= ?)`,
		fmtTime(until), id, fmtTime(now))
	if err != nil {
		return false, fmt.Errorf("acquiring lease for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseLease clears the processing lease.
func (s *Store) ReleaseLease(id string) error {
	_, err := s.db.Exec(`UPDATE monitored_searches SET lease_until = NULL WHERE id = ?`, id)
	return err
}

// --- Snapshots ---

// LatestSnapshots returns the live snapshot per candidate for a search.
func (s *Store) LatestSnapshots(searchID string) (map[string]ResultSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT search_id, candidate_key, price, currency, score, available, found_at, is_notified
		FROM result_snapshots WHERE search_id = ?`, searchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]ResultSnapshot)
	for rows.Next() {
		var snap ResultSnapshot
		var foundAt string
		if err := rows.Scan(&snap.SearchID, &snap.CandidateKey, &snap.Price, &snap.Currency,
			&snap.Score, &snap.Available, &foundAt, &snap.IsNotified); err != nil {
			return nil, err
		}
		if snap.FoundAt, err = parseTime(foundAt); err != nil {
			return nil, fmt.Errorf("parsing found_at: %w", err)
		}
		result[snap.CandidateKey] = snap
	}
	return result, rows.Err()
}

// --- Cycle commit ---

// ApplyCycle commits one successful monitoring cycle atomically: snapshot
// upserts, notification event inserts, and the search's counter/timestamp
// updates all land in a single transaction, or none of them do.
func (s *Store) ApplyCycle(searchID string, checkedAt time.Time, snapshots []ResultSnapshot, events []NotificationEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning cycle transaction: %w", err)
	}
	defer tx.Rollback()

	for _, snap := range snapshots {
		if _, err := tx.Exec(`
			INSERT INTO result_snapshots (search_id, candidate_key, price, currency, score, available, found_at, is_notified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(search_id, candidate_key) DO UPDATE SET
				price = excluded.price, currency = excluded.currency, score = excluded.score,
				available = excluded.available, found_at = excluded.found_at,
				is_notified = is_notified OR excluded.is_notified`,
			snap.SearchID, snap.CandidateKey, snap.Price, snap.Currency,
			snap.Score, snap.Available, fmtTime(snap.FoundAt), snap.IsNotified,
		); err != nil {
			return fmt.Errorf("upserting snapshot %s: %w", snap.CandidateKey, err)
		}
	}

	for _, ev := range events {
		if _, err := tx.Exec(`
			INSERT INTO notification_events (id, search_id, candidate_key, reason, score, price_delta, message, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.SearchID, ev.CandidateKey, ev.Reason, ev.Score,
			ev.PriceDelta, ev.Message, EventPending, fmtTime(ev.CreatedAt),
		); err != nil {
			return fmt.Errorf("inserting event %s: %w", ev.ID, err)
		}
	}

	query := `UPDATE monitored_searches SET
		checks_count = checks_count + 1,
		notifications_count = notifications_count + ?,
		last_checked_at = ?, updated_at = ?`
	args := []any{len(events), fmtTime(checkedAt), fmtTime(checkedAt)}
	if len(events) > 0 {
		query += `, last_notification_at = ?`
		args = append(args, fmtTime(checkedAt))
	}
	query += ` WHERE id = ?`
	args = append(args, searchID)

	res, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("updating counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// --- Notification events ---

// CountEventsSince counts a search's events created at or after t,
// regardless of delivery status. Used to enforce the daily budget.
func (s *Store) CountEventsSince(searchID string, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM notification_events WHERE search_id = ? AND created_at >= ?`,
		searchID, fmtTime(t)).Scan(&n)
	return n, err
}

// UpdateEventStatus records the delivery outcome for an event.
func (s *Store) UpdateEventStatus(id, status string, deliveredAt *time.Time) error {
	res, err := s.db.Exec(`UPDATE notification_events SET status = ?, delivered_at = ? WHERE id = ?`,
		status, fmtNullableTime(deliveredAt), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEvents returns a search's events, newest first.
func (s *Store) ListEvents(searchID string, limit int) ([]NotificationEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, search_id, candidate_key, reason, score, price_delta, message, status, created_at, delivered_at
		FROM notification_events WHERE search_id = ?
		ORDER BY created_at DESC LIMIT ?`, searchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

// ListRecentEvents returns the newest events across all searches.
func (s *Store) ListRecentEvents(limit int) ([]NotificationEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, search_id, candidate_key, reason, score, price_delta, message, status, created_at, delivered_at
		FROM notification_events
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectEvents(rows)
}

func (s *Store) collectEvents(rows *sql.Rows) ([]NotificationEvent, error) {
	var results []NotificationEvent
	for rows.Next() {
		var ev NotificationEvent
		var createdAt string
		var deliveredAt sql.NullString
		if err := rows.Scan(&ev.ID, &ev.SearchID, &ev.CandidateKey, &ev.Reason, &ev.Score,
			&ev.PriceDelta, &ev.Message, &ev.Status, &createdAt, &deliveredAt); err != nil {
			return nil, err
		}
		var err error
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if ev.DeliveredAt, err = parseNullableTime(deliveredAt); err != nil {
			return nil, fmt.Errorf("parsing delivered_at: %w", err)
		}
		results = append(results, ev)
	}
	return results, rows.Err()
}
