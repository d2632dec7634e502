package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/traffic-cli/internal/domain"
	"github.com/sells-group/traffic-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	domain                       TEXT NOT NULL,
	month_year                   TEXT NOT NULL,
	monthly_visits               INTEGER,
	avg_session_duration_seconds INTEGER,
	bounce_rate                  REAL,
	pages_per_visit              REAL,
	checked_at                   DATETIME,
	PRIMARY KEY (domain, month_year)
);

CREATE TABLE IF NOT EXISTS latest (
	domain                       TEXT PRIMARY KEY,
	monthly_visits               INTEGER,
	avg_session_duration_seconds INTEGER,
	bounce_rate                  REAL,
	pages_per_visit              REAL,
	checked_at                   DATETIME,
	month_year                   TEXT,
	last_error                   TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_month ON snapshots(month_year);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, rec model.TrafficRecord) error {
	if rec.Domain == "" || rec.MonthYear == "" {
		return eris.New("sqlite: record missing domain or month")
	}

	if !rec.HasMetrics() {
		// Failure write: record the error on the projection without
		// touching whatever good data is already there.
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO latest (domain, last_error) VALUES (?, ?)
			ON CONFLICT(domain) DO UPDATE SET last_error = excluded.last_error`,
			rec.Domain, nullString(rec.Error),
		)
		return eris.Wrapf(err, "sqlite: record error for %s", rec.Domain)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (domain, month_year, monthly_visits, avg_session_duration_seconds, bounce_rate, pages_per_visit, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, month_year) DO UPDATE SET
			monthly_visits = excluded.monthly_visits,
			avg_session_duration_seconds = excluded.avg_session_duration_seconds,
			bounce_rate = excluded.bounce_rate,
			pages_per_visit = excluded.pages_per_visit,
			checked_at = excluded.checked_at`,
		rec.Domain, rec.MonthYear, rec.MonthlyVisits, rec.AvgSessionDurationSeconds,
		rec.BounceRate, rec.PagesPerVisit, checkedAt(rec),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert snapshot %s %s", rec.Domain, rec.MonthYear)
	}

	// A successful write clears the projection's error: the most recent
	// attempt worked.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO latest (domain, monthly_visits, avg_session_duration_seconds, bounce_rate, pages_per_visit, checked_at, month_year, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(domain) DO UPDATE SET
			monthly_visits = excluded.monthly_visits,
			avg_session_duration_seconds = excluded.avg_session_duration_seconds,
			bounce_rate = excluded.bounce_rate,
			pages_per_visit = excluded.pages_per_visit,
			checked_at = excluded.checked_at,
			month_year = excluded.month_year,
			last_error = NULL`,
		rec.Domain, rec.MonthlyVisits, rec.AvgSessionDurationSeconds,
		rec.BounceRate, rec.PagesPerVisit, checkedAt(rec), rec.MonthYear,
	)
	return eris.Wrapf(err, "sqlite: upsert latest %s", rec.Domain)
}

const latestColumns = `domain, monthly_visits, avg_session_duration_seconds, bounce_rate, pages_per_visit, checked_at, month_year, last_error`

func (s *SQLiteStore) GetBatch(ctx context.Context, domains []string) (map[string]model.TrafficRecord, error) {
	if len(domains) == 0 {
		return map[string]model.TrafficRecord{}, nil
	}

	keys := make([]any, 0, len(domains)*2)
	for _, d := range domains {
		bare, www := domain.Variants(d)
		keys = append(keys, bare, www)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM latest WHERE domain IN (%s)`, latestColumns, placeholders),
		keys...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get batch")
	}
	defer rows.Close()

	found := make(map[string]model.TrafficRecord)
	for rows.Next() {
		rec, err := scanLatest(rows)
		if err != nil {
			return nil, err
		}
		key := domain.CacheKey(rec.Domain)
		// Bare form wins when both variants are stored.
		if prev, ok := found[key]; ok && prev.Domain == key {
			continue
		}
		found[key] = *rec
	}
	return found, eris.Wrap(rows.Err(), "sqlite: get batch rows")
}

func (s *SQLiteStore) GetLatest(ctx context.Context, d string) (*model.TrafficRecord, error) {
	bare, www := domain.Variants(d)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+latestColumns+` FROM latest WHERE domain IN (?, ?) ORDER BY domain = ? DESC LIMIT 1`,
		bare, www, bare,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get latest %s", d)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanLatest(rows)
}

func (s *SQLiteStore) PruneSnapshots(ctx context.Context, retentionMonths int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, -retentionMonths, 0).Format(model.MonthYearLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE month_year < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune snapshots")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: prune rows affected")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLatest(row scanner) (*model.TrafficRecord, error) {
	var (
		rec       model.TrafficRecord
		visits    sql.NullInt64
		duration  sql.NullInt64
		bounce    sql.NullFloat64
		pages     sql.NullFloat64
		checked   sql.NullTime
		monthYear sql.NullString
		lastErr   sql.NullString
	)
	if err := row.Scan(&rec.Domain, &visits, &duration, &bounce, &pages, &checked, &monthYear, &lastErr); err != nil {
		return nil, eris.Wrap(err, "store: scan latest")
	}
	if visits.Valid {
		rec.MonthlyVisits = &visits.Int64
	}
	if duration.Valid {
		rec.AvgSessionDurationSeconds = &duration.Int64
	}
	if bounce.Valid {
		rec.BounceRate = &bounce.Float64
	}
	if pages.Valid {
		rec.PagesPerVisit = &pages.Float64
	}
	if checked.Valid {
		t := checked.Time.UTC()
		rec.CheckedAt = &t
	}
	rec.MonthYear = monthYear.String
	rec.Error = lastErr.String
	return &rec, nil
}

func checkedAt(rec model.TrafficRecord) time.Time {
	if rec.CheckedAt != nil {
		return rec.CheckedAt.UTC()
	}
	return time.Now().UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
