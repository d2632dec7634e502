package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/traffic-cli/internal/domain"
	"github.com/sells-group/traffic-cli/internal/model"
)

// pool is the subset of pgxpool.Pool the store needs. Tests substitute a
// pgxmock pool through this interface.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool pool
}

// NewPostgres connects to the database named by databaseURL.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: p}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	domain                       TEXT NOT NULL,
	month_year                   TEXT NOT NULL,
	monthly_visits               BIGINT,
	avg_session_duration_seconds BIGINT,
	bounce_rate                  DOUBLE PRECISION,
	pages_per_visit              DOUBLE PRECISION,
	checked_at                   TIMESTAMPTZ,
	PRIMARY KEY (domain, month_year)
);

CREATE TABLE IF NOT EXISTS latest (
	domain                       TEXT PRIMARY KEY,
	monthly_visits               BIGINT,
	avg_session_duration_seconds BIGINT,
	bounce_rate                  DOUBLE PRECISION,
	pages_per_visit              DOUBLE PRECISION,
	checked_at                   TIMESTAMPTZ,
	month_year                   TEXT,
	last_error                   TEXT
);

CREATE INDEX IF NOT EXISTS idx_snapshots_month ON snapshots(month_year);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, rec model.TrafficRecord) error {
	if rec.Domain == "" || rec.MonthYear == "" {
		return eris.New("postgres: record missing domain or month")
	}

	if !rec.HasMetrics() {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO latest (domain, last_error) VALUES ($1, $2)
			ON CONFLICT (domain) DO UPDATE SET last_error = EXCLUDED.last_error`,
			rec.Domain, nullString(rec.Error),
		)
		return eris.Wrapf(err, "postgres: record error for %s", rec.Domain)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (domain, month_year, monthly_visits, avg_session_duration_seconds, bounce_rate, pages_per_visit, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (domain, month_year) DO UPDATE SET
			monthly_visits = EXCLUDED.monthly_visits,
			avg_session_duration_seconds = EXCLUDED.avg_session_duration_seconds,
			bounce_rate = EXCLUDED.bounce_rate,
			pages_per_visit = EXCLUDED.pages_per_visit,
			checked_at = EXCLUDED.checked_at`,
		rec.Domain, rec.MonthYear, rec.MonthlyVisits, rec.AvgSessionDurationSeconds,
		rec.BounceRate, rec.PagesPerVisit, checkedAt(rec),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert snapshot %s %s", rec.Domain, rec.MonthYear)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO latest (domain, monthly_visits, avg_session_duration_seconds, bounce_rate, pages_per_visit, checked_at, month_year, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		ON CONFLICT (domain) DO UPDATE SET
			monthly_visits = EXCLUDED.monthly_visits,
			avg_session_duration_seconds = EXCLUDED.avg_session_duration_seconds,
			bounce_rate = EXCLUDED.bounce_rate,
			pages_per_visit = EXCLUDED.pages_per_visit,
			checked_at = EXCLUDED.checked_at,
			month_year = EXCLUDED.month_year,
			last_error = NULL`,
		rec.Domain, rec.MonthlyVisits, rec.AvgSessionDurationSeconds,
		rec.BounceRate, rec.PagesPerVisit, checkedAt(rec), rec.MonthYear,
	)
	return eris.Wrapf(err, "postgres: upsert latest %s", rec.Domain)
}

func (s *PostgresStore) GetBatch(ctx context.Context, domains []string) (map[string]model.TrafficRecord, error) {
	if len(domains) == 0 {
		return map[string]model.TrafficRecord{}, nil
	}

	keys := make([]any, 0, len(domains)*2)
	placeholders := make([]string, 0, len(domains)*2)
	for _, d := range domains {
		bare, www := domain.Variants(d)
		keys = append(keys, bare, www)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(keys)-1), fmt.Sprintf("$%d", len(keys)))
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM latest WHERE domain IN (%s)`, latestColumns, strings.Join(placeholders, ", ")),
		keys...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get batch")
	}
	defer rows.Close()

	found := make(map[string]model.TrafficRecord)
	for rows.Next() {
		rec, err := scanLatest(rows)
		if err != nil {
			return nil, err
		}
		key := domain.CacheKey(rec.Domain)
		if prev, ok := found[key]; ok && prev.Domain == key {
			continue
		}
		found[key] = *rec
	}
	return found, eris.Wrap(rows.Err(), "postgres: get batch rows")
}

func (s *PostgresStore) GetLatest(ctx context.Context, d string) (*model.TrafficRecord, error) {
	bare, www := domain.Variants(d)
	rows, err := s.pool.Query(ctx,
		`SELECT `+latestColumns+` FROM latest WHERE domain IN ($1, $2) ORDER BY domain = $1 DESC LIMIT 1`,
		bare, www,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get latest %s", d)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanLatest(rows)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) PruneSnapshots(ctx context.Context, retentionMonths int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, -retentionMonths, 0).Format(model.MonthYearLayout)
	tag, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE month_year < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune snapshots")
	}
	return tag.RowsAffected(), nil
}
