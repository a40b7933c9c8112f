package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"titanflow/internal/domain"
)

// Store is the service catalog and lead ledger backed by a SQL database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures optional Store dependencies.
type Option func(*Store)

// WithLogger sets a structured logger for store operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the timestamp source for new leads.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an open database. Panics if db is nil.
func New(db *sql.DB, opts ...Option) *Store {
	if db == nil {
		panic("store: db must not be nil")
	}
	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

var (
	_ domain.Catalog   = (*Store)(nil)
	_ domain.LeadStore = (*Store)(nil)
)

// DefaultServices is the catalog written by Seed.
var DefaultServices = []domain.Service{
	{Name: "Cloud Migration", HourlyRate: 200, Description: "Moving on-premise servers to AWS/Azure"},
	{Name: "security_audit", HourlyRate: 150, Description: "Full vulnerability scan and report"},
	{Name: "ai_consulting", HourlyRate: 300, Description: "implementation of RAG and LLM agents"},
	{Name: "devops_pipeline", HourlyRate: 120, Description: "CI/CD setup with GitHub Actions"},
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS services (
		name TEXT PRIMARY KEY,
		hourly_rate INTEGER,
		description TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_name TEXT,
		service_interested TEXT,
		priority_score INTEGER,
		status TEXT,
		created_at TEXT
	)`,
}

// Migrate creates the catalog and ledger tables. Databases created before
// leads carried a timestamp get the column added in place.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}

	has, err := s.hasColumn(ctx, "leads", "created_at")
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	if !has {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE leads ADD COLUMN created_at TEXT`); err != nil {
			return fmt.Errorf("store: migrate: add created_at: %w", err)
		}
		s.log().Info("store: added leads.created_at column")
	}
	return nil
}

func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Seed upserts the given services. Re-running it is idempotent.
func (s *Store) Seed(ctx context.Context, services []domain.Service) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: seed: %w", err)
	}
	defer tx.Rollback()

	for _, svc := range services {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO services (name, hourly_rate, description) VALUES (?, ?, ?)`,
			svc.Name, svc.HourlyRate, svc.Description,
		); err != nil {
			return fmt.Errorf("store: seed %q: %w", svc.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: seed: %w", err)
	}
	return nil
}

// FindService returns the first catalog entry whose name contains query,
// case-insensitively. Wildcards in query are matched literally.
func (s *Store) FindService(ctx context.Context, query string) (*domain.Service, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, hourly_rate, description FROM services
		 WHERE name LIKE ? ESCAPE '\' ORDER BY rowid LIMIT 1`,
		"%"+escapeLike(query)+"%",
	)

	var svc domain.Service
	if err := row.Scan(&svc.Name, &svc.HourlyRate, &svc.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrServiceNotFound
		}
		return nil, fmt.Errorf("store: find service: %w", err)
	}
	return &svc, nil
}

func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}

// ListServices returns the catalog in insertion order.
func (s *Store) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, hourly_rate, description FROM services ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.Name, &svc.HourlyRate, &svc.Description); err != nil {
			return nil, fmt.Errorf("store: list services: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	return out, nil
}

// SaveLead inserts one lead in a single statement and returns its ID. An
// empty status defaults to NEW.
func (s *Store) SaveLead(ctx context.Context, lead domain.Lead) (int64, error) {
	if lead.Status == "" {
		lead.Status = domain.LeadStatusNew
	}
	created := lead.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO leads (client_name, service_interested, priority_score, status, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		lead.ClientName, lead.Service, lead.Score, lead.Status,
		created.UTC().Format(time.RFC3339Nano),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: save lead: %w", err)
	}

	s.log().Info("store: lead saved", "id", id, "client", lead.ClientName, "score", lead.Score)
	return id, nil
}

// ListLeads returns leads newest first. limit <= 0 returns all of them.
func (s *Store) ListLeads(ctx context.Context, limit int) ([]domain.Lead, error) {
	q := `SELECT id, client_name, service_interested, priority_score, status, COALESCE(created_at, '')
	      FROM leads ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		var (
			l       domain.Lead
			created string
		)
		if err := rows.Scan(&l.ID, &l.ClientName, &l.Service, &l.Score, &l.Status, &created); err != nil {
			return nil, fmt.Errorf("store: list leads: %w", err)
		}
		if created != "" {
			if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
				l.CreatedAt = ts
			}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list leads: %w", err)
	}
	return out, nil
}

// Init migrates the schema and seeds the default catalog.
func (s *Store) Init(ctx context.Context) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	return s.Seed(ctx, DefaultServices)
}
