package regional

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/db"
)

// Layout describes which columns a regional table carries.
type Layout string

const (
	// LayoutMinimal tables store id, insured_id, schedule_id and created_at.
	// Rows are only written for processed appointments, so reads report COMPLETED.
	LayoutMinimal Layout = "minimal"
	// LayoutFull tables also store country, status and updated_at.
	LayoutFull Layout = "full"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config is everything that differs between regions.
type Config struct {
	Country appointment.Country
	PoolKey string
	Table   string
	Layout  Layout
	DB      db.Config
}

func (c Config) Validate() error {
	if !c.Country.Valid() {
		return fmt.Errorf("%w %q", appointment.ErrUnsupportedCountry, c.Country)
	}
	if c.PoolKey == "" {
		return errors.New("regional config: pool key is required")
	}
	if !tableNamePattern.MatchString(c.Table) {
		return fmt.Errorf("regional config: invalid table name %q", c.Table)
	}
	if c.Layout != LayoutMinimal && c.Layout != LayoutFull {
		return fmt.Errorf("regional config: unknown layout %q", c.Layout)
	}
	return nil
}

// Repository stores appointments in one region's relational database.
// Connections come from the shared pool manager keyed by PoolKey.
type Repository struct {
	cfg    Config
	pools  *db.Manager
	logger zerolog.Logger
}

var _ appointment.Repository = (*Repository)(nil)

func NewRepository(cfg Config, pools *db.Manager, logger zerolog.Logger) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Repository{
		cfg:    cfg,
		pools:  pools,
		logger: logger.With().Str("region", string(cfg.Country)).Str("table", cfg.Table).Logger(),
	}, nil
}

func (r *Repository) Country() appointment.Country { return r.cfg.Country }

func (r *Repository) getConnection(ctx context.Context) (db.Conn, error) {
	if _, err := r.pools.GetPool(ctx, r.cfg.PoolKey, r.cfg.DB); err != nil {
		return nil, err
	}
	return r.pools.GetConnection(ctx, r.cfg.PoolKey)
}

func (r *Repository) rebind(query string) string {
	return db.Rebind(r.cfg.DB.Driver, query)
}

// Create inserts the appointment. Re-inserting an existing id is a no-op so
// redelivered fan-out messages leave a single row.
func (r *Repository) Create(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	conn, err := r.getConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var query string
	var args []any
	switch r.cfg.Layout {
	case LayoutFull:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, insured_id, schedule_id, country_iso, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, r.cfg.Table)
		args = []any{a.ID, a.InsuredID, a.ScheduleID, string(a.CountryISO), string(a.Status), a.CreatedAt, a.UpdatedAt}
	default:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, insured_id, schedule_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING
		`, r.cfg.Table)
		args = []any{a.ID, a.InsuredID, a.ScheduleID, a.CreatedAt}
	}

	if err := conn.Exec(ctx, r.rebind(query), args...); err != nil {
		r.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("regional insert failed")
		return nil, fmt.Errorf("insert regional appointment: %w", err)
	}

	r.logger.Info().Str("appointment_id", a.ID).Msg("appointment saved to regional store")
	return a, nil
}

// ProcessAppointment is a no-op: regional rows are bookkeeping, the primary
// store owns the lifecycle.
func (r *Repository) ProcessAppointment(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	return a, nil
}

func (r *Repository) FindAllByInsuredID(ctx context.Context, insuredID string) ([]*appointment.Appointment, error) {
	conn, err := r.getConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	columns := "id, insured_id, schedule_id, created_at"
	if r.cfg.Layout == LayoutFull {
		columns = "id, insured_id, schedule_id, country_iso, status, created_at, updated_at"
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE insured_id = ?
		ORDER BY created_at DESC, id DESC
	`, columns, r.cfg.Table)

	rows, err := conn.Query(ctx, r.rebind(query), insuredID)
	if err != nil {
		return nil, fmt.Errorf("query regional appointments: %w", err)
	}
	defer rows.Close()

	result := make([]*appointment.Appointment, 0)
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read regional appointments: %w", err)
	}

	return result, nil
}

func (r *Repository) scanAppointment(rows db.Rows) (*appointment.Appointment, error) {
	a := appointment.Appointment{CountryISO: r.cfg.Country}

	if r.cfg.Layout == LayoutFull {
		var country, status string
		if err := rows.Scan(&a.ID, &a.InsuredID, &a.ScheduleID, &country, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan regional appointment: %w", err)
		}
		a.CountryISO = appointment.Country(country)
		a.Status = appointment.Status(status)
	} else {
		if err := rows.Scan(&a.ID, &a.InsuredID, &a.ScheduleID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan regional appointment: %w", err)
		}
		a.Status = appointment.StatusCompleted
		a.UpdatedAt = a.CreatedAt
	}

	a.CreatedAt = normalize(a.CreatedAt)
	a.UpdatedAt = normalize(a.UpdatedAt)
	return &a, nil
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Migrate creates the region table when it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	conn, err := r.getConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	ts := "TIMESTAMPTZ"
	if r.cfg.DB.Driver == db.DriverSQLite {
		ts = "DATETIME"
	}

	extra := ""
	if r.cfg.Layout == LayoutFull {
		extra = fmt.Sprintf(`
			country_iso VARCHAR(2) NOT NULL,
			status      VARCHAR(16) NOT NULL,
			updated_at  %s NOT NULL,`, ts)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id          VARCHAR(36) PRIMARY KEY,
			insured_id  VARCHAR(5) NOT NULL,
			schedule_id BIGINT NOT NULL,%[2]s
			created_at  %[3]s NOT NULL
		)
	`, r.cfg.Table, extra, ts)
	if err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", r.cfg.Table, err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_insured_id_idx ON %[1]s (insured_id, created_at)`, r.cfg.Table)
	if err := conn.Exec(ctx, index); err != nil {
		return fmt.Errorf("create index on %s: %w", r.cfg.Table, err)
	}

	r.logger.Info().Msg("regional table ready")
	return nil
}
