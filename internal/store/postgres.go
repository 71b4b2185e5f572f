package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

const uniqueViolation = "23505"

// PoolOptions sizes the database/sql pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Postgres handles database operations for the allocation core
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a pgx-backed database/sql pool and verifies it answers.
func NewPostgres(dsn string, opts PoolOptions) (*Postgres, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*config)
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an already opened pool.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Ping checks that the database still answers.
func (p *Postgres) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// WithTx runs fn in a READ COMMITTED transaction. Conditional updates
// re-evaluate their WHERE clause after a concurrent writer commits, which is
// what turns a lost race into zero affected rows.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const applicationColumns = `id, property_id, applicant_name, applicant_email, applicant_phone, message, status, created_at, updated_at`

const unitColumns = `id, property_id, unit_number, unit_type, monthly_rent, status, version, updated_at`

const tenancyColumns = `id, property_id, unit_id, tenant_id, landlord_id, application_id, lease_start_date, lease_end_date,
	monthly_rent, security_deposit, status, ended_at, created_at, updated_at`

const profileColumns = `id, email, name, phone, role, created_at`

func scanApplication(row rowScanner) (*model.Application, error) {
	a := &model.Application{}
	var status string
	err := row.Scan(&a.ID, &a.PropertyID, &a.ApplicantName, &a.ApplicantEmail, &a.ApplicantPhone,
		&a.Message, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.ApplicationStatus(status)
	return a, nil
}

func scanUnit(row rowScanner) (*model.Unit, error) {
	u := &model.Unit{}
	var status string
	err := row.Scan(&u.ID, &u.PropertyID, &u.UnitNumber, &u.UnitType, &u.MonthlyRent, &status, &u.Version, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Status = model.UnitStatus(status)
	return u, nil
}

func scanTenancy(row rowScanner) (*model.Tenancy, error) {
	t := &model.Tenancy{}
	var (
		status  string
		appID   uuid.NullUUID
		endedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.PropertyID, &t.UnitID, &t.TenantID, &t.LandlordID, &appID,
		&t.LeaseStartDate, &t.LeaseEndDate, &t.MonthlyRent, &t.SecurityDeposit, &status,
		&endedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.TenancyStatus(status)
	if appID.Valid {
		id := appID.UUID
		t.ApplicationID = &id
	}
	if endedAt.Valid {
		ended := endedAt.Time
		t.EndedAt = &ended
	}
	return t, nil
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Phone, &p.Role, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", model.ErrNotFound, what, id)
	}
	return err
}

func getApplication(ctx context.Context, q querier, id uuid.UUID) (*model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	a, err := scanApplication(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "application", id)
	}
	return a, nil
}

func getUnit(ctx context.Context, q querier, id uuid.UUID) (*model.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1`
	u, err := scanUnit(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "unit", id)
	}
	return u, nil
}

func getTenancy(ctx context.Context, q querier, id uuid.UUID) (*model.Tenancy, error) {
	query := `SELECT ` + tenancyColumns + ` FROM tenancies WHERE id = $1`
	t, err := scanTenancy(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "tenancy", id)
	}
	return t, nil
}

// GetApplication retrieves an application by ID
func (p *Postgres) GetApplication(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	return getApplication(ctx, p.db, id)
}

// GetTenancy retrieves a tenancy by ID
func (p *Postgres) GetTenancy(ctx context.Context, id uuid.UUID) (*model.Tenancy, error) {
	return getTenancy(ctx, p.db, id)
}

// ListApplications returns a property's applications in the given status, oldest first.
func (p *Postgres) ListApplications(ctx context.Context, propertyID uuid.UUID, status model.ApplicationStatus) ([]model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
		WHERE property_id = $1 AND status = $2
		ORDER BY created_at`
	rows, err := p.db.QueryContext(ctx, query, propertyID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

// ListUnits returns a property's units in the given status, ordered by unit number.
func (p *Postgres) ListUnits(ctx context.Context, propertyID uuid.UUID, status model.UnitStatus) ([]model.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units
		WHERE property_id = $1 AND status = $2
		ORDER BY unit_number`
	rows, err := p.db.QueryContext(ctx, query, propertyID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []model.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

// FindProfileByEmail looks a profile up by its normalised email.
func (p *Postgres) FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE lower(email) = $1`
	profile, err := scanProfile(p.db.QueryRowContext(ctx, query, model.NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// CreateProfile inserts a new profile. The unique index on lower(email) is
// the authoritative guard against two concurrent creations.
func (p *Postgres) CreateProfile(ctx context.Context, profile *model.Profile) error {
	query := `INSERT INTO profiles (id, email, name, phone, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	profile.Email = model.NormalizeEmail(profile.Email)

	_, err := p.db.ExecContext(ctx, query, profile.ID, profile.Email, profile.Name, profile.Phone, profile.Role, profile.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: profile %s", model.ErrDuplicate, profile.Email)
	}
	return err
}

// ListTransitions returns the audit trail of one entity, oldest first.
func (p *Postgres) ListTransitions(ctx context.Context, entity string, entityID uuid.UUID) ([]model.Transition, error) {
	query := `SELECT id, entity, entity_id, from_state, to_state, actor, details, created_at
		FROM state_transitions
		WHERE entity = $1 AND entity_id = $2
		ORDER BY created_at, id`
	rows, err := p.db.QueryContext(ctx, query, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		var (
			tr      model.Transition
			details []byte
		)
		if err := rows.Scan(&tr.ID, &tr.Entity, &tr.EntityID, &tr.FromState, &tr.ToState, &tr.Actor, &details, &tr.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			tr.Details = json.RawMessage(details)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// UnitOccupancyAnomalies implements Store.
func (p *Postgres) UnitOccupancyAnomalies(ctx context.Context) ([]model.UnitOccupancy, error) {
	query := `
		SELECT u.id, u.property_id, u.status,
			COUNT(t.id) FILTER (WHERE t.status = 'active') AS active
		FROM units u
		LEFT JOIN tenancies t ON t.unit_id = u.id
		GROUP BY u.id, u.property_id, u.status
		HAVING (u.status = 'occupied' AND COUNT(t.id) FILTER (WHERE t.status = 'active') <> 1)
			OR (u.status <> 'occupied' AND COUNT(t.id) FILTER (WHERE t.status = 'active') > 0)
		ORDER BY u.property_id, u.id`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UnitOccupancy
	for rows.Next() {
		var (
			occ    model.UnitOccupancy
			status string
		)
		if err := rows.Scan(&occ.UnitID, &occ.PropertyID, &status, &occ.ActiveTenancies); err != nil {
			return nil, err
		}
		occ.Status = model.UnitStatus(status)
		out = append(out, occ)
	}
	return out, rows.Err()
}

// ApprovedWithoutTenancy implements Store.
func (p *Postgres) ApprovedWithoutTenancy(ctx context.Context) ([]model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications a
		WHERE a.status = 'approved'
		AND NOT EXISTS (SELECT 1 FROM tenancies t WHERE t.application_id = a.id)
		ORDER BY a.created_at`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

type pgTx struct {
	q querier
}

func (t *pgTx) GetApplication(ctx context.Context, id uuid.UUID) (*model.Application, error) {
	return getApplication(ctx, t.q, id)
}

func (t *pgTx) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, from, to model.ApplicationStatus) (*model.Application, error) {
	query := `UPDATE applications SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + applicationColumns
	a, err := scanApplication(t.q.QueryRowContext(ctx, query, id, string(from), string(to)))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := getApplication(ctx, t.q, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: application %s is %s, expected %s", model.ErrInvalidTransition, id, current.Status, from)
}

func (t *pgTx) GetUnit(ctx context.Context, id uuid.UUID) (*model.Unit, error) {
	return getUnit(ctx, t.q, id)
}

func (t *pgTx) UpdateUnitStatus(ctx context.Context, id uuid.UUID, expected, status model.UnitStatus) (*model.Unit, error) {
	query := `UPDATE units SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + unitColumns
	u, err := scanUnit(t.q.QueryRowContext(ctx, query, id, string(expected), string(status)))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := getUnit(ctx, t.q, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: unit %s is %s, expected %s", model.ErrConflict, id, current.Status, expected)
}

func (t *pgTx) GetTenancy(ctx context.Context, id uuid.UUID) (*model.Tenancy, error) {
	return getTenancy(ctx, t.q, id)
}

func (t *pgTx) InsertTenancy(ctx context.Context, tenancy *model.Tenancy) error {
	query := `INSERT INTO tenancies (id, property_id, unit_id, tenant_id, landlord_id, application_id,
		lease_start_date, lease_end_date, monthly_rent, security_deposit, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if tenancy.ID == uuid.Nil {
		tenancy.ID = uuid.New()
	}
	var appID uuid.NullUUID
	if tenancy.ApplicationID != nil {
		appID = uuid.NullUUID{UUID: *tenancy.ApplicationID, Valid: true}
	}

	_, err := t.q.ExecContext(ctx, query, tenancy.ID, tenancy.PropertyID, tenancy.UnitID, tenancy.TenantID,
		tenancy.LandlordID, appID, tenancy.LeaseStartDate, tenancy.LeaseEndDate, tenancy.MonthlyRent,
		tenancy.SecurityDeposit, string(tenancy.Status), tenancy.CreatedAt, tenancy.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: unit %s already has an active tenancy", model.ErrConflict, tenancy.UnitID)
	}
	return err
}

func (t *pgTx) UpdateTenancy(ctx context.Context, tenancy *model.Tenancy, expected model.TenancyStatus) error {
	query := `UPDATE tenancies SET unit_id = $3, monthly_rent = $4, status = $5, ended_at = $6, updated_at = $7
		WHERE id = $1 AND status = $2`
	var endedAt sql.NullTime
	if tenancy.EndedAt != nil {
		endedAt = sql.NullTime{Time: *tenancy.EndedAt, Valid: true}
	}

	res, err := t.q.ExecContext(ctx, query, tenancy.ID, string(expected), tenancy.UnitID, tenancy.MonthlyRent,
		string(tenancy.Status), endedAt, tenancy.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: unit %s already has an active tenancy", model.ErrConflict, tenancy.UnitID)
	}
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: tenancy %s is no longer %s", model.ErrConflict, tenancy.ID, expected)
	}
	return nil
}

func (t *pgTx) CountActiveTenancies(ctx context.Context, unitID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM tenancies WHERE unit_id = $1 AND status = 'active'`
	err := t.q.QueryRowContext(ctx, query, unitID).Scan(&count)
	return count, err
}

func (t *pgTx) InsertTransition(ctx context.Context, tr *model.Transition) error {
	query := `INSERT INTO state_transitions (id, entity, entity_id, from_state, to_state, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	var details any
	if len(tr.Details) > 0 {
		details = string(tr.Details)
	}
	_, err := t.q.ExecContext(ctx, query, tr.ID, tr.Entity, tr.EntityID, tr.FromState, tr.ToState, tr.Actor, details, tr.CreatedAt)
	return err
}
