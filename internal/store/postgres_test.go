package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

var unitCols = []string{"id", "property_id", "unit_number", "unit_type", "monthly_rent", "status", "version", "updated_at"}

func setupMockDB(t *testing.T) (*Postgres, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
	return NewPostgresFromDB(db), mock, teardown
}

func TestPostgres_UpdateUnitStatus_Applied(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	unitID, propertyID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE units SET status`).
		WithArgs(unitID, "vacant", "occupied").
		WillReturnRows(sqlmock.NewRows(unitCols).
			AddRow(unitID.String(), propertyID.String(), "1A", "studio", int64(50000), "occupied", int64(2), now))
	mock.ExpectCommit()

	var got *model.Unit
	err := repo.WithTx(context.Background(), func(tx Tx) error {
		var err error
		got, err = tx.UpdateUnitStatus(context.Background(), unitID, model.UnitVacant, model.UnitOccupied)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, model.UnitOccupied, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, propertyID, got.PropertyID)
}

func TestPostgres_UpdateUnitStatus_LostRace(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	unitID, propertyID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE units SET status`).
		WithArgs(unitID, "vacant", "occupied").
		WillReturnRows(sqlmock.NewRows(unitCols))
	mock.ExpectQuery(`SELECT (.+) FROM units WHERE id`).
		WithArgs(unitID).
		WillReturnRows(sqlmock.NewRows(unitCols).
			AddRow(unitID.String(), propertyID.String(), "1A", "studio", int64(50000), "occupied", int64(2), now))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.UpdateUnitStatus(context.Background(), unitID, model.UnitVacant, model.UnitOccupied)
		return err
	})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestPostgres_UpdateUnitStatus_Missing(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	unitID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE units SET status`).WillReturnRows(sqlmock.NewRows(unitCols))
	mock.ExpectQuery(`SELECT (.+) FROM units WHERE id`).WillReturnRows(sqlmock.NewRows(unitCols))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.UpdateUnitStatus(context.Background(), unitID, model.UnitVacant, model.UnitOccupied)
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPostgres_UpdateApplicationStatus_AlreadyProcessed(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	appID, propertyID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	cols := []string{"id", "property_id", "applicant_name", "applicant_email", "applicant_phone", "message", "status", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE applications SET status`).
		WithArgs(appID, "pending", "approved").
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(`SELECT (.+) FROM applications WHERE id`).
		WithArgs(appID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(appID.String(), propertyID.String(), "Ann", "a@x.com", "", "", "approved", now, now))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.UpdateApplicationStatus(context.Background(), appID, model.ApplicationPending, model.ApplicationApproved)
		return err
	})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestPostgres_InsertTenancy_ActiveIndexViolation(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tenancies`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "tenancies_one_active_per_unit"})
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertTenancy(context.Background(), &model.Tenancy{
			PropertyID: uuid.New(),
			UnitID:     uuid.New(),
			TenantID:   uuid.New(),
			Status:     model.TenancyActive,
		})
	})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestPostgres_UpdateTenancy_NoLongerActive(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	tenancyID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tenancies SET unit_id`).
		WithArgs(tenancyID, "active", sqlmock.AnyArg(), sqlmock.AnyArg(), "ended", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx Tx) error {
		return tx.UpdateTenancy(context.Background(), &model.Tenancy{ID: tenancyID, Status: model.TenancyEnded}, model.TenancyActive)
	})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestPostgres_CreateProfile_Duplicate(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	mock.ExpectExec(`INSERT INTO profiles`).
		WithArgs(sqlmock.AnyArg(), "a@x.com", "Ann", "555", model.RoleTenant, sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.CreateProfile(context.Background(), &model.Profile{Email: " A@X.com", Name: "Ann", Phone: "555", Role: model.RoleTenant})
	assert.ErrorIs(t, err, model.ErrDuplicate)
}

func TestPostgres_FindProfileByEmail(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	id := uuid.New()
	cols := []string{"id", "email", "name", "phone", "role", "created_at"}
	mock.ExpectQuery(`SELECT (.+) FROM profiles WHERE lower`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(id.String(), "a@x.com", "Ann", "555", "tenant", time.Now()))
	mock.ExpectQuery(`SELECT (.+) FROM profiles WHERE lower`).
		WithArgs("b@x.com").
		WillReturnRows(sqlmock.NewRows(cols))

	p, err := repo.FindProfileByEmail(context.Background(), "A@x.com")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	p, err = repo.FindProfileByEmail(context.Background(), "b@x.com")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPostgres_WithTx_RollsBackOnError(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO state_transitions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.InsertTransition(context.Background(), &model.Transition{Entity: model.EntityUnit, EntityID: uuid.New()}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPostgres_UnitOccupancyAnomalies(t *testing.T) {
	repo, mock, teardown := setupMockDB(t)
	defer teardown()

	unitID, propertyID := uuid.New(), uuid.New()
	mock.ExpectQuery(`FROM units u LEFT JOIN tenancies t`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "property_id", "status", "active"}).
			AddRow(unitID.String(), propertyID.String(), "occupied", 0))

	got, err := repo.UnitOccupancyAnomalies(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, unitID, got[0].UnitID)
	assert.Equal(t, model.UnitOccupied, got[0].Status)
	assert.Equal(t, 0, got[0].ActiveTenancies)
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresFromDB(db)

	mock.ExpectPing()
	assert.NoError(t, repo.Ping())

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, repo.Ping())

	assert.NoError(t, mock.ExpectationsWereMet())
}
