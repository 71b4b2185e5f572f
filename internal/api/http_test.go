package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/service"
	"github.com/teresa-solution/tenancy-allocation-service/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	store    *store.Memory
	svc      *service.Services
	router   *gin.Engine
	landlord uuid.UUID
	property uuid.UUID
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	m := store.NewMemory()
	svc := service.New(m, nil, service.Options{AllowReconsider: true})
	return &fixture{
		store:    m,
		svc:      svc,
		router:   NewRouter(svc, RouterConfig{}),
		landlord: uuid.New(),
		property: uuid.New(),
	}
}

func (f *fixture) unit(rent int64, status model.UnitStatus) model.Unit {
	u := model.Unit{ID: uuid.New(), PropertyID: f.property, UnitNumber: "1A", MonthlyRent: rent, Status: status}
	f.store.PutUnit(u)
	return u
}

func (f *fixture) application(email string) model.Application {
	a := model.Application{ID: uuid.New(), PropertyID: f.property, ApplicantName: "A", ApplicantEmail: email, Status: model.ApplicationPending}
	f.store.PutApplication(a)
	return a
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(LandlordHeader, f.landlord.String())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp APIResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dataAs(t *testing.T, resp APIResponse, out interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestHTTP_AssignFlow(t *testing.T) {
	f := setupFixture(t)
	unit := f.unit(50000, model.UnitVacant)
	app := f.application("a@x.com")

	w, resp := f.do(t, http.MethodGet, "/v1/properties/"+f.property.String()+"/units/vacant", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var units []model.Unit
	dataAs(t, resp, &units)
	require.Len(t, units, 1)

	w, resp = f.do(t, http.MethodPost, "/v1/applications/"+app.ID.String()+"/assign", gin.H{
		"unit_id":          unit.ID,
		"lease_end_date":   "2099-01-31",
		"security_deposit": 100000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	var tenancy model.Tenancy
	dataAs(t, resp, &tenancy)
	assert.Equal(t, int64(50000), tenancy.MonthlyRent)
	assert.Equal(t, int64(100000), tenancy.SecurityDeposit)
	assert.Equal(t, f.landlord, tenancy.LandlordID)
	assert.Equal(t, "2099-01-31", tenancy.LeaseEndDate.Format("2006-01-02"))

	w, resp = f.do(t, http.MethodPost, "/v1/applications/"+app.ID.String()+"/assign", gin.H{"unit_id": unit.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)

	w, resp = f.do(t, http.MethodGet, "/v1/tenancies/"+tenancy.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = f.do(t, http.MethodPost, "/v1/tenancies/"+tenancy.ID.String()+"/end", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = f.do(t, http.MethodPost, "/v1/tenancies/"+tenancy.ID.String()+"/end", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_ENDED", resp.Error.Code)

	w, resp = f.do(t, http.MethodGet, "/v1/transitions/unit/"+unit.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []model.Transition
	dataAs(t, resp, &history)
	assert.Len(t, history, 2)
}

func TestHTTP_UnitTakenMessage(t *testing.T) {
	f := setupFixture(t)
	unit := f.unit(50000, model.UnitOccupied)
	app := f.application("a@x.com")

	w, resp := f.do(t, http.MethodPost, "/v1/applications/"+app.ID.String()+"/assign", gin.H{"unit_id": unit.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "UNIT_UNAVAILABLE", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "choose another unit")
}

func TestHTTP_AssignDirectAndTransfer(t *testing.T) {
	f := setupFixture(t)
	from := f.unit(50000, model.UnitVacant)
	to := f.unit(65000, model.UnitVacant)

	w, resp := f.do(t, http.MethodPost, "/v1/tenancies", gin.H{"unit_id": from.ID, "tenant_email": "d@x.com", "tenant_name": "Dee"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tenancy model.Tenancy
	dataAs(t, resp, &tenancy)

	w, resp = f.do(t, http.MethodPost, "/v1/tenancies/"+tenancy.ID.String()+"/transfer", gin.H{"new_unit_id": to.ID, "recompute_rent": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var moved model.Tenancy
	dataAs(t, resp, &moved)
	assert.Equal(t, to.ID, moved.UnitID)
	assert.Equal(t, int64(65000), moved.MonthlyRent)

	other := model.Unit{ID: uuid.New(), PropertyID: uuid.New(), Status: model.UnitVacant}
	f.store.PutUnit(other)
	w, resp = f.do(t, http.MethodPost, "/v1/tenancies/"+tenancy.ID.String()+"/transfer", gin.H{"new_unit_id": other.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CROSS_PROPERTY", resp.Error.Code)
}

func TestHTTP_ApplicationTransitions(t *testing.T) {
	f := setupFixture(t)
	app := f.application("a@x.com")

	w, _ := f.do(t, http.MethodPost, "/v1/applications/"+app.ID.String()+"/reject", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := f.do(t, http.MethodGet, "/v1/properties/"+f.property.String()+"/applications/pending", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var pending []model.Application
	dataAs(t, resp, &pending)
	assert.Empty(t, pending)

	w, _ = f.do(t, http.MethodPost, "/v1/applications/"+app.ID.String()+"/reconsider", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = f.do(t, http.MethodPost, "/v1/applications/"+uuid.NewString()+"/reject", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestHTTP_SetUnitStatus(t *testing.T) {
	f := setupFixture(t)
	unit := f.unit(50000, model.UnitVacant)
	path := "/v1/units/" + unit.ID.String() + "/status"

	w, _ := f.do(t, http.MethodPut, path, gin.H{"status": "maintenance", "expected_status": "vacant"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := f.do(t, http.MethodPut, path, gin.H{"status": "maintenance", "expected_status": "vacant"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", resp.Error.Code)

	w, resp = f.do(t, http.MethodPut, path, gin.H{"status": "demolished", "expected_status": "vacant"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestHTTP_ResolveIdentity(t *testing.T) {
	f := setupFixture(t)

	w, resp := f.do(t, http.MethodPost, "/v1/profiles/resolve", gin.H{"email": "Sam@X.com", "name": "Sam"})
	require.Equal(t, http.StatusOK, w.Code)
	var first model.Profile
	dataAs(t, resp, &first)

	w, resp = f.do(t, http.MethodPost, "/v1/profiles/resolve", gin.H{"email": "sam@x.com"})
	require.Equal(t, http.StatusOK, w.Code)
	var second model.Profile
	dataAs(t, resp, &second)
	assert.Equal(t, first.ID, second.ID)

	w, resp = f.do(t, http.MethodPost, "/v1/profiles/resolve", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestHTTP_Reconciliation(t *testing.T) {
	f := setupFixture(t)
	f.unit(50000, model.UnitOccupied)

	w, resp := f.do(t, http.MethodGet, "/v1/reconciliation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report model.ReconciliationReport
	dataAs(t, resp, &report)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, model.ViolationOccupiedWithoutTenancy, report.Violations[0].Kind)
}

func TestHTTP_RequiresLandlord(t *testing.T) {
	f := setupFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/reconciliation", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/reconciliation", nil)
	req.Header.Set(LandlordHeader, "landlord-1")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTP_BadPathAndBody(t *testing.T) {
	f := setupFixture(t)

	w, _ := f.do(t, http.MethodPost, "/v1/tenancies/not-a-uuid/end", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := f.do(t, http.MethodPost, "/v1/applications/"+uuid.NewString()+"/assign", gin.H{"unit_id": uuid.New(), "security_deposit": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	w, resp = f.do(t, http.MethodGet, "/v1/transitions/landlord/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Error.Message, "unknown entity")
}

func TestHTTP_Health(t *testing.T) {
	m := store.NewMemory()
	svc := service.New(m, nil, service.Options{})

	healthy := NewRouter(svc, RouterConfig{HealthCheck: func() error { return nil }})
	w := httptest.NewRecorder()
	healthy.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down := NewRouter(svc, RouterConfig{HealthCheck: func() error { return errors.New("db down") }})
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		httpStatus int
		code       string
	}{
		{model.ErrUnitUnavailable, http.StatusConflict, "UNIT_UNAVAILABLE"},
		{model.ErrConflict, http.StatusConflict, "CONFLICT"},
		{model.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{model.ErrCrossProperty, http.StatusUnprocessableEntity, "CROSS_PROPERTY"},
		{model.ErrAlreadyEnded, http.StatusConflict, "ALREADY_ENDED"},
		{model.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		f := classify(tt.err)
		assert.Equal(t, tt.httpStatus, f.httpStatus, tt.err.Error())
		assert.Equal(t, tt.code, f.code, tt.err.Error())
	}

	f := classify(errors.Join(errors.New("get unit"), model.ErrNotFound))
	assert.Equal(t, "NOT_FOUND", f.code)
}
