package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/models"
)

func TestPathSegment(t *testing.T) {
	const prefix = "/api/v1/stocks/"
	assert.Equal(t, "005930", PathSegment("/api/v1/stocks/005930/price", prefix, 0))
	assert.Equal(t, "price", PathSegment("/api/v1/stocks/005930/price", prefix, 1))
	assert.Equal(t, "", PathSegment("/api/v1/stocks/005930", prefix, 1))
	assert.Equal(t, "", PathSegment("/other/005930", prefix, 0))
}

func TestValidTicker(t *testing.T) {
	assert.True(t, ValidTicker("005930"))
	assert.False(t, ValidTicker("5930"))
	assert.False(t, ValidTicker("00593a"))
	assert.False(t, ValidTicker("0059300"))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestQueryDate_Invalid(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/v1/triggers?date=2026-13-40", nil)

	_, ok := QueryDate(rec, r, "date")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
}

func TestWriteServiceError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{common.NewValidationError("ticker", "bad"), http.StatusBadRequest},
		{common.ErrNotFound, http.StatusNotFound},
		{assertErr("vendor exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteServiceError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

// --- trigger handler through a fake store ----------------------------------

type fakeTriggerStore struct {
	rows map[models.Session][]models.TriggerResult
}

func (f *fakeTriggerStore) ReplaceSession(context.Context, time.Time, models.Session, []models.TriggerResult) error {
	return nil
}
func (f *fakeTriggerStore) ListBySession(_ context.Context, _ time.Time, session models.Session) ([]models.TriggerResult, error) {
	return f.rows[session], nil
}
func (f *fakeTriggerStore) CountBySession(context.Context, time.Time, models.Session) (int, error) {
	return 0, nil
}
func (f *fakeTriggerStore) ListByType(context.Context, models.TriggerType, time.Time, int) ([]models.TriggerResult, error) {
	return nil, nil
}
func (f *fakeTriggerStore) HistoryByTicker(context.Context, string, int) ([]models.TriggerResult, error) {
	return nil, nil
}
func (f *fakeTriggerStore) LatestDate(context.Context) (time.Time, error) {
	return time.Time{}, common.ErrNotFound
}
func (f *fakeTriggerStore) Stats(context.Context, time.Time, time.Time) (*interfaces.TriggerStats, error) {
	return &interfaces.TriggerStats{}, nil
}

func newTriggerHandler(store interfaces.TriggerStorage) *TriggerHandler {
	return NewTriggerHandler(store, nil, nil, arbor.NewLogger())
}

func TestTriggerList_FiltersBySession(t *testing.T) {
	store := &fakeTriggerStore{rows: map[models.Session][]models.TriggerResult{
		models.SessionMorning: {
			{Ticker: "005930", TriggerType: models.TriggerVolumeSurge, CompositeScore: 0.9},
		},
		models.SessionAfternoon: {
			{Ticker: "000660", TriggerType: models.TriggerIntradayRise, CompositeScore: 0.7},
		},
	}}
	h := newTriggerHandler(store)

	rec := httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest("GET", "/api/v1/triggers?date=2026-08-24&session=morning", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "2026-08-24", data["date"])
	assert.Len(t, data["triggers"], 1)
}

func TestTriggerList_BothSessionsByDefault(t *testing.T) {
	store := &fakeTriggerStore{rows: map[models.Session][]models.TriggerResult{
		models.SessionMorning:   {{Ticker: "005930"}},
		models.SessionAfternoon: {{Ticker: "000660"}},
	}}
	h := newTriggerHandler(store)

	rec := httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest("GET", "/api/v1/triggers?date=2026-08-24", nil))

	data := decode(t, rec)["data"].(map[string]any)
	assert.Len(t, data["triggers"], 2)
}

func TestTriggerList_InvalidInputs(t *testing.T) {
	h := newTriggerHandler(&fakeTriggerStore{})

	rec := httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest("GET", "/api/v1/triggers?session=midnight", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest("GET", "/api/v1/triggers?date=24-08-2026", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerLatest_EmptyStoreIs404(t *testing.T) {
	h := newTriggerHandler(&fakeTriggerStore{})

	rec := httptest.NewRecorder()
	h.LatestHandler(rec, httptest.NewRequest("GET", "/api/v1/triggers/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRoute_MethodGuard(t *testing.T) {
	h := newTriggerHandler(&fakeTriggerStore{})

	rec := httptest.NewRecorder()
	h.Route(rec, httptest.NewRequest("GET", "/api/v1/triggers/run/morning", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// --- report handler through a fake store -----------------------------------

type fakeReportStore struct {
	rows map[string]*models.ReportResult
}

func (f *fakeReportStore) key(rt models.ReportType, date time.Time) string {
	return string(rt) + "/" + date.Format("2006-01-02")
}
func (f *fakeReportStore) Upsert(_ context.Context, r *models.ReportResult) error {
	f.rows[f.key(r.ReportType, r.Date)] = r
	return nil
}
func (f *fakeReportStore) Get(_ context.Context, rt models.ReportType, date time.Time) (*models.ReportResult, error) {
	if r, ok := f.rows[f.key(rt, date)]; ok {
		return r, nil
	}
	return nil, common.ErrNotFound
}
func (f *fakeReportStore) History(context.Context, models.ReportType, int) ([]models.ReportResult, error) {
	return nil, nil
}
func (f *fakeReportStore) Stats(context.Context) (*interfaces.ReportStats, error) {
	return &interfaces.ReportStats{}, nil
}

func TestReportGet_MissingIs404(t *testing.T) {
	h := NewReportHandler(nil, &fakeReportStore{rows: map[string]*models.ReportResult{}}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.Route(rec, httptest.NewRequest("GET", "/api/v1/reports/morning?date=2026-08-24", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportGet_ReturnsRow(t *testing.T) {
	date := time.Date(2026, 8, 24, 0, 0, 0, 0, time.Local)
	store := &fakeReportStore{rows: map[string]*models.ReportResult{}}
	store.Upsert(context.Background(), &models.ReportResult{
		ReportType: models.ReportMorning,
		Date:       date,
		Model:      "gemini-2.5-flash",
		Payload:    json.RawMessage(`{"outlook":"강세"}`),
	})
	h := NewReportHandler(nil, store, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.Route(rec, httptest.NewRequest("GET", "/api/v1/reports/morning?date=2026-08-24", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "morning", data["report_type"])
}

func TestReportRoute_InvalidType(t *testing.T) {
	h := NewReportHandler(nil, &fakeReportStore{rows: map[string]*models.ReportResult{}}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.Route(rec, httptest.NewRequest("GET", "/api/v1/reports/evening", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportHistory_LimitBounds(t *testing.T) {
	h := NewReportHandler(nil, &fakeReportStore{rows: map[string]*models.ReportResult{}}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.Route(rec, httptest.NewRequest("GET", "/api/v1/reports/history?report_type=morning&limit=31", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
