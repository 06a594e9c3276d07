package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papas-bot/internal/repo"
)

type fakeReports struct {
	caps   repo.SchemaCapabilities
	orders []repo.Order
	convos []repo.ConversationRecord
	limit  int
	err    error
}

func (f *fakeReports) Capabilities() repo.SchemaCapabilities { return f.caps }

func (f *fakeReports) Orders(context.Context) ([]repo.Order, error) { return f.orders, f.err }

func (f *fakeReports) Proofs(context.Context) ([]repo.Order, error) {
	var out []repo.Order
	for _, o := range f.orders {
		if o.ProofURL != nil {
			out = append(out, o)
		}
	}
	return out, f.err
}

func (f *fakeReports) Conversations(_ context.Context, limit int) ([]repo.ConversationRecord, error) {
	f.limit = limit
	return f.convos, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(reports *fakeReports, db Pinger, basePath string, webhook http.Handler) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(":0", logger, nil, Handlers{Webhook: webhook}, Dependencies{Reports: reports, Database: db}, basePath).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func sampleOrders() []repo.Order {
	return []repo.Order{{
		ID:            "o-1",
		CustomerID:    "whatsapp:+56911111111",
		CustomerName:  "Ana",
		Size:          "L",
		Addon:         strPtr("extra_premium (Pulled Pork)"),
		Drink:         true,
		Total:         5500,
		Status:        repo.StatusProofReceived,
		CreatedAt:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		ProofReceived: boolPtr(true),
		ProofURL:      strPtr("https://media.example/proof.jpg"),
	}}
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(&fakeReports{}, nil, "", nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOrdersIncludeOptionalColumnsOnlyWhenPresent(t *testing.T) {
	reports := &fakeReports{orders: sampleOrders()}

	rec := get(t, newTestServer(reports, nil, "", nil), "/api/pedidos")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "L", rows[0]["tamaño"])
	assert.EqualValues(t, 5500, rows[0]["total"])
	assert.NotContains(t, rows[0], "comprobante_recibido")
	assert.NotContains(t, rows[0], "comprobante_url")

	reports.caps = repo.SchemaCapabilities{ProofReceived: true, ProofURL: true}
	rec = get(t, newTestServer(reports, nil, "", nil), "/api/pedidos")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Equal(t, true, rows[0]["comprobante_recibido"])
	assert.Equal(t, "https://media.example/proof.jpg", rows[0]["comprobante_url"])
}

func TestProofsEndpoint(t *testing.T) {
	reports := &fakeReports{orders: sampleOrders(), caps: repo.SchemaCapabilities{ProofReceived: true, ProofURL: true}}
	rec := get(t, newTestServer(reports, nil, "", nil), "/api/comprobantes")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []proofView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "o-1", rows[0].ID)

	rec = get(t, newTestServer(&fakeReports{}, nil, "", nil), "/api/comprobantes")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestConversationsLimit(t *testing.T) {
	reports := &fakeReports{convos: []repo.ConversationRecord{{ID: "c-1", CustomerID: "whatsapp:+1", Step: "esperando_nombre"}}}
	h := newTestServer(reports, nil, "", nil)

	rec := get(t, h, "/api/conversaciones")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultConversationLimit, reports.limit)

	get(t, h, "/api/conversaciones?limit=5")
	assert.Equal(t, 5, reports.limit)

	rec = get(t, h, "/api/conversaciones?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportErrorsAreJSON(t *testing.T) {
	rec := get(t, newTestServer(&fakeReports{err: errors.New("disk full")}, nil, "", nil), "/api/pedidos")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"disk full"}`, rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	reports := &fakeReports{caps: repo.SchemaCapabilities{ProofReceived: true}}

	rec := get(t, newTestServer(reports, fakePinger{}, "", nil), "/api/estado")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "activo", body["estado"])
	assert.Equal(t, "conectada", body["base_datos"])
	assert.Equal(t, false, body["columnas_comprobante"])

	rec = get(t, newTestServer(reports, fakePinger{err: errors.New("down")}, "", nil), "/api/estado")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "desconectada", body["base_datos"])
}

func TestBasePathMounting(t *testing.T) {
	var gotPath string
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	h := newTestServer(&fakeReports{}, nil, "/papas/", webhook)

	assert.Equal(t, http.StatusOK, get(t, h, "/papas/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/healthz").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/papas/webhook", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/papas/webhook", gotPath)
}

func TestNormaliseBasePath(t *testing.T) {
	assert.Equal(t, "", normaliseBasePath(" / "))
	assert.Equal(t, "/bot", normaliseBasePath("bot/"))
	assert.Equal(t, "/bot", normaliseBasePath("/bot"))
}
