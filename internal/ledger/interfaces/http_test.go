package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"assat-psp/internal/audit"
	"assat-psp/internal/auth"
	"assat-psp/internal/ledger/application"
	ledger "assat-psp/internal/ledger/domain"
	"assat-psp/internal/ledger/infrastructure/memory"
	"assat-psp/internal/observability/metrics"
)

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *memoryAudit) Log(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type testServer struct {
	handler http.Handler
	audit   *memoryAudit
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	svc, err := application.NewService(memory.NewLedgerRepository(),
		application.WithLogger(logger),
		application.WithClock(fixedClock{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	auditLog := &memoryAudit{}
	h, err := NewLedgerHandler(svc, auditLog, logger, 30)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return &testServer{handler: h, audit: auditLog}
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }

func (s *testServer) do(t *testing.T, role auth.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), role, "tester"))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestLedgerHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/municipalities", `{"nome":"Cidade X","cnpj":"12.345.678/0001-99"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &created)
	if created.ID != 1 {
		t.Fatalf("expected id 1, got %d", created.ID)
	}

	rec = s.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/municipalities", `{"nome":"Outra","cnpj":"12.345.678/0001-99"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"created":false`) {
		t.Fatalf("duplicate status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":100.00,"metodo":"Pix"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create charge status=%d body=%s", rec.Code, rec.Body.String())
	}
	var charge struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	decode(t, rec, &charge)
	if charge.Status != "pendente" {
		t.Fatalf("expected pending charge, got %q", charge.Status)
	}

	rec = s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/charges/1/settle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/charges/1/settle", "")
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "Guia não encontrada ou já paga.") {
		t.Fatalf("second settle status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/withdrawals", `{"valor":"150.00"}`)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "Saldo insuficiente.") {
		t.Fatalf("overdraw status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/withdrawals", `{"valor":"40.00"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Saque realizado!") {
		t.Fatalf("withdraw status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1", "")
	var m struct {
		Balance string `json:"saldo_atual"`
	}
	decode(t, rec, &m)
	if m.Balance != "60.00" {
		t.Fatalf("expected balance 60.00, got %q", m.Balance)
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/summary", "")
	var summary struct {
		Total     int64  `json:"total"`
		Paid      int64  `json:"pagas"`
		Pending   int64  `json:"pendentes"`
		TotalPaid string `json:"total_pago"`
	}
	decode(t, rec, &summary)
	if summary.Total != 2 || summary.Paid != 2 || summary.Pending != 0 || summary.TotalPaid != "100" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	want := []string{"municipality.register", "charge.create", "charge.settle", "ledger.withdraw"}
	got := s.audit.actions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("audit actions = %v, want %v", got, want)
	}
}

func TestLedgerHandler_Validation(t *testing.T) {
	s := newTestServer(t)
	s.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/municipalities", `{"nome":"Cidade X","cnpj":"1"}`)

	cases := []struct {
		name   string
		role   auth.Role
		method string
		path   string
		body   string
		status int
	}{
		{"zero amount", auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":0}`, http.StatusBadRequest},
		{"negative amount", auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":-5}`, http.StatusBadRequest},
		{"unknown method", auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":5,"metodo":"Cheque"}`, http.StatusBadRequest},
		{"sub-cent amount", auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":"0.004"}`, http.StatusBadRequest},
		{"sub-cent withdrawal", auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/withdrawals", `{"valor":"0.001"}`, http.StatusBadRequest},
		{"zero withdrawal", auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/withdrawals", `{"valor":0}`, http.StatusBadRequest},
		{"negative horizon", auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/projection?days=-1", "", http.StatusBadRequest},
		{"bad horizon", auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/projection?days=abc", "", http.StatusBadRequest},
		{"bad json", auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/withdrawals", `{`, http.StatusBadRequest},
		{"bad status filter", auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/charges?status=x", "", http.StatusBadRequest},
		{"unknown municipality", auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/9", "", http.StatusNotFound},
		{"bad id", auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/abc", "", http.StatusBadRequest},
		{"unknown route", auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/unknown", "", http.StatusNotFound},
		{"no identity", "", http.MethodGet, "/api/v1/municipalities", "", http.StatusUnauthorized},
		{"viewer withdraw", auth.RoleViewer, http.MethodPost, "/api/v1/municipalities/1/withdrawals", `{"valor":1}`, http.StatusForbidden},
		{"settle missing", auth.RoleOperator, http.MethodPost, "/api/v1/charges/77/settle", "", http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.role, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
		})
	}
}

func TestLedgerHandler_ProjectionAndDashboard(t *testing.T) {
	s := newTestServer(t)
	s.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/municipalities", `{"nome":"Cidade X","cnpj":"1"}`)
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":"1000.00"}`)
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/charges/1/settle", "")

	rec := s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/projection", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("projection status=%d body=%s", rec.Code, rec.Body.String())
	}
	var p application.Projection
	decode(t, rec, &p)
	if p.Days != 30 || len(p.Series) != 31 || p.FinalValue <= 1000 {
		t.Fatalf("unexpected projection days=%d points=%d final=%f", p.Days, len(p.Series), p.FinalValue)
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/dashboard", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Saúde fiscal em dia.") {
		t.Fatalf("dashboard status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestLedgerHandler_Exports(t *testing.T) {
	s := newTestServer(t)
	s.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/municipalities", `{"nome":"São José","cnpj":"1"}`)
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":"1234.56","metodo":"Cartão"}`)
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"ISS","valor":"10"}`)
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/charges/1/settle", "")
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/withdrawals", `{"valor":"34.56"}`)

	rec := s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/export.pdf", "")
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("pdf content type %q", ct)
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/export.csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status=%d", rec.Code)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 paid rows, got %d: %q", len(lines), rec.Body.String())
	}
	if !strings.HasPrefix(lines[0], "id,municipio_id,tipo_tributo") || !strings.Contains(lines[1], "1234.56") || !strings.Contains(lines[2], "-34.56") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/export.xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx status=%d", rec.Code)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	name, err := f.GetCellValue("resumo", "B3")
	if err != nil || name != "São José" {
		t.Fatalf("unexpected municipality cell %q err=%v", name, err)
	}
	tax, err := f.GetCellValue("guias_pagas", "B2")
	if err != nil || tax != "IPTU" {
		t.Fatalf("unexpected tax cell %q err=%v", tax, err)
	}

	rec = s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/2/export.pdf", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing municipality export status=%d", rec.Code)
	}
}

func TestLedgerHandler_Reconciliation(t *testing.T) {
	s := newTestServer(t)
	s.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/municipalities", `{"nome":"Cidade X","cnpj":"12.345.678/0001-99"}`)
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/municipalities/1/charges", `{"tipo_tributo":"IPTU","valor":"100.00"}`)
	s.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/charges/1/settle", "")

	rec := s.do(t, auth.RoleOperator, http.MethodGet, "/api/v1/reconciliation", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("operator reconcile status=%d", rec.Code)
	}

	rec = s.do(t, auth.RoleAdmin, http.MethodGet, "/api/v1/reconciliation", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Consistent bool              `json:"consistente"`
		Checked    []json.RawMessage `json:"verificados"`
		Drifted    []json.RawMessage `json:"divergentes"`
	}
	decode(t, rec, &body)
	if !body.Consistent || len(body.Checked) != 1 || len(body.Drifted) != 0 {
		t.Fatalf("unexpected reconciliation %s", rec.Body.String())
	}
}

func TestLedgerHandler_BadHorizonNamesAcceptedRange(t *testing.T) {
	s := newTestServer(t)
	s.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/municipalities", `{"nome":"Cidade X","cnpj":"1"}`)

	rec := s.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/municipalities/1/projection?days=abc", "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "1..3650") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestExportResult(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, metrics.ResultSuccess},
		{"unauthorized", auth.ErrUnauthorized, metrics.ResultRejected},
		{"forbidden", auth.ErrForbidden, metrics.ResultRejected},
		{"missing municipality", ledger.ErrMunicipalityNotFound, metrics.ResultRejected},
		{"store failure", errors.New("connection reset"), metrics.ResultError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exportResult(tc.err); got != tc.want {
				t.Fatalf("exportResult(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
