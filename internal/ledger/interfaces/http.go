package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"assat-psp/internal/audit"
	"assat-psp/internal/auth"
	"assat-psp/internal/ledger/application"
	ledger "assat-psp/internal/ledger/domain"
	"assat-psp/internal/observability/metrics"
)

const (
	municipalitiesPath = "/api/v1/municipalities"
	chargesPrefix      = "/api/v1/charges/"
	reconciliationPath = "/api/v1/reconciliation"
)

// LedgerHandler serves the municipality and charge APIs.
type LedgerHandler struct {
	service     *application.Service
	auditLogger audit.Logger
	logger      *log.Logger
	defaultDays int
}

// NewLedgerHandler constructs a handler.
func NewLedgerHandler(service *application.Service, auditLogger audit.Logger, logger *log.Logger, defaultDays int) (*LedgerHandler, error) {
	if service == nil {
		return nil, errors.New("ledger handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	if defaultDays < 0 {
		defaultDays = 0
	}
	return &LedgerHandler{service: service, auditLogger: auditLogger, logger: logger, defaultDays: defaultDays}, nil
}

// ServeHTTP handles routes under /api/v1/municipalities and /api/v1/charges/.
func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == municipalitiesPath {
		switch r.Method {
		case http.MethodGet:
			h.handleListMunicipalities(w, r)
			return
		case http.MethodPost:
			h.handleRegister(w, r)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if strings.HasPrefix(path, municipalitiesPath+"/") {
		h.handleMunicipality(w, r, strings.TrimPrefix(path, municipalitiesPath+"/"))
		return
	}
	if strings.HasPrefix(path, chargesPrefix) {
		h.handleCharge(w, r, strings.TrimPrefix(path, chargesPrefix))
		return
	}
	if path == reconciliationPath && r.Method == http.MethodGet {
		h.handleReconcile(w, r)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *LedgerHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	checks, drifted, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if checks == nil {
		checks = []ledger.BalanceCheck{}
	}
	if drifted == nil {
		drifted = []ledger.BalanceCheck{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consistente": len(drifted) == 0,
		"verificados": checks,
		"divergentes": drifted,
	})
}

func (h *LedgerHandler) handleMunicipality(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid municipality id", http.StatusBadRequest)
		return
	}
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGetMunicipality(w, r, id)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "charges":
			switch r.Method {
			case http.MethodGet:
				h.handleListCharges(w, r, id)
				return
			case http.MethodPost:
				h.handleCreateCharge(w, r, id)
				return
			}
		case "withdrawals":
			if r.Method == http.MethodPost {
				h.handleWithdraw(w, r, id)
				return
			}
		case "summary":
			if r.Method == http.MethodGet {
				h.handleSummary(w, r, id)
				return
			}
		case "dashboard":
			if r.Method == http.MethodGet {
				h.handleDashboard(w, r, id)
				return
			}
		case "projection":
			if r.Method == http.MethodGet {
				h.handleProjection(w, r, id)
				return
			}
		case "export.pdf":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "pdf")
				return
			}
		case "export.csv":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "csv")
				return
			}
		case "export.xlsx":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "xlsx")
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *LedgerHandler) handleCharge(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "settle" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid charge id", http.StatusBadRequest)
		return
	}
	h.handleSettle(w, r, id)
}

type municipalityView struct {
	ID      int64  `json:"id"`
	Name    string `json:"nome"`
	CNPJ    string `json:"cnpj"`
	Balance string `json:"saldo_atual"`
}

func toMunicipalityView(m ledger.Municipality) municipalityView {
	return municipalityView{ID: m.ID, Name: m.Name, CNPJ: m.CNPJ, Balance: m.Balance.StringFixed(2)}
}

func (h *LedgerHandler) handleListMunicipalities(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListMunicipalities(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	views := make([]municipalityView, 0, len(list))
	for _, m := range list {
		views = append(views, toMunicipalityView(m))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *LedgerHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"nome"`
		CNPJ string `json:"cnpj"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id, created, err := h.service.RegisterMunicipality(r.Context(), req.Name, req.CNPJ)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]any{"created": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "created": true})
	h.logAudit(r, id, "municipality", strconv.FormatInt(id, 10), "municipality.register", map[string]any{
		"cnpj": strings.TrimSpace(req.CNPJ),
	})
}

func (h *LedgerHandler) handleGetMunicipality(w http.ResponseWriter, r *http.Request, id int64) {
	m, err := h.service.GetMunicipality(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMunicipalityView(*m))
}

func (h *LedgerHandler) handleListCharges(w http.ResponseWriter, r *http.Request, id int64) {
	var filter ledger.ChargeFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := ledger.NormalizeStatus(raw)
		if !ok {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	charges, err := h.service.ListCharges(r.Context(), id, filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if charges == nil {
		charges = []ledger.Charge{}
	}
	writeJSON(w, http.StatusOK, charges)
}

func (h *LedgerHandler) handleCreateCharge(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		TaxType string          `json:"tipo_tributo"`
		Amount  decimal.Decimal `json:"valor"`
		Method  string          `json:"metodo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	chargeID, err := h.service.CreateCharge(r.Context(), id, req.TaxType, req.Amount, req.Method)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": chargeID, "status": ledger.StatusPending})
	h.logAudit(r, id, "charge", strconv.FormatInt(chargeID, 10), "charge.create", map[string]any{
		"tipo_tributo": req.TaxType,
		"valor":        req.Amount.StringFixed(2),
		"metodo":       req.Method,
	})
}

func (h *LedgerHandler) handleSettle(w http.ResponseWriter, r *http.Request, chargeID int64) {
	ok, err := h.service.SettleCharge(r.Context(), chargeID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "message": ledger.MessageChargeNotSettled})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	h.logAudit(r, 0, "charge", strconv.FormatInt(chargeID, 10), "charge.settle", nil)
}

func (h *LedgerHandler) handleWithdraw(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		Amount decimal.Decimal `json:"valor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := h.service.Withdraw(r.Context(), id, req.Amount)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if !res.OK {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
	h.logAudit(r, id, "municipality", strconv.FormatInt(id, 10), "ledger.withdraw", map[string]any{
		"valor":       req.Amount.StringFixed(2),
		"cobranca_id": res.ChargeID,
	})
}

func (h *LedgerHandler) handleSummary(w http.ResponseWriter, r *http.Request, id int64) {
	summary, err := h.service.AuditSummary(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *LedgerHandler) handleDashboard(w http.ResponseWriter, r *http.Request, id int64) {
	dashboard, err := h.service.Dashboard(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *LedgerHandler) handleProjection(w http.ResponseWriter, r *http.Request, id int64) {
	days := h.defaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid days: expected 1.."+strconv.Itoa(h.service.MaxProjectionDays()), http.StatusBadRequest)
			return
		}
		days = parsed
	}
	p, err := h.service.Project(r.Context(), id, days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

var exportContentTypes = map[string]string{
	"pdf":  "application/pdf",
	"csv":  "text/csv; charset=utf-8",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (h *LedgerHandler) handleExport(w http.ResponseWriter, r *http.Request, id int64, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport(format, result, time.Since(start))
	}()

	report, err := h.service.Report(r.Context(), id)
	if err != nil {
		result = exportResult(err)
		h.respondServiceError(w, err)
		return
	}

	var data []byte
	switch format {
	case "pdf":
		data, err = BuildReportPDF(report)
	case "csv":
		data, err = BuildReportCSV(report)
	case "xlsx":
		data, err = BuildReportXLSX(report)
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("ledger: export %s municipality=%d error: %v", format, id, err)
		http.Error(w, "Erro ao gerar "+strings.ToUpper(format), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", exportContentTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="relatorio_`+strconv.FormatInt(id, 10)+"."+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, id, "municipality", strconv.FormatInt(id, 10), "report.export", map[string]any{"format": format})
}

// exportResult labels an export outcome: caller mistakes are rejections, store failures errors.
func exportResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrForbidden), errors.Is(err, ledger.ErrMunicipalityNotFound):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

func (h *LedgerHandler) logAudit(r *http.Request, municipalityID int64, resourceType, resourceID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	var payload []byte
	if len(meta) > 0 {
		payload, _ = json.Marshal(meta)
	}
	// Detached from the request so the write survives client disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	ip, userAgent := audit.RequestOrigin(r)
	err := h.auditLogger.Log(ctx, audit.Entry{
		Actor:          auth.SubjectFromContext(r.Context()),
		Role:           string(auth.RoleFromContext(r.Context())),
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		MunicipalityID: municipalityID,
		Metadata:       payload,
		IP:             ip,
		UserAgent:      userAgent,
	})
	if err != nil {
		h.logger.Printf("audit: %s error: %v", action, err)
	}
}

func (h *LedgerHandler) respondServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case ledger.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrMunicipalityNotFound):
		http.Error(w, ledger.MessageMunicipalityNotFound, http.StatusNotFound)
	default:
		h.logger.Printf("ledger: request error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
