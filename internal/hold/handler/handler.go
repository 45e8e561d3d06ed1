// Package handler exposes the hold engine over HTTP. Handlers parse and
// validate at the boundary, delegate to the service and translate domain
// errors to status codes.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"holdright/internal/audit"
	"holdright/internal/hold"
	"holdright/internal/hold/service"
	"holdright/pkg/domain"
	dErrors "holdright/pkg/domain-errors"
)

// Service is the application surface the handler drives.
type Service interface {
	Create(ctx context.Context, params hold.NewHoldParams) (*hold.Hold, error)
	Get(ctx context.Context, holdID domain.HoldID) (*hold.Hold, error)
	List(ctx context.Context) ([]*hold.Hold, error)
	Issue(ctx context.Context, holdID domain.HoldID) (*hold.Hold, error)
	NotifyAll(ctx context.Context, holdID domain.HoldID) ([]service.NotifyOutcome, error)
	NotifyCustodian(ctx context.Context, holdID domain.HoldID, email string) error
	Acknowledge(ctx context.Context, holdID domain.HoldID, email string, method domain.AckMethod) (*hold.Hold, error)
	MarkNonCompliant(ctx context.Context, holdID domain.HoldID, email, reason string) error
	Escalate(ctx context.Context, holdID domain.HoldID, email, escalateTo, reason string) error
	AddCustodian(ctx context.Context, holdID domain.HoldID, params hold.CustodianParams) (*hold.Hold, error)
	Release(ctx context.Context, holdID domain.HoldID, reason string, emails []string) (*hold.Hold, error)
	RecordInterview(ctx context.Context, holdID domain.HoldID, email, notes string) error
	AttachEvidence(ctx context.Context, holdID domain.HoldID, ref domain.EvidenceRef) error
	CorrectCustodian(ctx context.Context, holdID domain.HoldID, email string, method domain.AckMethod, justification string, correctsSeq int64) error
	ComplianceSnapshot(ctx context.Context, holdID domain.HoldID) (hold.Snapshot, error)
	AuditList(ctx context.Context, holdID domain.HoldID, filter audit.Filter) ([]audit.Entry, error)
}

// Handler serves the /holds routes.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the hold routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/holds", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{holdID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/issue", h.handleIssue)
			r.Post("/notify", h.handleNotifyAll)
			r.Post("/release", h.handleRelease)
			r.Post("/evidence", h.handleAttachEvidence)
			r.Get("/compliance", h.handleCompliance)
			r.Get("/audit", h.handleAudit)
			r.Post("/custodians", h.handleAddCustodian)
			r.Route("/custodians/{email}", func(r chi.Router) {
				r.Post("/notify", h.handleNotifyCustodian)
				r.Post("/acknowledge", h.handleAcknowledge)
				r.Post("/non-compliance", h.handleMarkNonCompliant)
				r.Post("/escalate", h.handleEscalate)
				r.Post("/interview", h.handleInterview)
				r.Post("/correct", h.handleCorrect)
			})
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{
		Error:   string(dErrors.CodeOf(err)),
		Message: err.Error(),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) holdID(w http.ResponseWriter, r *http.Request) (domain.HoldID, bool) {
	id, err := domain.ParseHoldID(chi.URLParam(r, "holdID"))
	if err != nil {
		h.writeError(w, r, err)
		return domain.HoldID{}, false
	}
	return id, true
}

type custodianRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Department  string `json:"department,omitempty"`
	Title       string `json:"title,omitempty"`
}

type createHoldRequest struct {
	Name           string             `json:"name"`
	CaseRef        string             `json:"case_ref"`
	Description    string             `json:"description,omitempty"`
	LegalBasis     string             `json:"legal_basis,omitempty"`
	Scope          string             `json:"scope,omitempty"`
	DataCategories []string           `json:"data_categories,omitempty"`
	Cadence        string             `json:"cadence,omitempty"`
	TemplateRef    string             `json:"template_ref,omitempty"`
	EffectiveUntil *time.Time         `json:"effective_until,omitempty"`
	Custodians     []custodianRequest `json:"custodians"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createHoldRequest
	if !h.decode(w, r, &req) {
		return
	}

	cadence := domain.CadenceNone
	if req.Cadence != "" {
		var err error
		cadence, err = domain.ParseCadence(req.Cadence)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	var categories []domain.DataCategory
	for _, raw := range req.DataCategories {
		cat, err := domain.ParseDataCategory(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		categories = append(categories, cat)
	}
	params := hold.NewHoldParams{
		Name:           req.Name,
		CaseRef:        domain.CaseRef(req.CaseRef),
		Description:    req.Description,
		LegalBasis:     req.LegalBasis,
		Scope:          req.Scope,
		DataCategories: categories,
		Cadence:        cadence,
		TemplateRef:    req.TemplateRef,
		EffectiveUntil: req.EffectiveUntil,
	}
	for _, c := range req.Custodians {
		params.Custodians = append(params.Custodians, hold.CustodianParams{
			Email:       c.Email,
			DisplayName: c.DisplayName,
			Department:  c.Department,
			Title:       c.Title,
		})
	}

	created, err := h.svc.Create(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHoldResponse(created))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	holds, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]holdResponse, 0, len(holds))
	for _, held := range holds {
		out = append(out, toHoldResponse(held))
	}
	writeJSON(w, http.StatusOK, map[string]any{"holds": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	held, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldResponse(held))
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	held, err := h.svc.Issue(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldResponse(held))
}

type notifyOutcomeResponse struct {
	Email    string `json:"email"`
	Notified bool   `json:"notified"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) handleNotifyAll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	outcomes, err := h.svc.NotifyAll(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]notifyOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp := notifyOutcomeResponse{Email: o.Email, Notified: o.Notified}
		if o.Err != nil {
			resp.Error = o.Err.Error()
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": out})
}

func (h *Handler) handleNotifyCustodian(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	if err := h.svc.NotifyCustodian(r.Context(), id, chi.URLParam(r, "email")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "notified"})
}

type acknowledgeRequest struct {
	Method string `json:"method"`
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req acknowledgeRequest
	if !h.decode(w, r, &req) {
		return
	}
	method, err := domain.ParseAckMethod(req.Method)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	held, err := h.svc.Acknowledge(r.Context(), id, chi.URLParam(r, "email"), method)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldResponse(held))
}

type nonComplianceRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleMarkNonCompliant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req nonComplianceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.MarkNonCompliant(r.Context(), id, chi.URLParam(r, "email"), req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "non_compliant"})
}

type escalateRequest struct {
	EscalateTo string `json:"escalate_to"`
	Reason     string `json:"reason,omitempty"`
}

func (h *Handler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req escalateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Escalate(r.Context(), id, chi.URLParam(r, "email"), req.EscalateTo, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "escalated"})
}

func (h *Handler) handleAddCustodian(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req custodianRequest
	if !h.decode(w, r, &req) {
		return
	}
	held, err := h.svc.AddCustodian(r.Context(), id, hold.CustodianParams{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Department:  req.Department,
		Title:       req.Title,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHoldResponse(held))
}

type releaseRequest struct {
	Reason     string   `json:"reason"`
	Custodians []string `json:"custodians,omitempty"`
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Reason == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "a release requires a reason"))
		return
	}
	held, err := h.svc.Release(r.Context(), id, req.Reason, req.Custodians)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldResponse(held))
}

type interviewRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (h *Handler) handleInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req interviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RecordInterview(r.Context(), id, chi.URLParam(r, "email"), req.Notes); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "interview_recorded"})
}

type evidenceRequest struct {
	Ref string `json:"ref"`
}

func (h *Handler) handleAttachEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req evidenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.AttachEvidence(r.Context(), id, domain.EvidenceRef(req.Ref)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "evidence_attached"})
}

type correctRequest struct {
	Method        string `json:"method"`
	Justification string `json:"justification"`
	CorrectsSeq   int64  `json:"corrects_seq"`
}

func (h *Handler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	var req correctRequest
	if !h.decode(w, r, &req) {
		return
	}
	method, err := domain.ParseAckMethod(req.Method)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.CorrectCustodian(r.Context(), id, chi.URLParam(r, "email"), method, req.Justification, req.CorrectsSeq); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "corrected"})
}

func (h *Handler) handleCompliance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.ComplianceSnapshot(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, complianceResponse{
		HoldID:                 snap.HoldID.String(),
		Status:                 string(snap.Status),
		TotalCustodians:        snap.TotalCustodians,
		AcknowledgedCustodians: snap.AcknowledgedCustodians,
		NonCompliant:           snap.NonCompliant,
		Escalated:              snap.Escalated,
		Released:               snap.Released,
		ComplianceRate:         snap.ComplianceRate,
	})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.holdID(w, r)
	if !ok {
		return
	}

	filter := audit.Filter{
		Actor:  r.URL.Query().Get("actor"),
		Action: audit.Action(r.URL.Query().Get("action")),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "from must be RFC 3339"))
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "to must be RFC 3339"))
			return
		}
		filter.To = to
	}

	entries, err := h.svc.AuditList(r.Context(), id, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
