package handler

import (
	"time"

	"holdright/internal/audit"
	"holdright/internal/hold"
)

type custodianResponse struct {
	Email              string     `json:"email"`
	DisplayName        string     `json:"display_name"`
	Department         string     `json:"department,omitempty"`
	Title              string     `json:"title,omitempty"`
	State              string     `json:"state"`
	Released           bool       `json:"released"`
	NotifiedAt         *time.Time `json:"notified_at,omitempty"`
	AcknowledgedAt     *time.Time `json:"acknowledged_at,omitempty"`
	AckMethod          string     `json:"ack_method,omitempty"`
	LastReminderAt     *time.Time `json:"last_reminder_at,omitempty"`
	ReminderCount      int        `json:"reminder_count"`
	EscalatedTo        string     `json:"escalated_to,omitempty"`
	EscalatedAt        *time.Time `json:"escalated_at,omitempty"`
	NonCompliantReason string     `json:"non_compliant_reason,omitempty"`
	InterviewedAt      *time.Time `json:"interviewed_at,omitempty"`
	ReleasedAt         *time.Time `json:"released_at,omitempty"`
	ReleasedReason     string     `json:"released_reason,omitempty"`
}

type holdResponse struct {
	ID                     string              `json:"id"`
	Name                   string              `json:"name"`
	CaseRef                string              `json:"case_ref"`
	Description            string              `json:"description,omitempty"`
	LegalBasis             string              `json:"legal_basis,omitempty"`
	Scope                  string              `json:"scope,omitempty"`
	DataCategories         []string            `json:"data_categories,omitempty"`
	Evidence               []string            `json:"evidence,omitempty"`
	Status                 string              `json:"status"`
	Cadence                string              `json:"cadence"`
	TemplateRef            string              `json:"template_ref,omitempty"`
	IssuedAt               *time.Time          `json:"issued_at,omitempty"`
	EffectiveUntil         *time.Time          `json:"effective_until,omitempty"`
	ReleasedAt             *time.Time          `json:"released_at,omitempty"`
	TotalCustodians        int                 `json:"total_custodians"`
	AcknowledgedCustodians int                 `json:"acknowledged_custodians"`
	ComplianceRate         int                 `json:"compliance_rate"`
	Custodians             []custodianResponse `json:"custodians"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

type complianceResponse struct {
	HoldID                 string `json:"hold_id"`
	Status                 string `json:"status"`
	TotalCustodians        int    `json:"total_custodians"`
	AcknowledgedCustodians int    `json:"acknowledged_custodians"`
	NonCompliant           int    `json:"non_compliant"`
	Escalated              int    `json:"escalated"`
	Released               int    `json:"released"`
	ComplianceRate         int    `json:"compliance_rate"`
}

type auditEntryResponse struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	Category    string    `json:"category"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Detail      string    `json:"detail,omitempty"`
	CorrectsSeq *int64    `json:"corrects_seq,omitempty"`
}

func toHoldResponse(h *hold.Hold) holdResponse {
	resp := holdResponse{
		ID:                     h.ID.String(),
		Name:                   h.Name,
		CaseRef:                string(h.CaseRef),
		Description:            h.Description,
		LegalBasis:             h.LegalBasis,
		Scope:                  h.Scope,
		Status:                 string(h.Status),
		Cadence:                string(h.Cadence),
		TemplateRef:            h.TemplateRef,
		IssuedAt:               h.IssuedAt,
		EffectiveUntil:         h.EffectiveUntil,
		ReleasedAt:             h.ReleasedAt,
		TotalCustodians:        h.TotalCustodians,
		AcknowledgedCustodians: h.AcknowledgedCustodians,
		ComplianceRate:         h.ComplianceRate,
		CreatedAt:              h.CreatedAt,
		UpdatedAt:              h.UpdatedAt,
	}
	for _, cat := range h.DataCategories {
		resp.DataCategories = append(resp.DataCategories, string(cat))
	}
	for _, ref := range h.Evidence {
		resp.Evidence = append(resp.Evidence, string(ref))
	}
	for _, c := range h.Custodians {
		resp.Custodians = append(resp.Custodians, custodianResponse{
			Email:              c.Email,
			DisplayName:        c.DisplayName,
			Department:         c.Department,
			Title:              c.Title,
			State:              string(c.State),
			Released:           c.Released,
			NotifiedAt:         c.NotifiedAt,
			AcknowledgedAt:     c.AcknowledgedAt,
			AckMethod:          string(c.AckMethod),
			LastReminderAt:     c.LastReminderAt,
			ReminderCount:      c.ReminderCount,
			EscalatedTo:        c.EscalatedTo,
			EscalatedAt:        c.EscalatedAt,
			NonCompliantReason: c.NonCompliantReason,
			InterviewedAt:      c.InterviewedAt,
			ReleasedAt:         c.ReleasedAt,
			ReleasedReason:     c.ReleasedReason,
		})
	}
	return resp
}

func toAuditEntryResponse(e audit.Entry) auditEntryResponse {
	return auditEntryResponse{
		ID:          e.ID.String(),
		Seq:         e.Seq,
		Category:    string(e.Action.Category()),
		Action:      string(e.Action),
		Actor:       e.Actor,
		Timestamp:   e.Timestamp,
		Detail:      e.Detail,
		CorrectsSeq: e.CorrectsSeq,
	}
}
