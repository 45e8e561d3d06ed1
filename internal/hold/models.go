package hold

import (
	"fmt"
	"math"
	"time"

	"holdright/pkg/domain"
	dErrors "holdright/pkg/domain-errors"
	"holdright/pkg/email"
)

// Custodian is one ledger entry under a hold. State transitions are only
// performed through the methods below so that every path is guarded.
type Custodian struct {
	Email       string
	DisplayName string
	Department  string
	Title       string

	State    domain.CustodianState
	Released bool

	NotifiedAt     *time.Time
	AcknowledgedAt *time.Time
	AckMethod      domain.AckMethod

	LastReminderAt *time.Time
	ReminderCount  int

	EscalatedTo string
	EscalatedAt *time.Time

	NonCompliantReason string

	InterviewedAt *time.Time

	ReleasedAt     *time.Time
	ReleasedReason string
}

func (c *Custodian) guardReleased() error {
	if c.Released {
		return dErrors.Newf(dErrors.CodeCustodianReleased, "custodian %s is released from the hold", c.Email)
	}
	return nil
}

// Notify marks the custodian as having received the initial hold notice.
// Valid only from Pending.
func (c *Custodian) Notify(now time.Time) error {
	if err := c.guardReleased(); err != nil {
		return err
	}
	if c.State != domain.CustodianStatePending {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot notify custodian %s in state %s", c.Email, c.State)
	}
	c.State = domain.CustodianStateNotified
	c.NotifiedAt = &now
	return nil
}

// Acknowledge records the custodian's acceptance of the preservation
// obligation. Valid from Notified, NonCompliant and Escalated. A repeated
// acknowledgment is a no-op and reports applied=false so callers can audit
// the duplicate without failing the request.
func (c *Custodian) Acknowledge(method domain.AckMethod, now time.Time) (applied bool, err error) {
	if err := c.guardReleased(); err != nil {
		return false, err
	}
	switch c.State {
	case domain.CustodianStateAcknowledged:
		return false, nil
	case domain.CustodianStateNotified, domain.CustodianStateNonCompliant, domain.CustodianStateEscalated:
	default:
		return false, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot acknowledge custodian %s in state %s", c.Email, c.State)
	}
	c.State = domain.CustodianStateAcknowledged
	c.AcknowledgedAt = &now
	c.AckMethod = method
	c.NonCompliantReason = ""
	return true, nil
}

// MarkNonCompliant flags a notified custodian who has failed to acknowledge
// within the organization's response window.
func (c *Custodian) MarkNonCompliant(reason string, now time.Time) error {
	if err := c.guardReleased(); err != nil {
		return err
	}
	if c.State != domain.CustodianStateNotified {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot mark custodian %s non-compliant in state %s", c.Email, c.State)
	}
	c.State = domain.CustodianStateNonCompliant
	c.NonCompliantReason = reason
	return nil
}

// Escalate raises a non-compliant custodian to a supervisor or legal contact.
func (c *Custodian) Escalate(to string, now time.Time) error {
	if err := c.guardReleased(); err != nil {
		return err
	}
	if c.State != domain.CustodianStateNonCompliant {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot escalate custodian %s in state %s", c.Email, c.State)
	}
	if to == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "escalation target is required")
	}
	c.State = domain.CustodianStateEscalated
	c.EscalatedTo = to
	c.EscalatedAt = &now
	return nil
}

// RecordReminder bumps the reminder counter after a reminder dispatch was
// attempted. Valid only while the custodian still owes an acknowledgment.
func (c *Custodian) RecordReminder(now time.Time) error {
	if err := c.guardReleased(); err != nil {
		return err
	}
	switch c.State {
	case domain.CustodianStateNotified, domain.CustodianStateNonCompliant:
	default:
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot record reminder for custodian %s in state %s", c.Email, c.State)
	}
	c.LastReminderAt = &now
	c.ReminderCount++
	return nil
}

// RecordInterview stamps a custodian interview. Allowed in any live state.
func (c *Custodian) RecordInterview(now time.Time) error {
	if err := c.guardReleased(); err != nil {
		return err
	}
	c.InterviewedAt = &now
	return nil
}

// Release removes the custodian from the hold's obligations. The prior
// compliance state is preserved for the record; only the released flag and
// release metadata change.
func (c *Custodian) Release(reason string, now time.Time) error {
	if err := c.guardReleased(); err != nil {
		return err
	}
	c.Released = true
	c.ReleasedAt = &now
	c.ReleasedReason = reason
	return nil
}

// Correct applies an exceptional post-release correction, forcing the
// custodian into Acknowledged. Callers must write an audit entry carrying
// the justification and the sequence number being corrected.
func (c *Custodian) Correct(method domain.AckMethod, now time.Time) {
	c.State = domain.CustodianStateAcknowledged
	c.AcknowledgedAt = &now
	c.AckMethod = method
}

// Hold is the aggregate root. All custodian mutations go through the
// aggregate so derived counters and hold status stay consistent.
type Hold struct {
	ID          domain.HoldID
	Name        string
	CaseRef     domain.CaseRef
	Description string
	LegalBasis  string
	Scope       string

	DataCategories []domain.DataCategory
	Evidence       []domain.EvidenceRef

	Status domain.HoldStatus

	Cadence     domain.ReminderCadence
	TemplateRef string

	IssuedAt       *time.Time
	EffectiveUntil *time.Time
	ReleasedAt     *time.Time

	Custodians []*Custodian

	TotalCustodians        int
	AcknowledgedCustodians int
	ComplianceRate         int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewHoldParams carries the fields required to create a draft hold.
type NewHoldParams struct {
	Name           string
	CaseRef        domain.CaseRef
	Description    string
	LegalBasis     string
	Scope          string
	DataCategories []domain.DataCategory
	Cadence        domain.ReminderCadence
	TemplateRef    string
	EffectiveUntil *time.Time
	Custodians     []CustodianParams
}

// CustodianParams describes a custodian being added to a hold.
type CustodianParams struct {
	Email       string
	DisplayName string
	Department  string
	Title       string
}

// New validates the params and builds a Draft hold. A hold must name at
// least one custodian, and custodian emails are unique case-insensitively.
func New(id domain.HoldID, p NewHoldParams, now time.Time) (*Hold, error) {
	if p.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "hold name is required")
	}
	if p.CaseRef == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "case reference is required")
	}
	if len(p.Custodians) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a hold requires at least one custodian")
	}
	if !p.Cadence.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown reminder cadence %q", p.Cadence)
	}
	for _, cat := range p.DataCategories {
		if !cat.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown data category %q", cat)
		}
	}

	h := &Hold{
		ID:             id,
		Name:           p.Name,
		CaseRef:        p.CaseRef,
		Description:    p.Description,
		LegalBasis:     p.LegalBasis,
		Scope:          p.Scope,
		DataCategories: p.DataCategories,
		Status:         domain.HoldStatusDraft,
		Cadence:        p.Cadence,
		TemplateRef:    p.TemplateRef,
		EffectiveUntil: p.EffectiveUntil,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, cp := range p.Custodians {
		if _, err := h.addCustodian(cp); err != nil {
			return nil, err
		}
	}
	h.recompute()
	return h, nil
}

func (h *Hold) addCustodian(p CustodianParams) (*Custodian, error) {
	addr := email.Normalize(p.Email)
	if addr == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "custodian email is required")
	}
	if h.Custodian(addr) != nil {
		return nil, dErrors.Newf(dErrors.CodeDuplicateCustodian, "custodian %s already on hold", addr)
	}
	name := p.DisplayName
	if name == "" {
		name = email.DeriveDisplayName(addr)
	}
	c := &Custodian{
		Email:       addr,
		DisplayName: name,
		Department:  p.Department,
		Title:       p.Title,
		State:       domain.CustodianStatePending,
	}
	h.Custodians = append(h.Custodians, c)
	return c, nil
}

// Custodian finds a ledger entry by email, matching case-insensitively.
// Returns nil when the custodian is not on the hold.
func (h *Hold) Custodian(addr string) *Custodian {
	addr = email.Normalize(addr)
	for _, c := range h.Custodians {
		if c.Email == addr {
			return c
		}
	}
	return nil
}

func (h *Hold) custodianOrErr(addr string) (*Custodian, error) {
	c := h.Custodian(addr)
	if c == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "custodian %s is not on hold %s", email.Normalize(addr), h.ID)
	}
	return c, nil
}

// Issue activates a draft hold and stamps the issue date.
func (h *Hold) Issue(now time.Time) error {
	if h.Status != domain.HoldStatusDraft {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot issue hold in status %s", h.Status)
	}
	h.Status = domain.HoldStatusActive
	h.IssuedAt = &now
	h.touch(now)
	return nil
}

// AddCustodian appends a custodian to a hold that has not been released.
func (h *Hold) AddCustodian(p CustodianParams, now time.Time) (*Custodian, error) {
	if err := h.guardReleased(); err != nil {
		return nil, err
	}
	c, err := h.addCustodian(p)
	if err != nil {
		return nil, err
	}
	h.recompute()
	h.touch(now)
	return c, nil
}

// NotifyCustodian transitions one custodian to Notified. The hold must be
// active; notices never go out from a draft.
func (h *Hold) NotifyCustodian(addr string, now time.Time) (*Custodian, error) {
	if h.Status == domain.HoldStatusDraft {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot notify custodians on a draft hold")
	}
	if err := h.guardReleased(); err != nil {
		return nil, err
	}
	c, err := h.custodianOrErr(addr)
	if err != nil {
		return nil, err
	}
	if err := c.Notify(now); err != nil {
		return nil, err
	}
	h.touch(now)
	return c, nil
}

// Acknowledge records a custodian acknowledgment and refreshes the derived
// compliance counters. applied is false for an idempotent duplicate.
func (h *Hold) Acknowledge(addr string, method domain.AckMethod, now time.Time) (c *Custodian, applied bool, err error) {
	if !method.IsValid() {
		return nil, false, dErrors.Newf(dErrors.CodeInvalidInput, "unknown acknowledgment method %q", method)
	}
	c, err = h.custodianOrErr(addr)
	if err != nil {
		return nil, false, err
	}
	applied, err = c.Acknowledge(method, now)
	if err != nil {
		return nil, false, err
	}
	if applied {
		h.recompute()
		h.touch(now)
	}
	return c, applied, nil
}

// MarkNonCompliant flags a custodian who missed the response window.
func (h *Hold) MarkNonCompliant(addr, reason string, now time.Time) (*Custodian, error) {
	c, err := h.custodianOrErr(addr)
	if err != nil {
		return nil, err
	}
	if err := c.MarkNonCompliant(reason, now); err != nil {
		return nil, err
	}
	h.touch(now)
	return c, nil
}

// Escalate raises a non-compliant custodian to the named contact.
func (h *Hold) Escalate(addr, to string, now time.Time) (*Custodian, error) {
	c, err := h.custodianOrErr(addr)
	if err != nil {
		return nil, err
	}
	if err := c.Escalate(to, now); err != nil {
		return nil, err
	}
	h.touch(now)
	return c, nil
}

// RecordReminder bumps the custodian's reminder counter after a dispatch
// attempt was made on their behalf.
func (h *Hold) RecordReminder(addr string, now time.Time) (*Custodian, error) {
	c, err := h.custodianOrErr(addr)
	if err != nil {
		return nil, err
	}
	if err := c.RecordReminder(now); err != nil {
		return nil, err
	}
	h.touch(now)
	return c, nil
}

// RecordInterview stamps a custodian interview on the ledger.
func (h *Hold) RecordInterview(addr string, now time.Time) (*Custodian, error) {
	c, err := h.custodianOrErr(addr)
	if err != nil {
		return nil, err
	}
	if err := c.RecordInterview(now); err != nil {
		return nil, err
	}
	h.touch(now)
	return c, nil
}

// AttachEvidence links an evidence reference to the hold. References are
// opaque here; the engine never resolves them.
func (h *Hold) AttachEvidence(ref domain.EvidenceRef, now time.Time) error {
	if ref == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "evidence reference is required")
	}
	h.Evidence = append(h.Evidence, ref)
	h.touch(now)
	return nil
}

// Release releases custodians from the hold. With no addresses it is a
// blanket release of everyone still held; with addresses it releases that
// subset. Hold status is re-derived afterwards: Released when no custodian
// remains held, PartiallyReleased otherwise.
func (h *Hold) Release(addrs []string, reason string, now time.Time) ([]*Custodian, error) {
	if h.Status == domain.HoldStatusDraft {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot release custodians from a draft hold")
	}
	if err := h.guardReleased(); err != nil {
		return nil, err
	}

	var targets []*Custodian
	if len(addrs) == 0 {
		for _, c := range h.Custodians {
			if !c.Released {
				targets = append(targets, c)
			}
		}
		if len(targets) == 0 {
			return nil, dErrors.Newf(dErrors.CodeAlreadyReleased, "hold %s has no custodians left to release", h.ID)
		}
	} else {
		for _, addr := range addrs {
			c, err := h.custodianOrErr(addr)
			if err != nil {
				return nil, err
			}
			targets = append(targets, c)
		}
	}

	for _, c := range targets {
		if err := c.Release(reason, now); err != nil {
			return nil, err
		}
	}

	if h.heldCount() == 0 {
		h.Status = domain.HoldStatusReleased
		h.ReleasedAt = &now
	} else {
		h.Status = domain.HoldStatusPartiallyReleased
	}
	h.recompute()
	h.touch(now)
	return targets, nil
}

// Expire marks a hold whose effective window has lapsed. Custodian ledger
// entries are untouched; expiry is a hold-level status only.
func (h *Hold) Expire(now time.Time) error {
	switch h.Status {
	case domain.HoldStatusActive, domain.HoldStatusPartiallyReleased:
	default:
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot expire hold in status %s", h.Status)
	}
	if h.EffectiveUntil == nil || now.Before(*h.EffectiveUntil) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "hold %s is still within its effective window", h.ID)
	}
	h.Status = domain.HoldStatusExpired
	h.touch(now)
	return nil
}

// Correct applies an exceptional post-release correction to one custodian.
func (h *Hold) Correct(addr string, method domain.AckMethod, now time.Time) (*Custodian, error) {
	if !method.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown acknowledgment method %q", method)
	}
	c, err := h.custodianOrErr(addr)
	if err != nil {
		return nil, err
	}
	c.Correct(method, now)
	h.recompute()
	h.touch(now)
	return c, nil
}

func (h *Hold) guardReleased() error {
	if h.Status == domain.HoldStatusReleased {
		return dErrors.Newf(dErrors.CodeAlreadyReleased, "hold %s is released", h.ID)
	}
	if h.Status == domain.HoldStatusExpired {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "hold %s is expired", h.ID)
	}
	return nil
}

func (h *Hold) heldCount() int {
	n := 0
	for _, c := range h.Custodians {
		if !c.Released {
			n++
		}
	}
	return n
}

// recompute refreshes the derived compliance counters. Released custodians
// stay in the denominator; release does not reduce the compliance burden of
// the record.
func (h *Hold) recompute() {
	h.TotalCustodians = len(h.Custodians)
	acked := 0
	for _, c := range h.Custodians {
		if c.State == domain.CustodianStateAcknowledged {
			acked++
		}
	}
	h.AcknowledgedCustodians = acked
	if h.TotalCustodians == 0 {
		h.ComplianceRate = 0
		return
	}
	h.ComplianceRate = int(math.Round(float64(acked) / float64(h.TotalCustodians) * 100))
}

func (h *Hold) touch(now time.Time) {
	h.UpdatedAt = now
}

// Snapshot is the point-in-time compliance view of a hold.
type Snapshot struct {
	HoldID                 domain.HoldID
	Status                 domain.HoldStatus
	TotalCustodians        int
	AcknowledgedCustodians int
	NonCompliant           int
	Escalated              int
	Released               int
	ComplianceRate         int
}

// ComplianceSnapshot computes the current compliance figures.
func (h *Hold) ComplianceSnapshot() Snapshot {
	s := Snapshot{
		HoldID:                 h.ID,
		Status:                 h.Status,
		TotalCustodians:        h.TotalCustodians,
		AcknowledgedCustodians: h.AcknowledgedCustodians,
		ComplianceRate:         h.ComplianceRate,
	}
	for _, c := range h.Custodians {
		if c.Released {
			s.Released++
		}
		switch c.State {
		case domain.CustodianStateNonCompliant:
			s.NonCompliant++
		case domain.CustodianStateEscalated:
			s.Escalated++
		}
	}
	return s
}

// Clone deep-copies the hold so stores can hand out isolated snapshots.
func (h *Hold) Clone() *Hold {
	cp := *h
	cp.Custodians = make([]*Custodian, len(h.Custodians))
	for i, c := range h.Custodians {
		cc := *c
		cp.Custodians[i] = &cc
	}
	cp.DataCategories = append([]domain.DataCategory(nil), h.DataCategories...)
	cp.Evidence = append([]domain.EvidenceRef(nil), h.Evidence...)
	return &cp
}

func (h *Hold) String() string {
	return fmt.Sprintf("hold %s (%s, %d custodians, %d%% compliant)", h.ID, h.Status, h.TotalCustodians, h.ComplianceRate)
}
