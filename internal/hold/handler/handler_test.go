package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdright/internal/audit"
	"holdright/internal/hold/service"
	"holdright/internal/hold/store"
	"holdright/internal/notify"
	"holdright/internal/platform/metrics"
	"holdright/pkg/testutil"
)

var testMetrics = metrics.New()

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type dropQueue struct{}

func (dropQueue) Enqueue(notify.Message) bool { return true }

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	trail := audit.NewTrail(audit.NewInMemoryStore(), slog.Default())
	svc := service.NewService(store.NewInMemoryStore(), service.NewShardedTx(nil), trail, dropQueue{}, testMetrics, slog.Default())
	r := chi.NewRouter()
	New(svc, slog.Default()).Register(r)
	return r
}

func do(t *testing.T, r chi.Router, method, path string, body any, at time.Time) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, body)
	req = testutil.WithActor(req, "counsel@firm.example")
	req = testutil.WithTime(req, at)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createHold(t *testing.T, r chi.Router, custodians ...string) string {
	t.Helper()
	reqCustodians := make([]map[string]string, 0, len(custodians))
	for _, addr := range custodians {
		reqCustodians = append(reqCustodians, map[string]string{"email": addr})
	}
	rec := do(t, r, http.MethodPost, "/holds", map[string]any{
		"name":       "Project Meridian",
		"case_ref":   "CASE-2026-0142",
		"cadence":    "weekly",
		"custodians": reqCustodians,
	}, t0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp holdResponse
	testutil.DecodeJSON(t, rec, &resp)
	return resp.ID
}

func issueHold(t *testing.T, r chi.Router, id string) {
	t.Helper()
	rec := do(t, r, http.MethodPost, "/holds/"+id+"/issue", nil, t0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCreateHold(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/holds", map[string]any{
		"name":            "Project Meridian",
		"case_ref":        "CASE-2026-0142",
		"cadence":         "weekly",
		"data_categories": []string{"email", "chat"},
		"custodians":      []map[string]string{{"email": "Alice@Corp.Example"}},
	}, t0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp holdResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "draft", resp.Status)
	assert.Equal(t, []string{"email", "chat"}, resp.DataCategories)
	require.Len(t, resp.Custodians, 1)
	assert.Equal(t, "alice@corp.example", resp.Custodians[0].Email)
	assert.Equal(t, "pending", resp.Custodians[0].State)
}

func TestCreateHold_Invalid(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing custodians", map[string]any{"name": "X", "case_ref": "C", "cadence": "weekly"}},
		{"bad cadence", map[string]any{"name": "X", "case_ref": "C", "cadence": "hourly",
			"custodians": []map[string]string{{"email": "a@b.example"}}}},
		{"bad data category", map[string]any{"name": "X", "case_ref": "C", "cadence": "weekly",
			"data_categories": []string{"papers"},
			"custodians":      []map[string]string{{"email": "a@b.example"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/holds", tc.body, t0)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHoldLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	id := createHold(t, r, "alice@corp.example", "bob@corp.example")
	issueHold(t, r, id)

	rec := do(t, r, http.MethodPost, "/holds/"+id+"/notify", nil, t0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/holds/"+id+"/custodians/alice@corp.example/acknowledge",
		map[string]string{"method": "email"}, t0.Add(time.Hour))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp holdResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 50, resp.ComplianceRate)
	assert.Equal(t, 1, resp.AcknowledgedCustodians)
}

func TestAcknowledge_InvalidTransitionIsConflict(t *testing.T) {
	r := newTestRouter(t)
	id := createHold(t, r, "alice@corp.example")
	issueHold(t, r, id)

	// Acknowledge before any notice went out.
	rec := do(t, r, http.MethodPost, "/holds/"+id+"/custodians/alice@corp.example/acknowledge",
		map[string]string{"method": "email"}, t0)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestUnknownHoldIs404(t *testing.T) {
	r := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/holds/6a9dd173-5d79-4b10-b28c-1a30e6efb51c", nil, t0)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedHoldIDIs400(t *testing.T) {
	r := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/holds/not-a-uuid", nil, t0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "invalid_input", resp.Error)
}

func TestReleaseOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	id := createHold(t, r, "alice@corp.example", "bob@corp.example")
	issueHold(t, r, id)

	rec := do(t, r, http.MethodPost, "/holds/"+id+"/release", map[string]any{
		"reason":     "custodian left the company",
		"custodians": []string{"alice@corp.example"},
	}, t0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp holdResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "partially_released", resp.Status)

	rec = do(t, r, http.MethodPost, "/holds/"+id+"/release", map[string]any{"reason": "matter settled"}, t0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, "released", resp.Status)

	// Releasing again is a conflict, and a missing reason is invalid.
	rec = do(t, r, http.MethodPost, "/holds/"+id+"/release", map[string]any{"reason": "again"}, t0)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, r, http.MethodPost, "/holds/"+id+"/release", map[string]any{}, t0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplianceEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := createHold(t, r, "a@corp.example", "b@corp.example", "c@corp.example")
	issueHold(t, r, id)
	rec := do(t, r, http.MethodPost, "/holds/"+id+"/notify", nil, t0)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/holds/"+id+"/custodians/a@corp.example/acknowledge",
		map[string]string{"method": "phone"}, t0.Add(time.Hour))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/holds/"+id+"/compliance", nil, t0.Add(2*time.Hour))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp complianceResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 3, resp.TotalCustodians)
	assert.Equal(t, 1, resp.AcknowledgedCustodians)
	assert.Equal(t, 33, resp.ComplianceRate)
}

func TestAuditEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := createHold(t, r, "alice@corp.example")
	issueHold(t, r, id)

	rec := do(t, r, http.MethodGet, "/holds/"+id+"/audit", nil, t0)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []auditEntryResponse `json:"entries"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "hold_created", resp.Entries[0].Action)
	assert.Equal(t, int64(1), resp.Entries[0].Seq)
	assert.Equal(t, "hold_issued", resp.Entries[1].Action)
	assert.Equal(t, "counsel@firm.example", resp.Entries[1].Actor)

	t.Run("action filter", func(t *testing.T) {
		rec := do(t, r, http.MethodGet, "/holds/"+id+"/audit?action=hold_issued", nil, t0)
		require.Equal(t, http.StatusOK, rec.Code)
		testutil.DecodeJSON(t, rec, &resp)
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, "hold_issued", resp.Entries[0].Action)
	})

	t.Run("time window", func(t *testing.T) {
		window := "from=" + url.QueryEscape(t0.Add(-time.Hour).Format(time.RFC3339)) +
			"&to=" + url.QueryEscape(t0.Add(time.Hour).Format(time.RFC3339))
		rec := do(t, r, http.MethodGet, "/holds/"+id+"/audit?"+window, nil, t0)
		require.Equal(t, http.StatusOK, rec.Code)
		testutil.DecodeJSON(t, rec, &resp)
		assert.Len(t, resp.Entries, 2)

		late := "from=" + url.QueryEscape(t0.Add(time.Hour).Format(time.RFC3339))
		rec = do(t, r, http.MethodGet, "/holds/"+id+"/audit?"+late, nil, t0)
		require.Equal(t, http.StatusOK, rec.Code)
		testutil.DecodeJSON(t, rec, &resp)
		assert.Empty(t, resp.Entries)
	})

	t.Run("bad time bound", func(t *testing.T) {
		rec := do(t, r, http.MethodGet, "/holds/"+id+"/audit?from=yesterday", nil, t0)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAddCustodianAndEvidence(t *testing.T) {
	r := newTestRouter(t)
	id := createHold(t, r, "alice@corp.example")
	issueHold(t, r, id)

	rec := do(t, r, http.MethodPost, "/holds/"+id+"/custodians",
		map[string]string{"email": "bob@corp.example", "department": "Finance"}, t0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp holdResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 2, resp.TotalCustodians)

	rec = do(t, r, http.MethodPost, "/holds/"+id+"/custodians",
		map[string]string{"email": "bob@corp.example"}, t0)
	assert.Equal(t, http.StatusConflict, rec.Code, "duplicate custodian")

	rec = do(t, r, http.MethodPost, "/holds/"+id+"/evidence",
		map[string]string{"ref": "s3://evidence/CASE-2026-0142/export-001.zip"}, t0)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, r, http.MethodGet, fmt.Sprintf("/holds/%s", id), nil, t0)
	require.Equal(t, http.StatusOK, rec.Code)
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, []string{"s3://evidence/CASE-2026-0142/export-001.zip"}, resp.Evidence)
}

func TestCorrectEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := createHold(t, r, "alice@corp.example")
	issueHold(t, r, id)
	rec := do(t, r, http.MethodPost, "/holds/"+id+"/release", map[string]any{"reason": "matter settled"}, t0)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/holds/"+id+"/custodians/alice@corp.example/correct",
		map[string]any{"method": "in_person", "corrects_seq": 2}, t0)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "justification required")

	rec = do(t, r, http.MethodPost, "/holds/"+id+"/custodians/alice@corp.example/correct",
		map[string]any{"method": "in_person", "justification": "signed form surfaced", "corrects_seq": 2}, t0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
