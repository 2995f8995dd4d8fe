package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finvela-ai/invoiceflow"
)

func newTestServer(t *testing.T, score float64) *httptest.Server {
	t.Helper()
	engine, err := invoiceflow.NewEngine(invoiceflow.EngineOptions{
		Scorer: invoiceflow.StubScorer{FixedScore: score},
	})
	require.NoError(t, err)
	server := httptest.NewServer(Handler(Deps{Engine: engine}))
	t.Cleanup(server.Close)
	return server
}

func invoiceBody(t *testing.T) *bytes.Reader {
	t.Helper()
	payload := map[string]any{
		"invoice_id":  "INV-2001",
		"vendor_name": "Acme Supplies",
		"amount":      5000.0,
		"currency":    "USD",
		"line_items": []map[string]any{
			{"desc": "Widgets", "qty": 10, "unit_price": 500, "total": 5000},
		},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, 0.95)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestProcessInvoiceCompletes(t *testing.T) {
	server := newTestServer(t, 0.95)

	resp, err := http.Post(server.URL+"/invoices", "application/json", invoiceBody(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	require.Equal(t, "COMPLETED", body["status"])
	require.NotEmpty(t, body["workflow_id"])
	final, ok := body["final_payload"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "AUTO_APPROVED", final["approval_status"])
	require.NotEmpty(t, final["erp_txn_id"])
}

func TestProcessInvoiceRejectsBadPayload(t *testing.T) {
	server := newTestServer(t, 0.95)

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/invoices", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("invalid invoice", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/invoices", "application/json",
			bytes.NewReader([]byte(`{"invoice_id":"INV-1"}`)))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		require.Contains(t, body["error"], "vendor_name")
	})
}

func TestReviewLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t, 0.60)

	// Submission pauses for review.
	resp, err := http.Post(server.URL+"/invoices", "application/json", invoiceBody(t))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "PAUSED_FOR_REVIEW", body["status"])
	checkpointID, ok := body["checkpoint_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, checkpointID)

	// The checkpoint shows up in the pending queue.
	resp, err = http.Get(server.URL + "/reviews/pending")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	queue := decodeBody(t, resp)
	require.Equal(t, float64(1), queue["count"])

	// Detail view carries the triage fields and the suspended-run blob.
	resp, err = http.Get(server.URL + "/reviews/" + checkpointID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeBody(t, resp)
	require.Equal(t, "PENDING", detail["review_status"])
	require.Equal(t, "INV-2001", detail["invoice_id"])
	blob, ok := detail["state_blob"].(string)
	require.True(t, ok)
	require.NotEmpty(t, blob)

	// Accepting resumes and completes the run.
	decision, err := json.Marshal(map[string]any{
		"checkpoint_id": checkpointID,
		"decision":      "ACCEPT",
		"reviewer_id":   "reviewer-9",
	})
	require.NoError(t, err)
	resp, err = http.Post(server.URL+"/reviews/decision", "application/json", bytes.NewReader(decision))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decodeBody(t, resp)
	require.NotEmpty(t, receipt["resume_token"])
	require.Equal(t, "RECONCILE", receipt["next_stage"])
	result, ok := receipt["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "COMPLETED", result["status"])

	// A second decision for the same checkpoint conflicts.
	resp, err = http.Post(server.URL+"/reviews/decision", "application/json", bytes.NewReader(decision))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// And the queue is empty again.
	resp, err = http.Get(server.URL + "/reviews/pending")
	require.NoError(t, err)
	queue = decodeBody(t, resp)
	require.Equal(t, float64(0), queue["count"])
}

func TestDecisionErrors(t *testing.T) {
	server := newTestServer(t, 0.95)

	t.Run("unknown checkpoint", func(t *testing.T) {
		decision, _ := json.Marshal(map[string]any{
			"checkpoint_id": "chk_missing",
			"decision":      "ACCEPT",
			"reviewer_id":   "reviewer-1",
		})
		resp, err := http.Post(server.URL+"/reviews/decision", "application/json", bytes.NewReader(decision))
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("invalid decision value", func(t *testing.T) {
		decision, _ := json.Marshal(map[string]any{
			"checkpoint_id": "chk_x",
			"decision":      "MAYBE",
			"reviewer_id":   "reviewer-1",
		})
		resp, err := http.Post(server.URL+"/reviews/decision", "application/json", bytes.NewReader(decision))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("unknown checkpoint detail", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/reviews/chk_missing")
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}
