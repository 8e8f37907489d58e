package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-digest/cmd/internal/trace"
	"post-digest/services"
)

type stubRunner struct {
	report    services.RunReport
	err       error
	requestID string
	deadline  bool
}

func (s *stubRunner) RunOnce(ctx context.Context) (services.RunReport, error) {
	s.requestID = trace.RequestIDFromContext(ctx)
	_, s.deadline = ctx.Deadline()
	return s.report, s.err
}

func (s *stubRunner) Queue() string { return "dcinside_items" }

func init() {
	gin.SetMode(gin.TestMode)
}

func post(t *testing.T, r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWorkerTriggerStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		report services.RunReport
		err    error
		status int
		ok     *bool
	}{
		{name: "empty", report: services.RunReport{Result: services.ResultEmpty}, status: http.StatusNoContent},
		{name: "acked", report: services.RunReport{Result: services.ResultAcked, ItemID: 3, Message: "item 3 summarized by gemini-2.5-flash"}, status: http.StatusOK, ok: boolPtr(true)},
		{name: "requeued", report: services.RunReport{Result: services.ResultRequeued, ItemID: 3, Message: "transient fetch failure"}, status: http.StatusInternalServerError, ok: boolPtr(false)},
		{name: "dead", report: services.RunReport{Result: services.ResultDead, ItemID: 3, Message: "permanent summarize failure"}, status: http.StatusBadRequest, ok: boolPtr(false)},
		{name: "broker error", report: services.RunReport{Result: services.ResultEmpty}, err: errors.New("connection refused"), status: http.StatusInternalServerError, ok: boolPtr(false)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRouter(&stubRunner{report: tc.report, err: tc.err}, time.Minute)
			w := post(t, r, nil)
			assert.Equal(t, tc.status, w.Code)
			if tc.ok == nil {
				assert.Empty(t, w.Body.String())
				return
			}
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, *tc.ok, body["ok"])
			if *tc.ok {
				assert.Equal(t, tc.report.Message, body["message"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestWorkerTriggerPropagatesRequestID(t *testing.T) {
	stub := &stubRunner{report: services.RunReport{Result: services.ResultEmpty}}
	r := NewRouter(stub, time.Minute)

	w := post(t, r, map[string]string{trace.HeaderRequestID: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(trace.HeaderRequestID))
	assert.Equal(t, "req-123", stub.requestID)
	assert.True(t, stub.deadline)

	w = post(t, r, nil)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderRequestID))
	assert.Equal(t, w.Header().Get(trace.HeaderRequestID), stub.requestID)
}

func TestHealth(t *testing.T) {
	r := NewRouter(&stubRunner{}, 0)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func boolPtr(v bool) *bool { return &v }
