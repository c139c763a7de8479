package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Projet-annuel-5A/api-middleware/internal/fanout"
)

type fakePre struct {
	err       error
	lastIDs   [2]int64
	callCount int
}

func (f *fakePre) Run(ctx context.Context, sessionID, interviewID int64) error {
	f.callCount++
	f.lastIDs = [2]int64{sessionID, interviewID}
	return f.err
}

type fakePred struct {
	err error
	res fanout.Result
}

func (f *fakePred) Run(ctx context.Context, sessionID, interviewID int64) (fanout.Result, error) {
	return f.res, f.err
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := New(&fakePre{}, &fakePred{}).Handler()
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %q", w.Code, w.Body.String())
	}
}

func TestPreprocessOk(t *testing.T) {
	pre := &fakePre{}
	h := New(pre, &fakePred{}).Handler()
	w := do(t, h, http.MethodPost, "/preprocess", `{"session_id":1,"interview_id":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %q", w.Code, w.Body.String())
	}
	if pre.lastIDs != [2]int64{1, 7} {
		t.Errorf("ids = %v", pre.lastIDs)
	}
}

func TestPreprocessFailureIsHardError(t *testing.T) {
	pre := &fakePre{err: errors.New("diarization: connection refused")}
	h := New(pre, &fakePred{}).Handler()
	w := do(t, h, http.MethodPost, "/preprocess", `{"session_id":1,"interview_id":7}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "diarization") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestPredictPartialFailureIsStillOk(t *testing.T) {
	pred := &fakePred{res: fanout.Result{Outcomes: []fanout.Outcome{
		{Target: "audio", Status: fanout.StatusOk},
		{Target: "text", Status: fanout.StatusFailed, Payload: "HTTP 500"},
	}}}
	h := New(&fakePre{}, pred).Handler()
	w := do(t, h, http.MethodPost, "/predict", `{"session_id":1,"interview_id":7}`)
	if w.Code != http.StatusOK {
		t.Errorf("partial failure should map to 200, got %d", w.Code)
	}
}

func TestPredictSetupFailureIs500(t *testing.T) {
	pred := &fakePred{err: fanout.ErrNoTargets}
	h := New(&fakePre{}, pred).Handler()
	w := do(t, h, http.MethodPost, "/predict", `{"session_id":1,"interview_id":7}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestBadRequests(t *testing.T) {
	pre := &fakePre{}
	h := New(pre, &fakePred{}).Handler()

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing ids", http.MethodPost, `{}`, http.StatusBadRequest},
		{"negative id", http.MethodPost, `{"session_id":-1,"interview_id":7}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := do(t, h, c.method, "/preprocess", c.body)
			if w.Code != c.want {
				t.Errorf("status = %d, want %d", w.Code, c.want)
			}
		})
	}
	if pre.callCount != 0 {
		t.Errorf("pipeline invoked %d times on bad requests", pre.callCount)
	}
}
