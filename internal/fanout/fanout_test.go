package fanout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeFlags struct {
	mu   sync.Mutex
	set  map[string]bool
	fail bool
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{set: map[string]bool{}}
}

func (f *fakeFlags) UpdateFlag(ctx context.Context, interviewID int64, name string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store unavailable")
	}
	f.set[name] = value
	return nil
}

func newDispatcher(t *testing.T, timeout time.Duration) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(&http.Client{Timeout: timeout}, testLog())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func params() url.Values {
	return url.Values{"session_id": {"1"}, "interview_id": {"7"}}
}

func TestNewDispatcherNilClient(t *testing.T) {
	if _, err := NewDispatcher(nil, testLog()); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestDispatchEmptyTargets(t *testing.T) {
	d := newDispatcher(t, time.Second)
	_, err := d.Dispatch(context.Background(), nil, params())
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestDispatchMixedOutcomes(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interview_id") != "7" {
			t.Errorf("missing interview_id param, got query %q", r.URL.RawQuery)
		}
		io.WriteString(w, "audio analysed")
	}))
	defer okSrv.Close()

	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer errSrv.Close()

	slowSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer slowSrv.Close()

	d := newDispatcher(t, 300*time.Millisecond)
	targets := []Target{
		{Name: "audio", URL: okSrv.URL},
		{Name: "text", URL: errSrv.URL},
		{Name: "video", URL: slowSrv.URL},
	}

	start := time.Now()
	res, err := d.Dispatch(context.Background(), targets, params())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	// the slow target must not delay the join beyond its own timeout
	if elapsed := time.Since(start); elapsed > 1500*time.Millisecond {
		t.Errorf("join took %v, timeout did not bound the barrier", elapsed)
	}

	if len(res.Outcomes) != len(targets) {
		t.Fatalf("got %d outcomes for %d targets", len(res.Outcomes), len(targets))
	}

	audio, ok := res.ByName("audio")
	if !ok || audio.Status != StatusOk || audio.Payload != "audio analysed" {
		t.Errorf("audio outcome = %+v", audio)
	}
	text, ok := res.ByName("text")
	if !ok || text.Status != StatusFailed || !strings.Contains(text.Payload, "HTTP 500") {
		t.Errorf("text outcome = %+v", text)
	}
	video, ok := res.ByName("video")
	if !ok || video.Status != StatusFailed || video.Payload == "" {
		t.Errorf("video outcome = %+v", video)
	}

	if res.AllOk() {
		t.Error("AllOk true despite failures")
	}
}

func TestDispatchInvalidEndpointStillYieldsOutcome(t *testing.T) {
	d := newDispatcher(t, time.Second)
	targets := []Target{
		{Name: "audio", URL: "http://127.0.0.1:1"}, // nothing listens here
		{Name: "text", URL: "::not-a-url"},
	}
	res, err := d.Dispatch(context.Background(), targets, params())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(res.Outcomes))
	}
	for _, o := range res.Outcomes {
		if o.Status != StatusFailed || o.Payload == "" {
			t.Errorf("outcome %+v should be failed with a description", o)
		}
	}
}

func TestDispatchIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "stable body")
	}))
	defer srv.Close()

	d := newDispatcher(t, time.Second)
	targets := []Target{{Name: "audio", URL: srv.URL}}

	first, err := d.Dispatch(context.Background(), targets, params())
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Dispatch(context.Background(), targets, params())
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcomes[0] != second.Outcomes[0] {
		t.Errorf("outcomes differ across invocations: %+v vs %+v", first.Outcomes[0], second.Outcomes[0])
	}
}

func TestApplyAllOk(t *testing.T) {
	res := Result{Outcomes: []Outcome{
		{Target: "audio", Status: StatusOk, Payload: "a"},
		{Target: "text", Status: StatusOk, Payload: "t"},
		{Target: "video", Status: StatusOk, Payload: "v"},
	}}

	flags := newFakeFlags()
	d := newDispatcher(t, time.Second)
	d.Apply(context.Background(), 7, res, flags)

	for _, name := range []string{"audio_ok", "text_ok", "video_ok", "inference_ok"} {
		if !flags.set[name] {
			t.Errorf("flag %s not set", name)
		}
	}
}

func TestApplyPartialFailure(t *testing.T) {
	res := Result{Outcomes: []Outcome{
		{Target: "audio", Status: StatusOk, Payload: "a"},
		{Target: "text", Status: StatusFailed, Payload: "HTTP 500"},
		{Target: "video", Status: StatusFailed, Payload: "timeout"},
	}}

	flags := newFakeFlags()
	d := newDispatcher(t, time.Second)
	d.Apply(context.Background(), 7, res, flags)

	if !flags.set["audio_ok"] {
		t.Error("audio_ok not set")
	}
	for _, name := range []string{"text_ok", "video_ok", "inference_ok"} {
		if _, present := flags.set[name]; present {
			t.Errorf("flag %s should not have been touched", name)
		}
	}
}

func TestApplyStoreFailureDoesNotAlterResult(t *testing.T) {
	res := Result{Outcomes: []Outcome{{Target: "audio", Status: StatusOk, Payload: "body"}}}

	flags := newFakeFlags()
	flags.fail = true
	d := newDispatcher(t, time.Second)
	d.Apply(context.Background(), 7, res, flags)

	if got := res.Outcomes[0]; got.Status != StatusOk || got.Payload != "body" {
		t.Errorf("result mutated by failing store: %+v", got)
	}
}

func TestAllOkEmptyResult(t *testing.T) {
	if (Result{}).AllOk() {
		t.Error("empty result must not count as all ok")
	}
}
