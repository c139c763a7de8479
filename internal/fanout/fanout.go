// Package fanout dispatches one invocation's analysis requests to every
// configured sentiment service concurrently and joins the outcomes. A target
// failing, erroring or timing out never aborts its siblings: each request
// terminates in exactly one Outcome and the aggregate always holds one outcome
// per target.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoTargets is returned when Dispatch is invoked without any targets.
// An empty fan-out is a wiring bug, not an empty success.
var ErrNoTargets = errors.New("fanout: no analysis targets configured")

type Status string

const (
	StatusOk     Status = "ok"
	StatusFailed Status = "failed"
)

// Target is one analysis endpoint, built fresh per invocation from config.
type Target struct {
	Name string
	URL  string
}

// Outcome is the terminal result of one dispatched request. On StatusOk the
// payload is the raw response body; on StatusFailed it is a description of
// what went wrong. Never mutated after creation.
type Outcome struct {
	Target  string
	Status  Status
	Payload string
}

// Result aggregates one Outcome per dispatched target.
type Result struct {
	Outcomes []Outcome
}

func (r Result) AllOk() bool {
	for _, o := range r.Outcomes {
		if o.Status != StatusOk {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

// ByName associates an outcome back to its target. Callers must not rely on
// outcome position; completion order is scheduling-dependent.
func (r Result) ByName(name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Target == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// FlagStore is the slice of the record store the fan-out side effects need.
type FlagStore interface {
	UpdateFlag(ctx context.Context, interviewID int64, name string, value bool) error
}

// Dispatcher owns the HTTP client shared read-only by the concurrent
// requests. The client's timeout bounds every request, so the join always
// completes in bounded time without cross-target cancellation.
type Dispatcher struct {
	client *http.Client
	log    *logrus.Entry
}

func NewDispatcher(client *http.Client, log *logrus.Entry) (*Dispatcher, error) {
	if client == nil {
		return nil, errors.New("fanout: nil http client")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{client: client, log: log}, nil
}

// Dispatch POSTs to every target concurrently, carrying params as query
// parameters on each request, and returns once all requests reached a
// terminal outcome. Individual failures are captured as data and never
// surface as an error; the only error is the empty-target precondition.
func (d *Dispatcher) Dispatch(ctx context.Context, targets []Target, params url.Values) (Result, error) {
	if len(targets) == 0 {
		return Result{}, ErrNoTargets
	}

	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			outcomes[i] = d.fetch(ctx, t, params)
		}(i, t)
	}
	wg.Wait()

	return Result{Outcomes: outcomes}, nil
}

// fetch owns its Outcome; no shared state is written before the join.
func (d *Dispatcher) fetch(ctx context.Context, t Target, params url.Values) Outcome {
	u, err := url.Parse(t.URL)
	if err != nil {
		return Outcome{Target: t.Name, Status: StatusFailed, Payload: fmt.Sprintf("invalid endpoint: %v", err)}
	}
	q := u.Query()
	for key, vals := range params {
		for _, v := range vals {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return Outcome{Target: t.Name, Status: StatusFailed, Payload: fmt.Sprintf("build request: %v", err)}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Outcome{Target: t.Name, Status: StatusFailed, Payload: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Target: t.Name, Status: StatusFailed, Payload: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{Target: t.Name, Status: StatusFailed, Payload: describeHTTPError(resp.StatusCode, body)}
	}

	return Outcome{Target: t.Name, Status: StatusOk, Payload: string(body)}
}

func describeHTTPError(code int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Sprintf("HTTP %d", code)
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return fmt.Sprintf("HTTP %d: %s", code, msg)
}

// Apply drives the per-outcome side effects after the join: each successful
// target sets its "<name>_ok" flag, each failure is logged with its payload,
// and "inference_ok" is set only when every target succeeded. Flag updates
// are best effort; a store failure is logged and never alters the result.
func (d *Dispatcher) Apply(ctx context.Context, interviewID int64, res Result, flags FlagStore) {
	for _, o := range res.Outcomes {
		tlog := d.log.WithField("target", o.Target)
		if o.Status != StatusOk {
			tlog.WithField("reason", o.Payload).Error("analysis service failed")
			continue
		}
		name := o.Target + "_ok"
		if err := flags.UpdateFlag(ctx, interviewID, name, true); err != nil {
			tlog.WithField("flag", name).WithField("error", err.Error()).Warn("flag update failed")
		}
	}

	if res.AllOk() {
		if err := flags.UpdateFlag(ctx, interviewID, "inference_ok", true); err != nil {
			d.log.WithField("flag", "inference_ok").WithField("error", err.Error()).Warn("flag update failed")
		}
	}
}
