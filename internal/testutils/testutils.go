// Package testutils provides fakes for the outbound call path
package testutils

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrScriptExhausted is returned by ScriptedDoer when it runs out of steps
var ErrScriptExhausted = errors.New("scripted doer: no more steps")

// Step is one scripted reply: either a status with body, or an error
type Step struct {
	Status int
	Body   string
	Err    error
}

// Status returns a step answering with code and body
func Status(code int, body string) Step {
	return Step{Status: code, Body: body}
}

// Fail returns a step failing at the transport level
func Fail(err error) Step {
	return Step{Err: err}
}

// ScriptedDoer replays a fixed sequence of replies and records every request.
// The last step repeats once the script is exhausted when Repeat is set.
type ScriptedDoer struct {
	Steps  []Step
	Repeat bool

	mu       sync.Mutex
	calls    int
	requests []*http.Request
	bodies   []string
}

// NewScriptedDoer creates a doer replaying steps in order
func NewScriptedDoer(steps ...Step) *ScriptedDoer {
	return &ScriptedDoer{Steps: steps}
}

// Always creates a doer that answers every call with step
func Always(step Step) *ScriptedDoer {
	return &ScriptedDoer{Steps: []Step{step}, Repeat: true}
}

// Do implements retry.Doer
func (d *ScriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		req.Body.Close()
		body = string(data)
	}
	d.requests = append(d.requests, req)
	d.bodies = append(d.bodies, body)

	idx := d.calls
	d.calls++
	if idx >= len(d.Steps) {
		if !d.Repeat || len(d.Steps) == 0 {
			return nil, ErrScriptExhausted
		}
		idx = len(d.Steps) - 1
	}

	step := d.Steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	return &http.Response{
		StatusCode: step.Status,
		Status:     http.StatusText(step.Status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(step.Body)),
		Request:    req,
	}, nil
}

// Calls returns how many requests were made
func (d *ScriptedDoer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Requests returns the recorded requests
func (d *ScriptedDoer) Requests() []*http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*http.Request(nil), d.requests...)
}

// Bodies returns the recorded request bodies
func (d *ScriptedDoer) Bodies() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.bodies...)
}
