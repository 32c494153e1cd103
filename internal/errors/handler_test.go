package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jzx17/genproxy/pkg/gemini"
	"github.com/jzx17/genproxy/pkg/prompt"
	"github.com/jzx17/genproxy/pkg/retry"
	"github.com/jzx17/genproxy/pkg/types"
)

func TestClassify(t *testing.T) {
	statusErr := &retry.UpstreamStatusError{StatusCode: 404, Body: "not found"}

	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		wantStatus int
	}{
		{"missing api key", gemini.ErrMissingAPIKey, KindConfiguration, 500},
		{"wrapped missing api key", fmt.Errorf("chat: %w", gemini.ErrMissingAPIKey), KindConfiguration, 500},
		{"invalid input", types.InvalidInputf("prompt is required"), KindValidation, 400},
		{"unknown mode", fmt.Errorf("%w %q", prompt.ErrUnknownMode, "poem"), KindValidation, 400},
		{"body too large", &http.MaxBytesError{Limit: 10}, KindValidation, 413},
		{"upstream status", statusErr, KindUpstreamTerminal, 404},
		{"api error in body", &gemini.APIError{Code: 403, Message: "denied"}, KindUpstreamTerminal, 403},
		{"api error wrapping status", &gemini.APIError{Code: 429, Message: "quota", Err: statusErr}, KindUpstreamTerminal, 429},
		{"api error odd code", &gemini.APIError{Code: 200, Message: "weird"}, KindUpstreamTerminal, 500},
		{"retries exhausted", &retry.RetriesExhaustedError{Attempts: 3, LastStatus: 503}, KindUpstreamTransient, 500},
		{"malformed", gemini.ErrMalformedResponse, KindMalformedResponse, 500},
		{"response too large", fmt.Errorf("%w: more than 10 bytes", gemini.ErrResponseTooLarge), KindMalformedResponse, 500},
		{"deadline", &retry.CanceledError{Attempts: 1, Err: context.DeadlineExceeded}, KindUpstreamTransient, 504},
		{"canceled", &retry.CanceledError{Attempts: 1, Err: context.Canceled}, KindCanceled, 503},
		{"unknown", errors.New("boom"), KindInternal, 500},
		{"already classified", MethodNotAllowed("GET"), KindMethodNotAllowed, 405},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil {
				t.Fatal("Classify() returned nil")
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", got.Status, tt.wantStatus)
			}
			if got.Message == "" {
				t.Error("Message is empty")
			}
			if tt.wantKind != KindMethodNotAllowed && !errors.Is(got, tt.err) {
				t.Errorf("classified error does not wrap %v", tt.err)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
	if got := Status(nil); got != http.StatusOK {
		t.Errorf("Status(nil) = %d, want 200", got)
	}
}

func TestClassify_Messages(t *testing.T) {
	if got := Classify(gemini.ErrMissingAPIKey).Message; got != gemini.ErrMissingAPIKey.Error() {
		t.Errorf("configuration message = %q", got)
	}
	if got := Classify(&gemini.APIError{Code: 400, Message: "API key not valid"}).Message; got != "Gemini API error: API key not valid" {
		t.Errorf("api error message = %q", got)
	}
	if got := Classify(errors.New("secret detail")).Message; got != "internal server error" {
		t.Errorf("internal message = %q, must not leak the cause", got)
	}
}

func TestConstructors(t *testing.T) {
	v := Validation("field %q is required", "prompt")
	if v.Status != http.StatusBadRequest || v.Kind != KindValidation {
		t.Errorf("Validation() = %+v", v)
	}
	if v.Error() != `field "prompt" is required` {
		t.Errorf("Validation().Error() = %q", v.Error())
	}

	m := MethodNotAllowed(http.MethodGet)
	if m.Status != http.StatusMethodNotAllowed {
		t.Errorf("MethodNotAllowed().Status = %d", m.Status)
	}

	cause := errors.New("key missing")
	c := Configuration(cause)
	if c.Status != http.StatusInternalServerError || !errors.Is(c, cause) {
		t.Errorf("Configuration() = %+v", c)
	}
	if c.Error() != "key missing" {
		t.Errorf("Configuration().Error() = %q", c.Error())
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInternal, "Internal"},
		{KindValidation, "Validation"},
		{KindConfiguration, "Configuration"},
		{KindUpstreamTerminal, "UpstreamTerminal"},
		{KindUpstreamTransient, "UpstreamTransient"},
		{KindMalformedResponse, "MalformedResponse"},
		{KindMethodNotAllowed, "MethodNotAllowed"},
		{KindCanceled, "Canceled"},
		{Kind(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
