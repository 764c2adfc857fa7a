package energytracker

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

func TestClassifyTransport(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		condition Condition
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, condition: ConditionTimeout},
		{name: "wrapped deadline", err: &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded}, condition: ConditionTimeout},
		{name: "connection refused", err: &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, condition: ConditionNetworkError},
		{name: "unexpected error", err: errors.New("boom"), condition: ConditionConnectionFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classified := classifyTransport(tc.err)

			var apiErr *APIError
			if !errors.As(classified, &apiErr) {
				t.Fatalf("expected *APIError, got %T", classified)
			}
			if apiErr.Condition != tc.condition {
				t.Fatalf("expected %s, got %s", tc.condition, apiErr.Condition)
			}
			if !errors.Is(classified, tc.err) {
				t.Fatalf("cause not preserved for %v", tc.err)
			}
		})
	}
}

func TestClassifyTransportPassesCancellationThrough(t *testing.T) {
	cancelErr := &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}

	classified := classifyTransport(cancelErr)

	var apiErr *APIError
	if errors.As(classified, &apiErr) {
		t.Fatalf("cancellation should not be classified: %v", classified)
	}
	if !errors.Is(classified, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", classified)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := newAPIError(ConditionBadRequest, map[string]string{"error": "Invalid input"})
	if err.Error() != "energy tracker api: bad_request (error=Invalid input)" {
		t.Fatalf("unexpected message: %s", err.Error())
	}

	bare := newAPIError(ConditionAuthFailed, nil)
	if bare.Error() != "energy tracker api: auth_failed" {
		t.Fatalf("unexpected message: %s", bare.Error())
	}
}
