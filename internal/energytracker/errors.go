package energytracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Condition is the machine-readable tag for a classified API failure.
// Consumers key log lines, alerts, and rendered messages off it.
type Condition string

const (
	ConditionBadRequest       Condition = "bad_request"
	ConditionAuthFailed       Condition = "auth_failed"
	ConditionDeviceNotFound   Condition = "device_not_found"
	ConditionRateLimit        Condition = "rate_limit"
	ConditionRateLimitNoTime  Condition = "rate_limit_no_time"
	ConditionServerError      Condition = "server_error"
	ConditionUnknownError     Condition = "unknown_error"
	ConditionTimeout          Condition = "timeout"
	ConditionNetworkError     Condition = "network_error"
	ConditionConnectionFailed Condition = "connection_failed"
)

// APIError is the single failure type every client operation returns
// for a classified failure. Placeholders carry message parameters
// (e.g. "error", "retry_after"); the transport cause, when there is
// one, is reachable through errors.Unwrap.
type APIError struct {
	Condition    Condition
	Placeholders map[string]string

	cause error
}

func (e *APIError) Error() string {
	if len(e.Placeholders) == 0 {
		return fmt.Sprintf("energy tracker api: %s", e.Condition)
	}
	keys := make([]string, 0, len(e.Placeholders))
	for k := range e.Placeholders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Placeholders[k])
	}
	return fmt.Sprintf("energy tracker api: %s (%s)", e.Condition, strings.Join(parts, ", "))
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// RetryAfterSeconds returns the server's retry hint, if the failure
// carried one.
func (e *APIError) RetryAfterSeconds() (int, bool) {
	raw, ok := e.Placeholders["retry_after"]
	if !ok {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return seconds, true
}

func newAPIError(condition Condition, placeholders map[string]string) *APIError {
	return &APIError{Condition: condition, Placeholders: placeholders}
}

func wrapAPIError(condition Condition, cause error) *APIError {
	return &APIError{Condition: condition, cause: cause}
}

// classifyTransport maps a failure with no HTTP status onto a
// condition. A cancelled context is passed through untouched so
// callers can tell an aborted cycle from a broken network.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return wrapAPIError(ConditionTimeout, err)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return wrapAPIError(ConditionNetworkError, err)
	}
	return wrapAPIError(ConditionConnectionFailed, err)
}

// parseErrorMessage extracts the server's "message" field from an
// error body. Strings come back verbatim; arrays are joined with "; "
// dropping empty entries. Anything else, including an unparseable
// body, yields no message.
func parseErrorMessage(body []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Message) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(payload.Message, &single); err == nil {
		return single
	}

	var many []*string
	if err := json.Unmarshal(payload.Message, &many); err == nil {
		parts := make([]string, 0, len(many))
		for _, m := range many {
			if m != nil && *m != "" {
				parts = append(parts, *m)
			}
		}
		return strings.Join(parts, "; ")
	}

	return ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var terr interface{ Timeout() bool }
	return errors.As(err, &terr) && terr.Timeout()
}
