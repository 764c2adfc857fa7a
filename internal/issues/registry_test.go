package issues

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegisterDeduplicatesByKey(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2025, 11, 28, 10, 0, 0, 0, time.UTC)
	clock := base
	r.now = func() time.Time { return clock }

	r.Register("auth_error_401_abcd1234", "error", "auth_error_invalid_token")
	clock = base.Add(time.Minute)
	r.Register("auth_error_401_abcd1234", "error", "auth_error_invalid_token")

	notices := r.List()
	assert.Len(t, notices, 1)
	assert.Equal(t, 2, notices[0].Count)
	assert.Equal(t, base, notices[0].FirstSeen)
	assert.Equal(t, base.Add(time.Minute), notices[0].LastSeen)
}

func TestDistinctKeysStayDistinct(t *testing.T) {
	r := NewRegistry()
	r.Register("auth_error_401_abcd1234", "error", "auth_error_invalid_token")
	r.Register("auth_error_403_abcd1234", "error", "auth_error_insufficient_permissions")

	notices := r.List()
	assert.Len(t, notices, 2)
	assert.Equal(t, "auth_error_401_abcd1234", notices[0].Key)
	assert.Equal(t, "auth_error_403_abcd1234", notices[1].Key)
	assert.Equal(t, 2, r.Open())
}

func TestDismiss(t *testing.T) {
	r := NewRegistry()
	r.Register("k", "error", "tag")

	assert.True(t, r.Dismiss("k"))
	assert.False(t, r.Dismiss("k"))
	assert.Equal(t, 0, r.Open())
}
