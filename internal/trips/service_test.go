package trips

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveDistance(t *testing.T) {
	actual := 7.4
	zero := 0.0

	assert.Equal(t, 7.4, resolveDistance(&actual, 5.0), "actual wins over estimate")
	assert.Equal(t, 5.0, resolveDistance(nil, 5.0), "falls back to estimate")
	assert.Equal(t, 5.0, resolveDistance(&zero, 5.0), "zero actual is ignored")
	assert.Equal(t, 5.0, resolveDistance(nil, 0), "floor when nothing usable")
}

func TestResolveDuration(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC)
	actual := 42
	zero := 0

	assert.Equal(t, 42, resolveDuration(&actual, now.Add(-10*time.Minute), now))
	assert.Equal(t, 10, resolveDuration(nil, now.Add(-10*time.Minute), now))
	assert.Equal(t, 11, resolveDuration(nil, now.Add(-10*time.Minute-time.Second), now), "partial minutes round up")
	assert.Equal(t, 1, resolveDuration(&zero, now, now), "never below one minute")
	assert.Equal(t, 1, resolveDuration(nil, now.Add(time.Minute), now), "clock skew clamps to one minute")
}
