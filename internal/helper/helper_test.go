package helper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(time.Second, 0, 0))
	assert.Equal(t, 2*time.Second, Backoff(time.Second, 1, 0))
	assert.Equal(t, 8*time.Second, Backoff(time.Second, 3, 0))

	// capped
	assert.Equal(t, 30*time.Second, Backoff(time.Second, 10, 30*time.Second))

	// degenerate inputs
	assert.Equal(t, time.Duration(0), Backoff(0, 5, 0))
	assert.Equal(t, time.Second, Backoff(time.Second, -3, 0))
}

func TestNormTF(t *testing.T) {
	assert.Equal(t, "1m", NormTF("candle1m"))
	assert.Equal(t, "1h", NormTF("60m"))
	assert.Equal(t, "1h", NormTF("1H"))
	assert.Equal(t, "15m", NormTF(" 15m "))
	assert.Equal(t, "4h", NormTF("4h"))
}

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 1.23, RoundDownToTick(1.2345, 0.01), 1e-9)
	assert.InDelta(t, 1.24, RoundUpToTick(1.2345, 0.01), 1e-9)

	// zero tick passes the price through
	assert.Equal(t, 1.2345, RoundDownToTick(1.2345, 0))
}
