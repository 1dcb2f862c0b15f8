package notify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFormatImpactFactor(t *testing.T) {
	assert.Equal(t, "N/A", FormatImpactFactor(nil))

	value := 82.9
	assert.Equal(t, "82.9", FormatImpactFactor(&value))

	zero := 0.0
	assert.Equal(t, "0.0", FormatImpactFactor(&zero), "an explicit zero is rendered, only absence is N/A")
}

func TestLogNotifierDeliver(t *testing.T) {
	notifier := NewLogNotifier(zerolog.Nop())

	assert.Equal(t, "log", notifier.Name())
	assert.NoError(t, notifier.Deliver(context.Background(), payloadFixture()))

	empty := payloadFixture()
	empty.Papers = nil
	assert.NoError(t, notifier.Deliver(context.Background(), empty))
}
