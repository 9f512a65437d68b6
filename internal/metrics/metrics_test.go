package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Invocations.WithLabelValues("ok").Inc()
	m.Pushes.WithLabelValues(OutcomeDelivered).Add(2)
	m.Recipients.Observe(2)
	m.TokenExchange.WithLabelValues("ok").Observe(0.1)
	m.PushLatency.Observe(0.05)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pushes.WithLabelValues(OutcomeDelivered)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"wallpaper_notifications_total",
		"wallpaper_pushes_total",
		"wallpaper_notification_recipients",
		"oauth_token_exchange_seconds",
		"wallpaper_push_seconds",
	}, names)
}

func TestNew_PanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
