package participant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/internal/broker"
	"checkout/internal/config"
	"checkout/internal/logger"
	"checkout/pkg/models"
)

type countingClaims struct {
	setNX int
}

func (c *countingClaims) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	c.setNX++
	return true, nil
}

func (c *countingClaims) Del(ctx context.Context, key string) error {
	return nil
}

func buildConfig(rules ...string) *config.Config {
	return &config.Config{
		Saga: config.SagaConfig{
			Participants: map[string]config.ParticipantConfig{
				"payment": {Rules: rules},
			},
		},
	}
}

func TestBuild_AppliesConfiguredRules(t *testing.T) {
	log := logger.NopLogger()
	bus := broker.NewMemoryBus(log)
	p := newFakeParticipant()

	h, err := Build(p, Setup{Name: "payment", Records: p, Topics: testTopics},
		buildConfig("payload.totalAmount > 0.0"), bus, log)
	require.NoError(t, err)

	out := h.Process(context.Background(), sagaEvent())

	assert.Equal(t, models.StatusRollbackPending, out.Status)
	assert.Empty(t, p.executed)
	assert.Equal(t, []string{"step-fail"}, bus.Topics())
}

func TestBuild_NoRulesForParticipant(t *testing.T) {
	log := logger.NopLogger()
	bus := broker.NewMemoryBus(log)
	p := newFakeParticipant()

	h, err := Build(p, Setup{Name: "inventory", Records: p, Topics: testTopics},
		buildConfig("false"), bus, log)
	require.NoError(t, err)

	out := h.Process(context.Background(), sagaEvent())

	assert.Equal(t, models.StatusSuccess, out.Status)
}

func TestBuild_InvalidRule(t *testing.T) {
	log := logger.NopLogger()
	p := newFakeParticipant()

	_, err := Build(p, Setup{Name: "payment", Records: p, Topics: testTopics},
		buildConfig("payload.totalAmount >"), broker.NewMemoryBus(log), log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rules for payment")
}

func TestBuild_ClaimsFollowConfig(t *testing.T) {
	log := logger.NopLogger()

	tests := []struct {
		name    string
		enabled bool
		want    int
	}{
		{name: "claims disabled", enabled: false, want: 0},
		{name: "claims enabled", enabled: true, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeParticipant()
			claims := &countingClaims{}
			cfg := buildConfig()
			cfg.Idempotency.ClaimEnabled = tt.enabled

			h, err := Build(p, Setup{Name: "payment", Records: p, Topics: testTopics, Claims: claims},
				cfg, broker.NewMemoryBus(log), log)
			require.NoError(t, err)

			out := h.Process(context.Background(), sagaEvent())

			assert.Equal(t, models.StatusSuccess, out.Status)
			assert.Equal(t, tt.want, claims.setNX)
		})
	}
}
