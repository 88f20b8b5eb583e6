package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "payments", cfg.Kafka.Topic)
	assert.Equal(t, 10, cfg.Credits.StartingBalance)
	assert.Equal(t, 1, cfg.Credits.BasePlanID)
	assert.Equal(t, 1, cfg.Credits.TransformationFee)
	assert.Equal(t, 9, cfg.Credits.PageSize)
	assert.Equal(t, "imaginify", cfg.Cloudinary.Folder)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CREDITS_STARTING_BALANCE", "25")
	t.Setenv("KAFKA_RETRY_BACKOFF", "50")
	t.Setenv("APP_BASE_URL", "https://imaginify.example")
	t.Setenv("IMAGES_PAGE_SIZE", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 25, cfg.Credits.StartingBalance)
	assert.Equal(t, 50*time.Millisecond, cfg.Kafka.RetryBackoff)
	assert.Equal(t, "https://imaginify.example", cfg.App.BaseURL)
	assert.Equal(t, 9, cfg.Credits.PageSize, "invalid ints fall back to the default")
}
