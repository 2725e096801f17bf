package app

import (
	"context"
	"testing"

	"catalogsync/internal/config"
	"catalogsync/internal/logger"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 4))

	l := NewLimiter(5, 0)
	assert.Equal(t, rate.Limit(5), l.Limit())
	assert.Equal(t, 1, l.Burst())
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	_, err := NewEngine(context.Background(), &config.Config{}, logger.Nop(), nil)
	assert.ErrorContains(t, err, "MERCHANT_ID is required")
}
