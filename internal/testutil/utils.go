package testutil

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Epoch is a fixed start time for tests driving a fake clock.
var Epoch = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

func TestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}
