package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "production info", cfg: DefaultConfig(), enabled: zapcore.InfoLevel},
		{name: "development debug", cfg: Config{Level: "debug", Development: true}, enabled: zapcore.DebugLevel},
		{name: "warn only", cfg: Config{Level: "warn"}, enabled: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestChildLoggers(t *testing.T) {
	logger := Nop().Named("sandbox").With(zap.String("component", "pool"))
	assert.NotNil(t, logger.Logger)
	assert.NotPanics(t, func() {
		logger.Info("started")
		logger.Close()
	})
	assert.NotNil(t, NewDefault())
}
