package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/costshare/logging"
)

func TestNew(t *testing.T) {
	logger, err := logging.New("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = logging.New("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
}

func TestNew_Errors(t *testing.T) {
	_, err := logging.New("loud", "json")
	assert.Error(t, err)

	_, err = logging.New("info", "xml")
	assert.Error(t, err)
}
