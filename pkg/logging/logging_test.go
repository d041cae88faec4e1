package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, logrus.InfoLevel, "json")

	logger.WithField("run_id", "r1").Info("pipeline.transition")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "pipeline.transition", line["msg"])
	require.Equal(t, "r1", line["run_id"])
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, logrus.WarnLevel, "text")

	logger.Info("hidden")
	require.Empty(t, buf.String())

	logger.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNop_DiscardsOutput(t *testing.T) {
	entry := Nop()
	require.NotPanics(t, func() { entry.Error("ignored") })
	require.Equal(t, logrus.PanicLevel, entry.Logger.GetLevel())
}
