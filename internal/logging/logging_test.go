package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("loud")
	require.Equal(t, logrus.InfoLevel, logger.GetLevel())
	require.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
}

func TestLogErrorWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("error", &buf)

	LogError(logger, "service", "CreateSale", "insert sale", map[string]string{"tenant": "t1"}, errors.New("boom"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "boom", line["msg"])
	require.Equal(t, "service", line["module"])
	require.Equal(t, "CreateSale", line["funcName"])
	require.Equal(t, "insert sale", line["context"])
	require.NotNil(t, line["data"])
}
