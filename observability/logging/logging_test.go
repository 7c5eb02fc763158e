package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "escrowd", "test")
	logger.Warn("funded", "orderId", "42")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "funded", line["message"])
	require.Equal(t, "escrowd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "42", line["orderId"])
	require.Contains(t, line, "timestamp")
	require.NotContains(t, line, "msg")
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("signature", "5Kd3...").Value.String())
	require.Equal(t, "abc", MaskField("OrderID", "abc").Value.String())
	require.Equal(t, "", MaskField("signature", "").Value.String())
	require.Contains(t, RedactionAllowlist(), "orderid")
}

func TestMaskAttrsOrdersAndMasks(t *testing.T) {
	attrs := MaskAttrs(map[string]string{"status": "paid", "body": "{}", "amount": "5"})
	require.Len(t, attrs, 3)
	first := attrs[0].(slog.Attr)
	require.Equal(t, "amount", first.Key)
	body := attrs[1].(slog.Attr)
	require.Equal(t, RedactedValue, body.Value.String())
}

func TestSetupWithFileRotation(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "escrowd.log")
	logger, closer := SetupWithOptions("escrowd", "", Options{File: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Info("started")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}
