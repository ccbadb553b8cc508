package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_FieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	log := FromLogrus(newLogrus("debug", "json", &buf))

	log.Info("transaction created", Field{Key: "operator", Value: "inwi"}, Field{Key: "amount", Value: 20})

	entry := decodeLine(t, &buf)
	assert.Equal(t, "transaction created", entry["msg"])
	assert.Equal(t, "inwi", entry["operator"])
	assert.Equal(t, float64(20), entry["amount"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogger_WithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := FromLogrus(newLogrus("info", "json", &buf))

	ctx := ContextWithRequestID(context.Background(), "req-42")
	log.WithContext(ctx).Warn("slow executor")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "warning", entry["level"])
}

func TestLogger_LevelFallback(t *testing.T) {
	log := newLogrus("not-a-level", "text", &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestLogger_WithFieldsIsImmutable(t *testing.T) {
	var buf bytes.Buffer
	base := FromLogrus(newLogrus("info", "json", &buf))
	_ = base.WithFields(Fields{"sim_card_id": "abc"})

	base.Info("plain")
	entry := decodeLine(t, &buf)
	_, present := entry["sim_card_id"]
	assert.False(t, present)
}
