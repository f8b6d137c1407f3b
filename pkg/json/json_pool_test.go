package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	EventType string                 `json:"eventType"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp int64                  `json:"timestamp"`
}

func TestMarshalIsCompactAndUnescaped(t *testing.T) {
	data, err := Marshal(envelope{
		EventType: "onedrive.init",
		Payload:   map[string]interface{}{"orgId": "org<1>"},
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"eventType":"onedrive.init","payload":{"orgId":"org<1>"},"timestamp":1700000000000}`, string(data))
}

func TestMarshalResultSurvivesBufferReuse(t *testing.T) {
	first, err := Marshal(map[string]string{"a": "1"})
	require.NoError(t, err)
	_, err = Marshal(map[string]string{"b": "2"})
	require.NoError(t, err)

	assert.Equal(t, `{"a":"1"}`, string(first))
}

func TestUnmarshalPayload(t *testing.T) {
	var env envelope
	require.NoError(t, Unmarshal([]byte(`{"eventType":"sharepointonline.start","payload":{"orgId":"org-2"},"timestamp":1}`), &env))

	assert.Equal(t, "sharepointonline.start", env.EventType)
	assert.Equal(t, "org-2", env.Payload["orgId"])
	assert.False(t, Valid([]byte(`{"eventType":`)))
}

func TestMarshalToWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MarshalToWriter(&buf, map[string]string{"status": "healthy"}))
	assert.Equal(t, "{\"status\":\"healthy\"}\n", buf.String())
}

func BenchmarkMarshalEnvelope(b *testing.B) {
	env := envelope{EventType: "onedrive.start", Payload: map[string]interface{}{"orgId": "org-1"}, Timestamp: 1}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Marshal(env); err != nil {
			b.Fatal(err)
		}
	}
}
