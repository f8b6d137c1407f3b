package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	msg := NewMessage("onedrive.init", map[string]interface{}{"orgId": "org-1"})
	assert.NotZero(t, msg.Timestamp)

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"eventType":"onedrive.init"`)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg.EventType, decoded.EventType)
	assert.Equal(t, "org-1", decoded.Payload["orgId"])
	assert.Equal(t, msg.Timestamp, decoded.Timestamp)
}

func TestDecodeRejectsMissingEventType(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{"orgId":"org-1"}}`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestDecodeDefaultsPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"eventType":"sharepointonline.start"}`))
	require.NoError(t, err)
	assert.NotNil(t, msg.Payload)
	assert.Empty(t, msg.Payload)
}
