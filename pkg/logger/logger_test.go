package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithContextAddsTenantFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := WithOrg(context.Background(), "org-1", "onedrive")
	ctx = WithEvent(ctx, "onedrive.init")
	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "org-1", fields["org_id"])
	assert.Equal(t, "onedrive", fields["source"])
	assert.Equal(t, "onedrive.init", fields["event_type"])
}

func TestWithOrgSkipsEmptyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	WithContext(WithOrg(context.Background(), "", ""), zap.New(core)).Info("bare")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}
