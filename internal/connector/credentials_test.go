package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, SourceSharePoint, Normalize("SharePoint Online"))
	assert.Equal(t, SourceOneDrive, Normalize(" OneDrive "))
	assert.Equal(t, SourceOutlookCalendar, Normalize("Outlook Calendar"))
	assert.True(t, Normalize("Calendar").IsCalendar())
	assert.False(t, SourceGmail.IsCalendar())
}

func TestParseCredentials(t *testing.T) {
	creds, err := ParseCredentials(map[string]interface{}{
		"tenantId":         "t",
		"clientId":         "c",
		"clientSecret":     "top-secret",
		"hasAdminConsent":  "true",
		"sharepointDomain": "contoso.sharepoint.com",
	}, "sharepointDomain")
	require.NoError(t, err)

	assert.Equal(t, "t", creds.TenantID)
	assert.Equal(t, "c", creds.ClientID)
	assert.Equal(t, "top-secret", creds.ClientSecret)
	assert.True(t, creds.HasAdminConsent)
	assert.Equal(t, "contoso.sharepoint.com", creds.Get("sharepointDomain"))
	assert.NotContains(t, creds.String(), "top-secret")
	assert.Contains(t, creds.String(), "clientSecret=***")
}

func TestParseCredentialsAdminConsentDefaultsFalse(t *testing.T) {
	creds, err := ParseCredentials(map[string]interface{}{
		"tenantId": "t", "clientId": "c", "clientSecret": "s",
	})
	require.NoError(t, err)
	assert.False(t, creds.HasAdminConsent)
}

func TestParseCredentialsReportsEveryMissingField(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]interface{}
		extra   []string
		missing []string
	}{
		{
			name:    "empty client id",
			raw:     map[string]interface{}{"tenantId": "t", "clientId": "", "clientSecret": "s"},
			missing: []string{"clientId"},
		},
		{
			name:    "absent and blank",
			raw:     map[string]interface{}{"clientId": "c", "clientSecret": "   "},
			missing: []string{"tenantId", "clientSecret"},
		},
		{
			name:    "non-string value",
			raw:     map[string]interface{}{"tenantId": 42, "clientId": "c", "clientSecret": "s"},
			missing: []string{"tenantId"},
		},
		{
			name:    "source specific field",
			raw:     map[string]interface{}{"tenantId": "t", "clientId": "c", "clientSecret": "s"},
			extra:   []string{"sharepointDomain"},
			missing: []string{"sharepointDomain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCredentials(tt.raw, tt.extra...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIncompleteCredentials)

			missing, ok := errors.Detail(err, "missing_fields")
			require.True(t, ok)
			assert.Equal(t, tt.missing, missing)
		})
	}
}
