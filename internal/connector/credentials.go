package connector

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// Credential field names shared by every connector source.
const (
	FieldTenantID        = "tenantId"
	FieldClientID        = "clientId"
	FieldClientSecret    = "clientSecret"
	FieldHasAdminConsent = "hasAdminConsent"
)

// BaseFields are mandatory for every connector source.
var BaseFields = []string{FieldTenantID, FieldClientID, FieldClientSecret}

// Credentials is a validated per-org secret bundle. It is never persisted.
type Credentials struct {
	TenantID        string
	ClientID        string
	ClientSecret    string
	HasAdminConsent bool
	// Extra holds source-specific fields, e.g. a SharePoint domain.
	Extra map[string]string
}

// Get returns a source-specific field.
func (c Credentials) Get(field string) string {
	return c.Extra[field]
}

// String hides the secret so credentials can be logged.
func (c Credentials) String() string {
	return "Credentials{tenantId=" + c.TenantID + ", clientId=" + c.ClientID +
		", clientSecret=***, hasAdminConsent=" + strconv.FormatBool(c.HasAdminConsent) + "}"
}

// ParseCredentials validates raw against the base fields plus extra and
// builds Credentials. Every field that is absent, not a string or blank is
// reported at once in the "missing_fields" detail.
func ParseCredentials(raw map[string]interface{}, extra ...string) (Credentials, error) {
	required := append(append([]string(nil), BaseFields...), extra...)

	values := make(map[string]string, len(required))
	var missing []string
	for _, field := range required {
		s, ok := raw[field].(string)
		s = strings.TrimSpace(s)
		if !ok || s == "" {
			missing = append(missing, field)
			continue
		}
		values[field] = s
	}
	if len(missing) > 0 {
		return Credentials{}, errors.Wrapf(ErrIncompleteCredentials, errors.ErrorTypeValidation,
			"missing %s", strings.Join(missing, ", ")).
			WithDetail("missing_fields", missing)
	}

	creds := Credentials{
		TenantID:        values[FieldTenantID],
		ClientID:        values[FieldClientID],
		ClientSecret:    values[FieldClientSecret],
		HasAdminConsent: parseBool(raw[FieldHasAdminConsent]),
	}
	if len(extra) > 0 {
		creds.Extra = make(map[string]string, len(extra))
		for _, field := range extra {
			creds.Extra[field] = values[field]
		}
	}
	return creds, nil
}

// parseBool accepts a JSON bool or its string form; anything else is false.
func parseBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	default:
		return false
	}
}
