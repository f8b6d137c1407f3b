package microsoft

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/connector"
)

// FieldSharePointDomain is the SharePoint-specific credential field.
const FieldSharePointDomain = "sharepointDomain"

// SharePoint returns the SharePoint Online connector definition.
func SharePoint(opts Options, log *zap.Logger) connector.Definition {
	r := &runner{
		opts:     opts,
		discover: discoverSiteDrives,
		logger:   log.With(zap.String("component", "sharepoint_connector")),
	}
	return connector.Definition{
		Source:         connector.SourceSharePoint,
		DisplayName:    "SharePoint Online",
		ConfigName:     "sharepoint",
		RequiredFields: []string{FieldSharePointDomain},
		Run:            r.run,
	}
}

// Definitions returns every Graph connector definition.
func Definitions(opts Options, log *zap.Logger) []connector.Definition {
	return []connector.Definition{OneDrive(opts, log), SharePoint(opts, log)}
}

// discoverSiteDrives lists the sites hosted on the org's SharePoint domain.
func discoverSiteDrives(ctx context.Context, s *syncer) ([]drive, error) {
	domain := strings.ToLower(s.inst.Credentials.Get(FieldSharePointDomain))

	var drives []drive
	_, err := s.graph.Pages(ctx, "/sites?search=*", func(items []map[string]interface{}) error {
		for _, site := range items {
			id, _ := site["id"].(string)
			if id == "" || !onDomain(site, domain) {
				continue
			}
			if err := s.emit(ctx, KindSite, site); err != nil {
				return err
			}
			drives = append(drives, drive{
				path:  "/sites/" + url.PathEscape(id) + "/drive/root/delta",
				owner: id,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sites discovered", zap.String("domain", domain), zap.Int("drives", len(drives)))
	return drives, nil
}

// onDomain matches a site's webUrl host against the configured domain,
// which may be given as a bare host or a URL.
func onDomain(site map[string]interface{}, domain string) bool {
	webURL, _ := site["webUrl"].(string)
	u, err := url.Parse(webURL)
	if err != nil || u.Host == "" {
		return false
	}
	want := domain
	if parsed, err := url.Parse(domain); err == nil && parsed.Host != "" {
		want = parsed.Host
	}
	return strings.EqualFold(u.Host, strings.TrimSuffix(want, "/"))
}
