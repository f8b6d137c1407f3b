package microsoft

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// OneDrive returns the OneDrive for Business connector definition.
func OneDrive(opts Options, log *zap.Logger) connector.Definition {
	r := &runner{
		opts:     opts,
		discover: discoverUserDrives,
		logger:   log.With(zap.String("component", "onedrive_connector")),
	}
	return connector.Definition{
		Source:      connector.SourceOneDrive,
		DisplayName: "OneDrive",
		ConfigName:  "onedrive",
		Run:         r.run,
	}
}

// discoverUserDrives lists the tenant's directory users and keeps those
// that are active members of the org, matched by email.
func discoverUserDrives(ctx context.Context, s *syncer) ([]drive, error) {
	members, err := s.inst.Store.GetUsers(ctx, s.inst.OrgID, true)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to list active users").
			WithDetail("org_id", s.inst.OrgID)
	}
	active := make(map[string]struct{}, len(members))
	for _, m := range members {
		active[strings.ToLower(m.Email)] = struct{}{}
	}

	var drives []drive
	_, err = s.graph.Pages(ctx, "/users?$select=id,displayName,mail,userPrincipalName", func(items []map[string]interface{}) error {
		for _, user := range items {
			id, _ := user["id"].(string)
			if id == "" || !isActive(user, active) {
				continue
			}
			if err := s.emit(ctx, KindUser, user); err != nil {
				return err
			}
			drives = append(drives, drive{
				path:  "/users/" + url.PathEscape(id) + "/drive/root/delta",
				owner: id,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("users discovered",
		zap.Int("active_members", len(members)),
		zap.Int("drives", len(drives)))
	return drives, nil
}

func isActive(user map[string]interface{}, active map[string]struct{}) bool {
	for _, field := range []string{"mail", "userPrincipalName"} {
		if email, ok := user[field].(string); ok && email != "" {
			if _, found := active[strings.ToLower(email)]; found {
				return true
			}
		}
	}
	return false
}
