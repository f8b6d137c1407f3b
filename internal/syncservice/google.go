package syncservice

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/tenantsync/internal/account"
	"github.com/ajitpratap0/tenantsync/internal/configstore"
	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
	jsonpool "github.com/ajitpratap0/tenantsync/pkg/json"
)

// GoogleConfigName is the config node holding an org's Google Workspace
// credentials: /services/connectors/google/config/{orgId}. Per-user
// refresh tokens live below it at .../{orgId}/users/{userId}.
const GoogleConfigName = "google"

// Credential fields read by the Google fetcher.
const (
	FieldServiceAccountKey = "serviceAccountKey"
	FieldRefreshToken      = "refreshToken"
)

// Record kinds emitted by the Google fetcher.
const (
	KindFile    = "file"
	KindMessage = "message"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

const pageSize = 100

// GoogleOptions overrides Google endpoints, e.g. in tests.
type GoogleOptions struct {
	TokenURL      string
	DriveEndpoint string
	GmailEndpoint string
	HTTPClient    *http.Client
}

// GoogleFetcher reads Drive files and Gmail messages. Admin mode
// impersonates each user through a service account with domain-wide
// delegation; user mode uses the user's own refresh token.
type GoogleFetcher struct {
	configs configstore.Service
	opts    GoogleOptions
	logger  *zap.Logger
	now     func() time.Time
}

// NewGoogleFetcher creates a fetcher reading credentials from configs.
func NewGoogleFetcher(configs configstore.Service, opts GoogleOptions, log *zap.Logger) *GoogleFetcher {
	if opts.TokenURL == "" {
		opts.TokenURL = googleTokenURL
	}
	return &GoogleFetcher{
		configs: configs,
		opts:    opts,
		logger:  log.With(zap.String("component", "google_fetcher")),
		now:     time.Now,
	}
}

type serviceAccountKey struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// FetchUser implements Fetcher.
func (f *GoogleFetcher) FetchUser(ctx context.Context, req UserRequest, emit func(connector.Record) error) error {
	var scope string
	switch req.Source {
	case connector.SourceDrive:
		scope = drive.DriveReadonlyScope
	case connector.SourceGmail:
		scope = gmail.GmailReadonlyScope
	default:
		return errors.Wrapf(connector.ErrUnknownSource, errors.ErrorTypeValidation, "google fetcher cannot sync %s", req.Source)
	}

	if f.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.opts.HTTPClient)
	}
	ts, err := f.tokenSource(ctx, req, scope)
	if err != nil {
		return err
	}
	client := oauth2.NewClient(ctx, ts)

	if req.Source == connector.SourceDrive {
		return f.fetchDrive(ctx, client, req, emit)
	}
	return f.fetchGmail(ctx, client, req, emit)
}

func (f *GoogleFetcher) tokenSource(ctx context.Context, req UserRequest, scope string) (oauth2.TokenSource, error) {
	orgPath := configstore.ConnectorConfigPath(GoogleConfigName, req.OrgID)
	node, err := f.configs.GetConfig(ctx, orgPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to read google credentials").
			WithDetail("path", orgPath)
	}

	if req.Mode == account.ModeAdmin {
		raw, _ := node[FieldServiceAccountKey].(string)
		var key serviceAccountKey
		if err := jsonpool.Unmarshal([]byte(raw), &key); err != nil || key.ClientEmail == "" || key.PrivateKey == "" {
			return nil, errors.Wrap(connector.ErrIncompleteCredentials, errors.ErrorTypeValidation, "invalid service account key").
				WithDetail("org_id", req.OrgID)
		}
		tokenURL := key.TokenURI
		if tokenURL == "" {
			tokenURL = f.opts.TokenURL
		}
		cfg := &jwt.Config{
			Email:        key.ClientEmail,
			PrivateKey:   []byte(key.PrivateKey),
			PrivateKeyID: key.PrivateKeyID,
			Subject:      req.User.Email,
			Scopes:       []string{scope},
			TokenURL:     tokenURL,
		}
		return cfg.TokenSource(ctx), nil
	}

	clientID, _ := node[connector.FieldClientID].(string)
	clientSecret, _ := node[connector.FieldClientSecret].(string)
	userPath := configstore.ConnectorConfigPath(GoogleConfigName, req.OrgID+"/users/"+req.User.ID)
	userNode, err := f.configs.GetConfig(ctx, userPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to read user grant").
			WithDetail("path", userPath)
	}
	refreshToken, _ := userNode[FieldRefreshToken].(string)
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, errors.Wrap(connector.ErrIncompleteCredentials, errors.ErrorTypeValidation, "incomplete user grant").
			WithDetail("org_id", req.OrgID).
			WithDetail("user_id", req.User.ID)
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: f.opts.TokenURL},
		Scopes:       []string{scope},
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), nil
}

func (f *GoogleFetcher) clientOptions(client *http.Client, endpoint string) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func (f *GoogleFetcher) fetchDrive(ctx context.Context, client *http.Client, req UserRequest, emit func(connector.Record) error) error {
	svc, err := drive.NewService(ctx, f.clientOptions(client, f.opts.DriveEndpoint)...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create drive client")
	}

	count := 0
	err = svc.Files.List().
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, trashed)").
		PageSize(pageSize).
		Pages(ctx, func(list *drive.FileList) error {
			for _, file := range list.Files {
				count++
				rec := connector.Record{
					ID:     file.Id,
					Kind:   KindFile,
					OrgID:  req.OrgID,
					Source: req.Source,
					Data: map[string]interface{}{
						"name":         file.Name,
						"mimeType":     file.MimeType,
						"modifiedTime": file.ModifiedTime,
						"trashed":      file.Trashed,
						"ownerEmail":   req.User.Email,
					},
					ObservedAt: f.now(),
				}
				if err := emit(rec); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to list drive files").
			WithDetail("user_id", req.User.ID)
	}
	f.logger.Debug("drive files fetched", zap.String("org_id", req.OrgID), zap.String("user_id", req.User.ID), zap.Int("files", count))
	return nil
}

func (f *GoogleFetcher) fetchGmail(ctx context.Context, client *http.Client, req UserRequest, emit func(connector.Record) error) error {
	svc, err := gmail.NewService(ctx, f.clientOptions(client, f.opts.GmailEndpoint)...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create gmail client")
	}

	count := 0
	err = svc.Users.Messages.List("me").
		MaxResults(pageSize).
		Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
			for _, msg := range resp.Messages {
				count++
				rec := connector.Record{
					ID:     msg.Id,
					Kind:   KindMessage,
					OrgID:  req.OrgID,
					Source: req.Source,
					Data: map[string]interface{}{
						"threadId":   msg.ThreadId,
						"ownerEmail": req.User.Email,
					},
					ObservedAt: f.now(),
				}
				if err := emit(rec); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to list gmail messages").
			WithDetail("user_id", req.User.ID)
	}
	f.logger.Debug("gmail messages fetched", zap.String("org_id", req.OrgID), zap.String("user_id", req.User.ID), zap.Int("messages", count))
	return nil
}
