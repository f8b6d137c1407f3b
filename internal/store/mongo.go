package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

var _ Store = (*MongoStore)(nil)

// Collection names used by MongoStore.
const (
	CollectionOrganizations = "organizations"
	CollectionUsers         = "users"
	CollectionOrgApps       = "orgApps"
)

// MongoStore reads tenants from MongoDB document collections.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoStore connects to uri and uses the named database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to reach MongoDB")
	}
	return &MongoStore{client: client, database: client.Database(database)}, nil
}

// GetAllOrgs implements Store.
func (s *MongoStore) GetAllOrgs(ctx context.Context, active bool) ([]Organization, error) {
	var orgs []Organization
	if err := s.findAll(ctx, CollectionOrganizations, bson.D{{Key: "isActive", Value: active}}, &orgs); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query organizations")
	}
	return orgs, nil
}

// GetOrg implements Store.
func (s *MongoStore) GetOrg(ctx context.Context, orgID string) (Organization, error) {
	var org Organization
	err := s.database.Collection(CollectionOrganizations).
		FindOne(ctx, bson.D{{Key: "_id", Value: orgID}}).
		Decode(&org)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Organization{}, orgNotFound(orgID)
	}
	if err != nil {
		return Organization{}, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query organization").
			WithDetail("org_id", orgID)
	}
	return org, nil
}

// GetUsers implements Store.
func (s *MongoStore) GetUsers(ctx context.Context, orgID string, active bool) ([]User, error) {
	filter := bson.D{
		{Key: "orgId", Value: orgID},
		{Key: "isActive", Value: active},
	}
	var users []User
	if err := s.findAll(ctx, CollectionUsers, filter, &users); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query users").
			WithDetail("org_id", orgID)
	}
	return users, nil
}

// GetOrgApps implements Store.
func (s *MongoStore) GetOrgApps(ctx context.Context, orgID string) ([]App, error) {
	filter := bson.D{
		{Key: "orgId", Value: orgID},
		{Key: "isActive", Value: true},
	}
	var apps []App
	if err := s.findAll(ctx, CollectionOrgApps, filter, &apps); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to query org apps").
			WithDetail("org_id", orgID)
	}
	return apps, nil
}

// EnableApps implements Store. App documents are keyed "{orgId}_{name}".
func (s *MongoStore) EnableApps(ctx context.Context, orgID string, apps []App) error {
	if len(apps) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(apps))
	for _, app := range apps {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: AppDocumentID(orgID, app.Name)}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{
				{Key: "orgId", Value: orgID},
				{Key: "name", Value: app.Name},
				{Key: "type", Value: app.Type},
				{Key: "isActive", Value: true},
			}}}).
			SetUpsert(true))
	}

	_, err := s.database.Collection(CollectionOrgApps).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCollaborator, "failed to enable apps").
			WithDetail("org_id", orgID)
	}
	return nil
}

// AppDocumentID is the orgApps document key for orgID's app name.
func AppDocumentID(orgID, name string) string {
	return orgID + "_" + name
}

func (s *MongoStore) findAll(ctx context.Context, collection string, filter bson.D, out interface{}) error {
	cursor, err := s.database.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
