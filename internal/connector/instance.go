package connector

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/tenantsync/internal/store"
	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// Key identifies a connector instance.
type Key struct {
	OrgID  string
	Source Source
}

func (k Key) String() string {
	return string(k.Source) + "/" + k.OrgID
}

// Instance is a constructed connector for one (org, source). It is
// immutable once registered.
type Instance struct {
	ID          uuid.UUID
	OrgID       string
	Source      Source
	Credentials Credentials
	Processor   Processor
	Store       store.Store
	CreatedAt   time.Time

	run RunFunc
}

// Key returns the instance's slot key.
func (i *Instance) Key() Key {
	return Key{OrgID: i.OrgID, Source: i.Source}
}

// Run executes the connector's run loop until it finishes or ctx is done.
func (i *Instance) Run(ctx context.Context) error {
	if i.run == nil {
		return errors.New(errors.ErrorTypeInternal, "connector has no run loop").
			WithDetail("key", i.Key().String())
	}
	return i.run(ctx, i)
}
