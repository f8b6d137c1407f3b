package connector

import (
	"github.com/ajitpratap0/tenantsync/pkg/errors"
)

// Build failure kinds. Every Build error wraps exactly one of them.
var (
	ErrMissingOrgID          = errors.New(errors.ErrorTypeValidation, "orgId is required")
	ErrUnknownSource         = errors.New(errors.ErrorTypeValidation, "unknown connector source")
	ErrCredentialsNotFound   = errors.New(errors.ErrorTypeNotFound, "credentials not found")
	ErrIncompleteCredentials = errors.New(errors.ErrorTypeValidation, "incomplete credentials")
	ErrProcessorInitFailed   = errors.New(errors.ErrorTypeCollaborator, "processor initialization failed")
)
