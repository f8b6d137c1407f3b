// Package tenantsync is a multi-tenant connector lifecycle supervisor.
//
// It keeps content from external sources (OneDrive, SharePoint Online,
// Google Drive, Gmail) synchronized on behalf of many independent tenant
// organizations. The service reacts to lifecycle events delivered over
// Kafka, keeps exactly one live connector per (organization, source) pair
// and resumes sync work for every active organization after a restart.
//
// # Architecture
//
// Control flow at startup:
//
//  1. The messaging manager starts the shared producer, then the entity and
//     sync consumers. Consumer handlers are held back until every consumer
//     is running.
//  2. The HTTP server exposes /health and /metrics.
//  3. The resumer runs once as a supervised task, rebuilding connectors and
//     sync services for every active organization.
//
// Afterwards the event router is the only entry point for lifecycle
// transitions:
//
//	{source}.init    build and register the connector for (orgId, source)
//	{source}.start   spawn the registered connector's run loop
//	{source}.resync  same as start
//
// # Key Packages
//
//	internal/connector   - sources, credentials, slot and factory
//	internal/events      - event router and bus message handlers
//	internal/supervisor  - supervised sync tasks with tracked handles
//	internal/resume      - restart recovery
//	internal/messaging   - Kafka producer, consumers and lifecycle manager
//	internal/app         - wiring and start/stop order
//	pkg/errors           - structured error handling
//	pkg/logger           - structured logging
//	pkg/metrics          - Prometheus collectors
//
// # Configuration
//
// Configuration is read from an optional YAML file and TENANTSYNC_*
// environment variables, see pkg/config. A .env file in the working
// directory is loaded first.
//
// # Development
//
//	go test ./...
//	go run ./cmd/tenantsync serve --config tenantsync.yaml
package tenantsync
