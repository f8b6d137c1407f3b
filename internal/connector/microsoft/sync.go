package microsoft

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tenantsync/internal/connector"
	"github.com/ajitpratap0/tenantsync/pkg/logger"
)

// Record kinds emitted by the Graph connectors.
const (
	KindUser             = "user"
	KindSite             = "site"
	KindDriveItem        = "driveItem"
	KindDriveItemDeleted = "driveItem.deleted"
)

// drive is one delta walk target: the delta endpoint of a drive root and the
// user or site owning it.
type drive struct {
	path  string
	owner string
}

// discoverFunc lists the drives to walk, emitting the owners it finds.
type discoverFunc func(ctx context.Context, s *syncer) ([]drive, error)

// syncer walks the drives of one connector instance. Delta links survive
// between passes so incremental passes only see changes.
type syncer struct {
	inst     *connector.Instance
	graph    *GraphClient
	opts     Options
	discover discoverFunc
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	deltaLinks map[string]string
}

func newSyncer(inst *connector.Instance, graph *GraphClient, opts Options, discover discoverFunc, log *zap.Logger) *syncer {
	return &syncer{
		inst:       inst,
		graph:      graph,
		opts:       opts,
		discover:   discover,
		logger:     log,
		now:        time.Now,
		deltaLinks: make(map[string]string),
	}
}

// pass discovers drives and walks each one. A failing drive is logged and
// does not stop the others; every failure is returned combined.
func (s *syncer) pass(ctx context.Context) error {
	drives, err := s.discover(ctx, s)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for _, d := range drives {
		d := d
		g.Go(func() error {
			if err := s.walk(ctx, d); err != nil {
				s.logger.Warn("drive sync failed",
					zap.String("owner", d.owner),
					zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("sync pass completed",
		zap.Int("drives", len(drives)),
		zap.Int("failed", len(multierr.Errors(errs))))
	return errs
}

// walk follows a drive's delta feed from its last delta link, emitting one
// record per item.
func (s *syncer) walk(ctx context.Context, d drive) error {
	start := s.deltaLink(d.path)
	if start == "" {
		start = d.path
	}

	delta, err := s.graph.Pages(ctx, start, func(items []map[string]interface{}) error {
		for _, item := range items {
			kind := KindDriveItem
			if _, deleted := item["deleted"]; deleted {
				kind = KindDriveItemDeleted
			}
			item["ownerId"] = d.owner
			if err := s.emit(ctx, kind, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if delta != "" {
		s.setDeltaLink(d.path, delta)
	}
	return nil
}

func (s *syncer) emit(ctx context.Context, kind string, item map[string]interface{}) error {
	id, _ := item["id"].(string)
	return s.inst.Processor.Emit(ctx, connector.Record{
		ID:         id,
		Kind:       kind,
		OrgID:      s.inst.OrgID,
		Source:     s.inst.Source,
		Data:       item,
		ObservedAt: s.now(),
	})
}

func (s *syncer) deltaLink(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deltaLinks[path]
}

func (s *syncer) setDeltaLink(path, link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltaLinks[path] = link
}

// runner is the RunFunc shared by the Graph connectors: one full pass, then
// incremental passes every PollInterval until ctx is done.
type runner struct {
	opts     Options
	discover discoverFunc
	logger   *zap.Logger
}

func (r *runner) run(ctx context.Context, inst *connector.Instance) error {
	log := logger.WithContext(logger.WithOrg(ctx, inst.OrgID, string(inst.Source)), r.logger).
		With(zap.String("instance_id", inst.ID.String()))
	if !inst.Credentials.HasAdminConsent {
		log.Warn("admin consent not recorded; application permissions may be rejected")
	}

	s := newSyncer(inst, NewGraphClient(ctx, inst.Credentials, r.opts, log), r.opts, r.discover, log)

	log.Info("starting full sync")
	if err := s.pass(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if r.opts.PollInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("sync stopped")
			return nil
		case <-ticker.C:
			if err := s.pass(ctx); err != nil && ctx.Err() == nil {
				log.Warn("incremental sync failed", zap.Error(err))
			}
		}
	}
}
