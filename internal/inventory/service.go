// Package inventory is the consistency engine: every mutation is authorized,
// runs as one unit of work and invalidates the affected read views after
// commit. Queries are served read-through from the cache.
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/apperr"
	"github.com/erazemk/stockledger/internal/cache"
	"github.com/erazemk/stockledger/internal/events"
	"github.com/erazemk/stockledger/internal/imaging"
	"github.com/erazemk/stockledger/internal/permission"
	"github.com/erazemk/stockledger/internal/store"
)

const tracerName = "github.com/erazemk/stockledger/internal/inventory"

// recentOrderLines is the number of order lines embedded in product detail.
const recentOrderLines = 10

// Options configure a Service. Zero fields get working defaults.
type Options struct {
	Cache     *cache.Layer
	Publisher events.Publisher
	Logger    *zap.Logger
	Images    imaging.Options
	// InviteTTL is the lifetime of invites created without an explicit TTL.
	InviteTTL time.Duration
	// InviteCost is the bcrypt cost of invite secrets.
	InviteCost int
}

// Service exposes the mutation and query entry points.
type Service struct {
	tx        *store.Transactor
	db        *sqlx.DB
	gate      *permission.Gate
	cache     *cache.Layer
	publisher events.Publisher
	log       *zap.Logger
	tracer    trace.Tracer
	opts      Options
	now       func() time.Time
}

// New creates a Service running units of work on tx.
func New(tx *store.Transactor, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.Nop{}, cache.Options{}, opts.Logger)
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.InviteTTL <= 0 {
		opts.InviteTTL = 7 * 24 * time.Hour
	}
	return &Service{
		tx:        tx,
		db:        tx.DB(),
		gate:      permission.NewGate(tx.DB()),
		cache:     opts.Cache,
		publisher: opts.Publisher,
		log:       opts.Logger,
		tracer:    otel.Tracer(tracerName),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "inventory."+op, trace.WithAttributes(attrs...))
}

// end records err on span and ends it.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}

func orgAttr(id string) attribute.KeyValue     { return attribute.String("organization.id", id) }
func productAttr(id string) attribute.KeyValue { return attribute.String("product.id", id) }

// validateIDs rejects malformed identifiers before any store access.
func validateIDs(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return apperr.E(apperr.InvalidIdentifier, "malformed identifier %q", id)
		}
	}
	return nil
}

// invalidate runs after a committed write. Cache failures are logged inside
// the cache layer and never fail the write.
func (s *Service) invalidate(ctx context.Context, orgID string, targets ...cache.Target) {
	bumped := s.cache.Invalidate(ctx, orgID, targets...)

	resources := make([]string, 0, len(targets))
	seen := make(map[cache.Resource]bool, len(targets))
	for _, t := range targets {
		if !seen[t.Resource] {
			seen[t.Resource] = true
			resources = append(resources, string(t.Resource))
		}
	}
	if len(bumped) < len(resources) {
		s.log.Warn("invalidation incomplete, relying on ttl",
			zap.String("organization_id", orgID),
			zap.Int("bumped", len(bumped)),
			zap.Int("resources", len(resources)),
		)
	}

	err := s.publisher.PublishInvalidation(ctx, events.InvalidationEvent{
		OrganizationID: orgID,
		Resources:      resources,
		At:             s.now(),
	})
	if err != nil {
		s.log.Warn("publishing invalidation event", zap.String("organization_id", orgID), zap.Error(err))
	}
}

func productTargets(ids ...string) []cache.Target {
	targets := []cache.Target{{Resource: cache.ProductList}}
	for _, id := range ids {
		targets = append(targets, cache.Target{Resource: cache.ProductDetail, Sub: id})
	}
	return targets
}
