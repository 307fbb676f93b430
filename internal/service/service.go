// Package service is the transaction coordinator. Every mutation opens one unit of work, reads
// what it needs, validates, writes, and commits or rolls back as a whole.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"udhaar/backend/internal/cache"
	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/logging"
	"udhaar/backend/internal/metrics"
	"udhaar/backend/internal/store"
	"udhaar/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	InvoicePrefix  string
	DefaultDueDays int
	Cache          cache.ReportCache
	Logger         logrus.FieldLogger
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

type Service struct {
	repo          store.Repository
	cache         cache.ReportCache
	log           logrus.FieldLogger
	metrics       *metrics.Metrics
	invoicePrefix string
	dueDays       int
	now           func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.InvoicePrefix == "" {
		opts.InvoicePrefix = "INV"
	}
	if opts.DefaultDueDays <= 0 {
		opts.DefaultDueDays = 7
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopReportCache{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:          repo,
		cache:         opts.Cache,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		invoicePrefix: opts.InvoicePrefix,
		dueDays:       opts.DefaultDueDays,
		now:           opts.Now,
	}
}

// tenant resolves the caller's tenant. Every read and write is scoped by it.
func (s *Service) tenant(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.TenantID == "" {
		return domain.Actor{}, domain.ErrMissingTenant
	}
	return actor, nil
}

func (s *Service) owner(ctx context.Context) (domain.Actor, error) {
	actor, err := s.tenant(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleOwner {
		return domain.Actor{}, domain.ErrOwnerRequired
	}
	return actor, nil
}

// runTx executes fn inside one unit of work. Lost stock races and store serialization failures
// come back wrapped in domain.ErrRetry; nothing is retried here.
func (s *Service) runTx(ctx context.Context, op string, fn func(tx store.Tx) error) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveOperation(op, outcome(err), time.Since(started))
	}()

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("%s: commit: %w", op, err))
	}
	return nil
}

func classify(err error) error {
	if errors.Is(err, store.ErrStockConflict) || errors.Is(err, store.ErrWriteConflict) {
		return fmt.Errorf("%w: %w", domain.ErrRetry, err)
	}
	return err
}

func outcome(err error) string {
	var ruleErr *domain.RuleError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrRetry):
		return metrics.OutcomeRetry
	case errors.Is(err, store.ErrUnavailable):
		return metrics.OutcomeUnavailable
	case errors.As(err, &ruleErr), errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrDuplicateKey):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeFailed
}

// fail logs a failed operation at a level matching its class and returns err unchanged.
func (s *Service) fail(actor domain.Actor, op string, entityID string, err error) error {
	switch outcome(err) {
	case metrics.OutcomeRejected, metrics.OutcomeRetry:
		s.log.WithFields(logrus.Fields{
			"tenant":  actor.TenantID,
			"op":      op,
			"entity":  entityID,
			"outcome": outcome(err),
		}).Info(err.Error())
	default:
		logging.LogError(s.log, "service", op, "unit of work failed", map[string]string{
			"tenant": actor.TenantID,
			"entity": entityID,
		}, err)
	}
	return err
}

// committed runs the post-commit side effects. Neither may fail the operation.
func (s *Service) committed(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	s.logAudit(ctx, actor, action, entityType, entityID, detail)
	if err := s.cache.Bump(ctx, actor.TenantID); err != nil {
		s.log.WithFields(logrus.Fields{"tenant": actor.TenantID, "action": action}).WithError(err).Warn("report cache bump failed")
	}
}

func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		TenantID:   actor.TenantID,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.log.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).WithError(err).Warn("failed to write audit log")
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, actor.TenantID, from, to, limit)
}
