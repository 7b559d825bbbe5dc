package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"pdvsystem/backend/internal/cache"
	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

type Options struct {
	StatusCacheTTL time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	// Location decides calendar days for history and reports.
	Location *time.Location
	Logger   zerolog.Logger
}

type Service struct {
	repo        store.Repository
	statusCache cache.StatusCache
	statusTTL   time.Duration
	guard       *Guard
	loc         *time.Location
	log         zerolog.Logger
	now         func() time.Time
}

func New(repo store.Repository, statusCache cache.StatusCache, opts Options) *Service {
	if statusCache == nil {
		statusCache = cache.NoopStatusCache{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	logger := opts.Logger.With().Str("component", "service").Logger()

	return &Service{
		repo:        repo,
		statusCache: statusCache,
		statusTTL:   opts.StatusCacheTTL,
		guard:       NewGuard(repo, opts.MaxAttempts, opts.RetryBackoff, logger),
		loc:         opts.Location,
		log:         logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// audit records a committed state change in the structured log.
func (s *Service) audit(ctx context.Context, action string, entityType string, entityID string) *zerolog.Event {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	return s.log.Info().
		Str("action", action).
		Str("entity_type", entityType).
		Str("entity_id", entityID).
		Str("actor", actor.Username).
		Str("actor_role", string(actor.Role))
}

func (s *Service) invalidateStatus(ctx context.Context, terminalID string) {
	if err := s.statusCache.Invalidate(ctx, terminalID); err != nil {
		s.log.Warn().Err(err).Str("terminal_id", terminalID).Msg("status cache invalidate failed")
	}
}

// dayBounds returns the half-open range covering the calendar date of day
// in the service location. Only the date fields of day are used.
func (s *Service) dayBounds(day time.Time) (time.Time, time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 0, 1)
}

// Location is the zone calendar days are computed in.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) today() time.Time {
	return s.now().In(s.loc)
}
