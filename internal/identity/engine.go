package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopflow/shopflow-backend/pkg/db/models"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

// UserStore is the persistence surface the engine writes through.
type UserStore interface {
	UpsertFromIdentity(ctx context.Context, id NormalizedIdentity) (*models.User, error)
	DeleteByExternalID(ctx context.Context, externalID string) (bool, error)
}

// Recorder receives per-event observations.
type Recorder interface {
	ObserveEvent(eventType, outcome string, duration time.Duration)
}

// Handler consumes identity events. Engine handles them inline; Relay defers them to a queue.
type Handler interface {
	Handle(ctx context.Context, evt Event) (Outcome, error)
}

type EngineParams struct {
	Users      UserStore
	Normalizer Normalizer
	Guard      DeliveryGuard
	Metrics    Recorder
	Logger     *logger.Logger
}

// Engine applies identity events to the user store. Applying the same event
// any number of times, or created/updated in either order, converges on the
// same stored record.
type Engine struct {
	users      UserStore
	normalizer Normalizer
	guard      DeliveryGuard
	metrics    Recorder
	logg       *logger.Logger
	now        func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Engine{
		users:      params.Users,
		normalizer: params.Normalizer,
		guard:      params.Guard,
		metrics:    params.Metrics,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// Handle applies evt. Unknown event types are acknowledged as no-ops.
// Payloads without a usable id yield OutcomeDropped together with an error
// wrapping ErrMissingIdentity; they must not be redelivered.
func (e *Engine) Handle(ctx context.Context, evt Event) (outcome Outcome, err error) {
	start := e.now()
	ctx = e.logg.WithEvent(ctx, evt.RawType, evt.DeliveryID)
	ctx = e.logg.WithField(ctx, "source", string(evt.Source))
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveEvent(string(evt.Type), string(outcome), e.now().Sub(start))
		}
	}()

	if evt.Type == EventUnknown || evt.Type == "" {
		e.logg.Info(ctx, "identity event ignored")
		return OutcomeIgnored, nil
	}

	claimed := false
	if e.guard != nil && evt.DeliveryID != "" {
		fresh, guardErr := e.guard.Claim(ctx, evt.DeliveryID)
		switch {
		case guardErr != nil:
			e.logg.Warn(ctx, fmt.Sprintf("delivery guard unavailable, processing anyway: %v", guardErr))
		case !fresh:
			e.logg.Info(ctx, "identity event already delivered")
			return OutcomeDuplicate, nil
		default:
			claimed = true
		}
	}

	if claimed {
		defer func() {
			if r := recover(); r != nil {
				e.release(ctx, evt.DeliveryID)
				panic(r)
			}
		}()
	}

	outcome, err = e.apply(ctx, evt)
	if err != nil && claimed && !errors.Is(err, ErrMissingIdentity) {
		e.release(ctx, evt.DeliveryID)
	}

	ctx = e.logg.WithField(ctx, "outcome", string(outcome))
	if err != nil {
		if outcome == OutcomeDropped {
			e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "identity event dropped")
			return outcome, err
		}
		e.logg.Error(ctx, "identity event failed", err)
		return outcome, err
	}
	e.logg.Info(ctx, "identity event handled")
	return outcome, nil
}

// release frees a claimed delivery mark so a redelivery is processed again.
func (e *Engine) release(ctx context.Context, deliveryID string) {
	if err := e.guard.Release(ctx, deliveryID); err != nil {
		e.logg.Warn(ctx, fmt.Sprintf("release delivery mark: %v", err))
	}
}

func (e *Engine) apply(ctx context.Context, evt Event) (Outcome, error) {
	switch evt.Type {
	case EventCreated, EventUpdated:
		id, err := e.normalizer.Normalize(evt.Data)
		if err != nil {
			if errors.Is(err, ErrMissingIdentity) {
				return OutcomeDropped, err
			}
			return OutcomeDropped, fmt.Errorf("%w: %v", ErrMissingIdentity, err)
		}
		ctx = e.logg.WithExternalID(ctx, id.ExternalID)
		if id.EmailSynthesized {
			e.logg.Warn(ctx, "identity has no email; using synthesized placeholder")
		}
		if _, err := e.users.UpsertFromIdentity(ctx, id); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeApplied, nil

	case EventDeleted:
		externalID, err := e.normalizer.SubjectID(evt.Data)
		if err != nil {
			return OutcomeDropped, err
		}
		ctx = e.logg.WithExternalID(ctx, externalID)
		removed, err := e.users.DeleteByExternalID(ctx, externalID)
		if err != nil {
			return OutcomeFailed, err
		}
		if !removed {
			e.logg.Info(ctx, "user already absent")
		}
		return OutcomeDeleted, nil
	}
	return OutcomeIgnored, nil
}
