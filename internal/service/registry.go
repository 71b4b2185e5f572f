package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/store"
)

// Registry tracks the lifecycle of applications.
type Registry struct {
	*base
}

// ListPending returns the pending applications of a property, oldest first.
func (r *Registry) ListPending(ctx context.Context, propertyID uuid.UUID) ([]model.Application, error) {
	return r.store.ListApplications(ctx, propertyID, model.ApplicationPending)
}

// Transition moves an application along a legal edge on behalf of a
// landlord. Approval is not reachable from here: it only happens as part of
// an assignment, which creates the tenancy in the same transaction.
func (r *Registry) Transition(ctx context.Context, id uuid.UUID, from, to model.ApplicationStatus, actor uuid.UUID) (app *model.Application, err error) {
	start := time.Now()
	defer func() { observe("transition_application", start, err) }()

	if to == model.ApplicationApproved {
		return nil, fmt.Errorf("%w: applications are approved by assigning a unit", model.ErrInvalidTransition)
	}

	err = r.runTx(ctx, func(tx store.Tx) error {
		var err error
		app, err = r.transitionTx(ctx, tx, id, from, to, actor, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("application_id", id.String()).Str("from", string(from)).Str("to", string(to)).Str("actor", actor.String()).Msg("Application transitioned")

	event := model.Event{
		PropertyID:    app.PropertyID,
		ApplicationID: idPtr(app.ID),
		Actor:         actor,
		OccurredAt:    r.now(),
	}
	switch to {
	case model.ApplicationRejected:
		event.Type = model.EventApplicationRejected
		r.events.Emit(event)
	case model.ApplicationPending:
		event.Type = model.EventApplicationReconsidered
		r.events.Emit(event)
	}
	return app, nil
}

// Reject declines a pending application.
func (r *Registry) Reject(ctx context.Context, id, actor uuid.UUID) (*model.Application, error) {
	return r.Transition(ctx, id, model.ApplicationPending, model.ApplicationRejected, actor)
}

// Reconsider returns a rejected application to pending.
func (r *Registry) Reconsider(ctx context.Context, id, actor uuid.UUID) (*model.Application, error) {
	return r.Transition(ctx, id, model.ApplicationRejected, model.ApplicationPending, actor)
}

func (r *Registry) transitionTx(ctx context.Context, tx store.Tx, id uuid.UUID, from, to model.ApplicationStatus, actor uuid.UUID, details map[string]any) (*model.Application, error) {
	if !model.CanTransitionApplication(from, to, r.opts.AllowReconsider) {
		return nil, fmt.Errorf("%w: application cannot move from %s to %s", model.ErrInvalidTransition, from, to)
	}
	app, err := tx.UpdateApplicationStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	if err := recordTransition(ctx, tx, r.now(), model.EntityApplication, id, string(from), string(to), actor, details); err != nil {
		return nil, err
	}
	return app, nil
}
