package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/monitoring"
	"github.com/teresa-solution/tenancy-allocation-service/internal/store"
)

// Emitter receives domain events after the transition that produced them
// has committed. Delivery is fire-and-forget.
type Emitter interface {
	Emit(event model.Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(model.Event) {}

// Options tunes the allocation components.
type Options struct {
	// DefaultLeaseDays is the lease length used when no end date is given.
	DefaultLeaseDays int
	// OperationTimeout bounds one multi-write operation. The operation is
	// detached from caller cancellation once it starts.
	OperationTimeout time.Duration
	// AllowReconsider enables the rejected -> pending edge.
	AllowReconsider bool
	// Now is the clock; defaults to time.Now in UTC.
	Now func() time.Time
}

// Services bundles the allocation components over one store.
type Services struct {
	Inventory  *Inventory
	Registry   *Registry
	Identity   *IdentityResolver
	Allocator  *Allocator
	Leases     *LeaseManager
	Reconciler *Reconciler
}

// New wires every component to the same store and event sink.
func New(st store.Store, events Emitter, opts Options) *Services {
	if events == nil {
		events = noopEmitter{}
	}
	if opts.DefaultLeaseDays <= 0 {
		opts.DefaultLeaseDays = 365
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	b := &base{store: st, events: events, opts: opts}
	inventory := &Inventory{base: b}
	registry := &Registry{base: b}
	identity := &IdentityResolver{base: b}
	return &Services{
		Inventory:  inventory,
		Registry:   registry,
		Identity:   identity,
		Allocator:  &Allocator{base: b, inventory: inventory, registry: registry, identity: identity},
		Leases:     &LeaseManager{base: b, inventory: inventory},
		Reconciler: &Reconciler{base: b, alert: monitoring.Alert},
	}
}

type base struct {
	store  store.Store
	events Emitter
	opts   Options
}

func (b *base) now() time.Time {
	return b.opts.Now()
}

// runTx executes fn atomically. A caller that has already gone away never
// starts the transaction; once started it runs to commit or rollback.
func (b *base) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txCtx := context.WithoutCancel(ctx)
	if b.opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(txCtx, b.opts.OperationTimeout)
		defer cancel()
	}
	return b.store.WithTx(txCtx, fn)
}

func observe(operation string, start time.Time, err error) {
	monitoring.Operations.WithLabelValues(operation, model.Kind(err)).Inc()
	monitoring.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// recordTransition appends one audit row inside tx.
func recordTransition(ctx context.Context, tx store.Tx, at time.Time, entity string, id uuid.UUID, from, to string, actor uuid.UUID, details map[string]any) error {
	tr := &model.Transition{
		ID:        uuid.New(),
		Entity:    entity,
		EntityID:  id,
		FromState: from,
		ToState:   to,
		Actor:     actor,
		CreatedAt: at,
	}
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			return err
		}
		tr.Details = data
	}
	return tx.InsertTransition(ctx, tr)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func idPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
