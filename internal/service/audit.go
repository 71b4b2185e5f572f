package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/monitoring"
)

// Reconciler scans the store for broken cross-entity invariants and
// reports them. It never repairs: which record is authoritative is a
// landlord decision.
type Reconciler struct {
	*base
	alert func(message string, labels map[string]string)
}

// History returns the audit trail of one entity.
func (r *Reconciler) History(ctx context.Context, entity string, id uuid.UUID) ([]model.Transition, error) {
	switch entity {
	case model.EntityApplication, model.EntityUnit, model.EntityTenancy:
	default:
		return nil, fmt.Errorf("%w: unknown entity %q", model.ErrInvalidInput, entity)
	}
	return r.store.ListTransitions(ctx, entity, id)
}

// Check runs one reconciliation scan.
func (r *Reconciler) Check(ctx context.Context) (*model.ReconciliationReport, error) {
	report := &model.ReconciliationReport{CheckedAt: r.now(), Violations: []model.Violation{}}

	anomalies, err := r.store.UnitOccupancyAnomalies(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan unit occupancy: %w", err)
	}
	for _, occ := range anomalies {
		v := model.Violation{
			Entity:     model.EntityUnit,
			EntityID:   occ.UnitID,
			PropertyID: occ.PropertyID,
		}
		switch {
		case occ.Status == model.UnitOccupied && occ.ActiveTenancies == 0:
			v.Kind = model.ViolationOccupiedWithoutTenancy
			v.Detail = "unit is occupied but no active tenancy references it"
		case occ.ActiveTenancies > 1:
			v.Kind = model.ViolationMultipleActiveTenancies
			v.Detail = fmt.Sprintf("unit is %s with %d active tenancies", occ.Status, occ.ActiveTenancies)
		default:
			v.Kind = model.ViolationTenancyOnUnoccupiedUnit
			v.Detail = fmt.Sprintf("unit is %s but has an active tenancy", occ.Status)
		}
		report.Violations = append(report.Violations, v)
	}

	orphans, err := r.store.ApprovedWithoutTenancy(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan approved applications: %w", err)
	}
	for _, app := range orphans {
		report.Violations = append(report.Violations, model.Violation{
			Kind:       model.ViolationApprovedWithoutTenancy,
			Entity:     model.EntityApplication,
			EntityID:   app.ID,
			PropertyID: app.PropertyID,
			Detail:     "application is approved but produced no tenancy",
		})
	}

	r.publish(report)
	return report, nil
}

// Run checks every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Reconciliation loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciliation loop stopped")
			return
		case <-ticker.C:
			if _, err := r.Check(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Reconciliation failed")
			}
		}
	}
}

func (r *Reconciler) publish(report *model.ReconciliationReport) {
	counts := map[string]int{
		model.ViolationOccupiedWithoutTenancy:  0,
		model.ViolationMultipleActiveTenancies: 0,
		model.ViolationTenancyOnUnoccupiedUnit: 0,
		model.ViolationApprovedWithoutTenancy:  0,
	}
	for _, v := range report.Violations {
		counts[v.Kind]++
		if r.alert != nil {
			r.alert(v.Detail, map[string]string{
				"kind":        v.Kind,
				"entity":      v.Entity,
				"entity_id":   v.EntityID.String(),
				"property_id": v.PropertyID.String(),
			})
		}
	}
	for kind, n := range counts {
		monitoring.InvariantViolations.WithLabelValues(kind).Set(float64(n))
	}

	if report.Clean() {
		log.Debug().Msg("Reconciliation found no violations")
		return
	}
	log.Warn().Int("violations", len(report.Violations)).Msg("Reconciliation found invariant violations")
}
