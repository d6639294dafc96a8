package perfmon

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/conclave-run/conclave/internal/types"
)

// dedupeWindow suppresses a repeat alert with the same title+source
// within this window.
const dedupeWindow = 5 * time.Minute

// raise creates and persists an alert unless an equivalent one was
// raised within dedupeWindow.
func (m *Monitor) raise(ctx context.Context, a types.Alert) {
	key := fmt.Sprintf("%s:%s", a.Title, a.SourceID)

	m.alertsMu.Lock()
	for id, existing := range m.activeAlerts {
		if fmt.Sprintf("%s:%s", existing.Title, existing.SourceID) == key &&
			time.Since(existing.CreatedAt) < dedupeWindow {
			m.alertsMu.Unlock()
			_ = id
			return
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	m.activeAlerts[a.ID] = &a
	m.alertsMu.Unlock()

	if err := m.store.SaveAlert(ctx, &a); err != nil {
		log.Printf("[perfmon] save alert: %v", err)
	}
}

// Acknowledge marks an alert as seen by an operator. Acknowledging an
// already-acknowledged alert is a no-op that returns nil.
func (m *Monitor) Acknowledge(ctx context.Context, alert *types.Alert) error {
	if alert.Acknowledged {
		return nil
	}
	now := time.Now().UTC()
	alert.Acknowledged = true
	alert.AcknowledgedAt = &now
	return m.store.SaveAlert(ctx, alert)
}

// Resolve marks an alert resolved; it becomes eligible for gc after
// alertRetention.
func (m *Monitor) Resolve(ctx context.Context, alert *types.Alert) error {
	now := time.Now().UTC()
	alert.Resolved = true
	alert.ResolvedAt = &now

	m.alertsMu.Lock()
	delete(m.activeAlerts, alert.ID)
	m.alertsMu.Unlock()

	return m.store.SaveAlert(ctx, alert)
}

// ActiveAlerts returns every unresolved alert.
func (m *Monitor) ActiveAlerts(ctx context.Context) ([]*types.Alert, error) {
	return m.store.ListActiveAlerts(ctx)
}
