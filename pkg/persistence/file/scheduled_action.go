package file

import (
	"context"
	"sort"
	"time"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// CreateScheduledAction persists a new deferred action row.
func (p *Persistence) CreateScheduledAction(_ context.Context, action *models.ScheduledAction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.writeJSON(scheduledActionsDir, action.ID, action)
}

// DueScheduledActions returns pending actions whose ScheduledFor has
// passed, oldest first, capped at limit.
func (p *Persistence) DueScheduledActions(_ context.Context, before time.Time, limit int) ([]*models.ScheduledAction, error) {
	all, err := p.loadScheduledActions()
	if err != nil {
		return nil, err
	}

	due := make([]*models.ScheduledAction, 0)

	for _, action := range all {
		if action.Status == models.ScheduledActionPending && !action.ScheduledFor.After(before) {
			due = append(due, action)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// ClaimScheduledAction transitions a pending action to processing. Only
// one caller can win the claim; anything not pending returns
// ErrScheduledActionNotClaimable.
func (p *Persistence) ClaimScheduledAction(_ context.Context, id string) (*models.ScheduledAction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var action models.ScheduledAction

	found, err := p.readJSON(scheduledActionsDir, id, &action)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewStoreError("ClaimScheduledAction", "", id, persistence.ErrScheduledActionNotFound)
	}

	if action.Status != models.ScheduledActionPending {
		return nil, persistence.NewStoreError("ClaimScheduledAction", action.TenantID, id,
			persistence.ErrScheduledActionNotClaimable)
	}

	action.Status = models.ScheduledActionProcessing
	action.UpdatedAt = time.Now().UTC()

	if err := p.writeJSON(scheduledActionsDir, id, &action); err != nil {
		return nil, err
	}

	return &action, nil
}

// UpdateScheduledAction persists the terminal state written by the poller.
func (p *Persistence) UpdateScheduledAction(_ context.Context, action *models.ScheduledAction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	action.UpdatedAt = time.Now().UTC()

	return p.writeJSON(scheduledActionsDir, action.ID, action)
}

// CancelScheduledAction removes an action that has not started processing
// yet. Once claimed the action is past the point of no return and
// cancellation is refused.
func (p *Persistence) CancelScheduledAction(_ context.Context, tenantID, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var action models.ScheduledAction

	found, err := p.readJSON(scheduledActionsDir, id, &action)
	if err != nil {
		return err
	}

	if !found || action.TenantID != tenantID {
		return persistence.NewStoreError("CancelScheduledAction", tenantID, id, persistence.ErrScheduledActionNotFound)
	}

	if action.Status != models.ScheduledActionPending {
		return persistence.NewStoreError("CancelScheduledAction", tenantID, id,
			persistence.ErrScheduledActionNotClaimable)
	}

	return p.remove(scheduledActionsDir, id)
}

// ScheduledActionsByExecution lists the deferred actions an execution
// produced, oldest first.
func (p *Persistence) ScheduledActionsByExecution(_ context.Context, tenantID, executionID string) ([]*models.ScheduledAction, error) {
	all, err := p.loadScheduledActions()
	if err != nil {
		return nil, err
	}

	actions := make([]*models.ScheduledAction, 0)

	for _, action := range all {
		if action.TenantID == tenantID && action.ExecutionID == executionID {
			actions = append(actions, action)
		}
	}

	sort.Slice(actions, func(i, j int) bool {
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})

	return actions, nil
}

func (p *Persistence) loadScheduledActions() ([]*models.ScheduledAction, error) {
	ids, err := p.listIDs(scheduledActionsDir)
	if err != nil {
		return nil, err
	}

	actions := make([]*models.ScheduledAction, 0, len(ids))

	for _, id := range ids {
		var action models.ScheduledAction

		found, err := p.readJSON(scheduledActionsDir, id, &action)
		if err != nil {
			return nil, err
		}

		if found {
			actions = append(actions, &action)
		}
	}

	return actions, nil
}
