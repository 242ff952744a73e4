package file

import (
	"context"
	"sort"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/persistence"
)

// CreateExecutionWithinLimit counts prior running/completed executions for
// the (workflow, subject) pair and creates the execution only while below
// maxRuns. The store lock makes the count-and-create atomic, which is what
// keeps two near-simultaneous triggers from both slipping under the limit.
func (p *Persistence) CreateExecutionWithinLimit(ctx context.Context, execution *models.Execution, maxRuns int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if maxRuns > 0 {
		count, err := p.countExecutions(execution.TenantID, execution.WorkflowID, execution.SubjectID)
		if err != nil {
			return err
		}

		if count >= maxRuns {
			return persistence.NewStoreError("CreateExecutionWithinLimit",
				execution.TenantID, execution.WorkflowID, persistence.ErrRunLimitReached)
		}
	}

	return p.writeJSON(executionsDir, execution.ID, execution)
}

// UpdateExecution persists execution progress. Called after every single
// step so a crash mid-sequence leaves an accurate partial record.
func (p *Persistence) UpdateExecution(_ context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.writeJSON(executionsDir, execution.ID, execution)
}

// ExecutionByID returns the execution or ErrExecutionNotFound.
func (p *Persistence) ExecutionByID(_ context.Context, tenantID, id string) (*models.Execution, error) {
	var execution models.Execution

	found, err := p.readJSON(executionsDir, id, &execution)
	if err != nil {
		return nil, err
	}

	if !found || execution.TenantID != tenantID {
		return nil, persistence.NewStoreError("ExecutionByID", tenantID, id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

// ExecutionsByWorkflow lists a workflow's executions, newest first.
func (p *Persistence) ExecutionsByWorkflow(_ context.Context, tenantID, workflowID string) ([]*models.Execution, error) {
	all, err := p.loadExecutions()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.TenantID == tenantID && execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

// CountExecutions counts running/completed executions of the workflow for
// the subject. Failed runs do not count against the limit.
func (p *Persistence) CountExecutions(_ context.Context, tenantID, workflowID, subjectID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.countExecutions(tenantID, workflowID, subjectID)
}

func (p *Persistence) countExecutions(tenantID, workflowID, subjectID string) (int, error) {
	all, err := p.loadExecutions()
	if err != nil {
		return 0, err
	}

	count := 0

	for _, execution := range all {
		if execution.TenantID != tenantID ||
			execution.WorkflowID != workflowID ||
			execution.SubjectID != subjectID {
			continue
		}

		if execution.Status == models.ExecutionStatusRunning ||
			execution.Status == models.ExecutionStatusCompleted {
			count++
		}
	}

	return count, nil
}

func (p *Persistence) loadExecutions() ([]*models.Execution, error) {
	ids, err := p.listIDs(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		var execution models.Execution

		found, err := p.readJSON(executionsDir, id, &execution)
		if err != nil {
			return nil, err
		}

		if found {
			executions = append(executions, &execution)
		}
	}

	return executions, nil
}
