package engine

import (
	"context"
	"fmt"

	"github.com/careloop/careloop/pkg/models"
)

// StepPreview describes what one action would do in a dry run.
type StepPreview struct {
	ActionType models.ActionType `json:"action_type"`
	Detail     string            `json:"detail"`
}

// TestResult is the outcome of a workflow dry run.
type TestResult struct {
	WorkflowID    string        `json:"workflow_id"`
	SubjectID     string        `json:"subject_id"`
	ConditionsMet bool          `json:"conditions_met"`
	Previews      []StepPreview `json:"previews"`
}

// TestWorkflow dry-runs a workflow against a subject: it evaluates the
// conditions and previews each action without executing anything. No
// execution record is created and no counters move.
func (e *Engine) TestWorkflow(ctx context.Context, tenantID, workflowID, subjectID string) (*TestResult, error) {
	workflow, err := e.persistence.WorkflowByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	subject, err := e.subjects.Get(ctx, tenantID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subject %s: %w", subjectID, err)
	}

	result := &TestResult{
		WorkflowID:    workflow.ID,
		SubjectID:     subjectID,
		ConditionsMet: e.evaluator.Evaluate(workflow.Conditions, subject),
		Previews:      make([]StepPreview, 0, len(workflow.Actions)),
	}

	for _, action := range workflow.Actions {
		detail, err := e.executor.Preview(action, subject)
		if err != nil {
			detail = fmt.Sprintf("preview failed: %v", err)
		}

		result.Previews = append(result.Previews, StepPreview{
			ActionType: action.Type,
			Detail:     detail,
		})
	}

	return result, nil
}
