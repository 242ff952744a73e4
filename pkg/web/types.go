// Package web provides the HTTP handlers and request types for the
// workflow management API.
package web

import "github.com/careloop/careloop/pkg/models"

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name              string             `json:"name"                 validate:"required,min=3"`
	TriggerType       string             `json:"trigger_type"         validate:"required"`
	TriggerConfig     map[string]any     `json:"trigger_config,omitempty"`
	Conditions        []models.Condition `json:"conditions,omitempty"`
	Actions           []models.Action    `json:"actions"              validate:"required,min=1,dive"`
	Active            bool               `json:"active"`
	MaxRunsPerSubject int                `json:"max_runs_per_subject" validate:"min=0"`
}

// UpdateWorkflowRequest is the request body for updating a workflow.
// Fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name              *string            `json:"name,omitempty"           validate:"omitempty,min=3"`
	TriggerType       *string            `json:"trigger_type,omitempty"`
	TriggerConfig     map[string]any     `json:"trigger_config,omitempty"`
	Conditions        []models.Condition `json:"conditions,omitempty"`
	Actions           []models.Action    `json:"actions,omitempty"        validate:"omitempty,min=1,dive"`
	Active            *bool              `json:"active,omitempty"`
	MaxRunsPerSubject *int               `json:"max_runs_per_subject,omitempty" validate:"omitempty,min=0"`
}

// TestWorkflowRequest is the request body for a workflow dry run.
type TestWorkflowRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
}

// SweepScheduleRequest is the request body for setting a tenant's
// time-trigger sweep cadence.
type SweepScheduleRequest struct {
	CronExpression string `json:"cron_expression" validate:"required"`
	Active         bool   `json:"active"`
}

func (r *CreateWorkflowRequest) toWorkflow(tenantID string) *models.Workflow {
	return &models.Workflow{
		TenantID:          tenantID,
		Name:              r.Name,
		TriggerType:       models.TriggerType(r.TriggerType),
		TriggerConfig:     r.TriggerConfig,
		Conditions:        r.Conditions,
		Actions:           r.Actions,
		Active:            r.Active,
		MaxRunsPerSubject: r.MaxRunsPerSubject,
	}
}

func (r *UpdateWorkflowRequest) applyTo(workflow *models.Workflow) {
	if r.Name != nil {
		workflow.Name = *r.Name
	}

	if r.TriggerType != nil {
		workflow.TriggerType = models.TriggerType(*r.TriggerType)
	}

	if r.TriggerConfig != nil {
		workflow.TriggerConfig = r.TriggerConfig
	}

	if r.Conditions != nil {
		workflow.Conditions = r.Conditions
	}

	if r.Actions != nil {
		workflow.Actions = r.Actions
	}

	if r.Active != nil {
		workflow.Active = *r.Active
	}

	if r.MaxRunsPerSubject != nil {
		workflow.MaxRunsPerSubject = *r.MaxRunsPerSubject
	}
}
