// Package registry maps action types to their factories and validates action
// parameters against each factory's schema.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/careloop/careloop/pkg/models"
	"github.com/careloop/careloop/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.ActionType]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "action_registry"),
		factories: make(map[models.ActionType]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.factories[factory.ID()] = factory
}

// CreateAction returns an action for the given type. Unknown types fail
// loudly; a silent no-op would hide misconfigured workflows.
func (r *Registry) CreateAction(actionType models.ActionType) (protocol.Action, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, protocol.NewActionExecutionError(actionType,
			fmt.Errorf("action type %q not registered", actionType))
	}

	return factory.Create(), nil
}

// ActionTypes lists the registered action types.
func (r *Registry) ActionTypes() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.factories))
	for actionType := range r.factories {
		types = append(types, actionType)
	}

	return types
}

// ValidateParams checks action params against the factory's JSON schema.
// Used when workflows are saved or dry-run, before anything executes.
func (r *Registry) ValidateParams(actionType models.ActionType, params map[string]any) error {
	factory, ok := r.factories[actionType]
	if !ok {
		return fmt.Errorf("action type %q not registered", actionType)
	}

	if params == nil {
		params = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(factory.Schema())
	dataLoader := gojsonschema.NewGoLoader(params)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate params for %s: %w", actionType, err)
	}

	if !result.Valid() {
		for _, desc := range result.Errors() {
			r.logger.Debug("Action param validation error",
				"action_type", actionType,
				"error", desc.String())
		}

		return fmt.Errorf("invalid params for action %s: %s", actionType, result.Errors()[0].String())
	}

	return nil
}
