// Package file provides file-based persistence for workflows, executions,
// scheduled actions, and sweep schedules. Intended for development and
// tests; production deployments use the postgresql package.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	workflowsDir        = "workflows"
	executionsDir       = "executions"
	scheduledActionsDir = "scheduled_actions"
	sweepSchedulesDir   = "sweep_schedules"
)

// Persistence implements persistence.Persistence on top of JSON files. A
// single mutex serializes mutations; that is also what makes the run-limit
// count-and-create and counter increments atomic here.
type Persistence struct {
	root string
	mu   sync.Mutex
}

// NewPersistence creates file-backed persistence rooted at root. A file://
// prefix is stripped so the same URL notation as other providers works.
func NewPersistence(root string) *Persistence {
	return &Persistence{
		root: strings.TrimPrefix(root, "file://"),
	}
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// validateID guards against path traversal through entity identifiers.
func validateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("identifier %q contains invalid characters", id)
	}

	return nil
}

func (p *Persistence) entityPath(dir, id string) string {
	return filepath.Join(p.root, dir, id+".json")
}

func (p *Persistence) writeJSON(dir, id string, entity any) error {
	if err := validateID(id); err != nil {
		return err
	}

	fullDir := filepath.Join(p.root, dir)
	if err := os.MkdirAll(fullDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	payload, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	err = os.WriteFile(p.entityPath(dir, id), payload, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

// readJSON loads an entity; it reports found=false for missing files.
func (p *Persistence) readJSON(dir, id string, entity any) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}

	payload, err := os.ReadFile(p.entityPath(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(payload, entity)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// listIDs returns every entity id in a directory.
func (p *Persistence) listIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

func (p *Persistence) remove(dir, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	err := os.Remove(p.entityPath(dir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s/%s: %w", dir, id, err)
	}

	return nil
}
