package conga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Plan is a named cleaning plan stored in the cloud.
type Plan struct {
	// Name is the user-visible plan name and the lookup key.
	Name string

	// Details is the plan definition exactly as the service returned it.
	Details json.RawMessage
}

// Params returns the plan definition as the text sent in a timed clean
// task. A definition stored as a JSON string is unwrapped; any other JSON
// value is sent compacted.
func (p Plan) Params() string {
	trimmed := bytes.TrimSpace(p.Details)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// planLister fetches raw plan listing items. Satisfied by *APIClient.
type planLister interface {
	ListPlanItems(ctx context.Context, serial string) ([]json.RawMessage, error)
}

// planItem is one entry of the plan listing.
type planItem struct {
	TaskCmd json.RawMessage `json:"task_cmd"`
}

// taskCmd wraps the stored command of a listing entry.
type taskCmd struct {
	Cmd json.RawMessage `json:"cmd"`
}

// planCmd is the part of a stored command that identifies a plan.
type planCmd struct {
	PlanName    string          `json:"planName"`
	PlanDetails json.RawMessage `json:"planDetails"`
}

// PlanRegistry caches the cleaning plans of the most recently refreshed
// device.
//
// Thread Safety: All methods are safe for concurrent use.
type PlanRegistry struct {
	lister planLister

	mu    sync.RWMutex
	plans []Plan

	logger Logger
}

// NewPlanRegistry creates an empty registry.
func NewPlanRegistry(lister planLister) *PlanRegistry {
	return &PlanRegistry{
		lister: lister,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *PlanRegistry) SetLogger(logger Logger) {
	r.logger = logger
}

// Refresh fetches the plans for serial and replaces the cache.
//
// Failures are logged and leave the cache empty; they are never returned.
// Callers that need to distinguish "no plans" from "listing failed" must
// check the logs.
func (r *PlanRegistry) Refresh(ctx context.Context, serial string) []Plan {
	plans, err := r.fetch(ctx, serial)
	if err != nil {
		r.logger.Warn("plan refresh failed, clearing plan cache",
			"serial", serial,
			"error", err)
		plans = nil
	}

	r.mu.Lock()
	r.plans = plans
	r.mu.Unlock()

	r.logger.Debug("plans refreshed", "serial", serial, "count", len(plans))
	return clonePlans(plans)
}

// Find returns the cached plan named name.
func (r *PlanRegistry) Find(name string) (Plan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plans {
		if p.Name == name {
			return p, true
		}
	}
	return Plan{}, false
}

// Plans returns a copy of the cached plans.
func (r *PlanRegistry) Plans() []Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePlans(r.plans)
}

// Names returns the cached plan names in listing order.
func (r *PlanRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plans))
	for _, p := range r.plans {
		names = append(names, p.Name)
	}
	return names
}

func (r *PlanRegistry) fetch(ctx context.Context, serial string) ([]Plan, error) {
	items, err := r.lister.ListPlanItems(ctx, serial)
	if err != nil {
		return nil, err
	}
	return r.parsePlans(items), nil
}

// parsePlans extracts plans from listing items. Items without a plan
// definition, including malformed ones, are skipped.
func (r *PlanRegistry) parsePlans(items []json.RawMessage) []Plan {
	plans := make([]Plan, 0, len(items))
	for i, raw := range items {
		plan, ok, err := parsePlanItem(raw)
		if err != nil {
			r.logger.Debug("skipping malformed plan listing item", "index", i, "error", err)
			continue
		}
		if ok {
			plans = append(plans, plan)
		}
	}
	return plans
}

// parsePlanItem decodes one listing item. ok is false for items that are
// well formed but carry no plan.
func parsePlanItem(raw json.RawMessage) (plan Plan, ok bool, err error) {
	var item planItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return Plan{}, false, fmt.Errorf("item: %w", err)
	}
	if len(item.TaskCmd) == 0 {
		return Plan{}, false, nil
	}

	cmdJSON, err := unwrapJSONString(item.TaskCmd)
	if err != nil {
		return Plan{}, false, fmt.Errorf("task_cmd: %w", err)
	}

	var tc taskCmd
	if err := json.Unmarshal(cmdJSON, &tc); err != nil {
		return Plan{}, false, fmt.Errorf("task_cmd: %w", err)
	}
	if len(tc.Cmd) == 0 {
		return Plan{}, false, nil
	}

	inner, err := unwrapJSONString(tc.Cmd)
	if err != nil {
		return Plan{}, false, fmt.Errorf("cmd: %w", err)
	}

	var pc planCmd
	if err := json.Unmarshal(inner, &pc); err != nil {
		// Non-object commands are other file types.
		return Plan{}, false, nil
	}
	if pc.PlanName == "" {
		return Plan{}, false, nil
	}
	return Plan{Name: pc.PlanName, Details: pc.PlanDetails}, true, nil
}

// unwrapJSONString returns the decoded contents if raw is a JSON string,
// otherwise raw unchanged.
func unwrapJSONString(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	return json.RawMessage(s), nil
}

func clonePlans(plans []Plan) []Plan {
	if plans == nil {
		return []Plan{}
	}
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}
