// Package cedarengine implements the policy.Evaluator port against
// github.com/cedar-policy/cedar-go: policy-set parsing for the loader and
// request authorization for the decision pipeline.
package cedarengine

import (
	"context"
	"fmt"

	cedar "github.com/cedar-policy/cedar-go"

	"github.com/sentinelpdp/pdp/internal/domain/entity"
	"github.com/sentinelpdp/pdp/internal/domain/policy"
)

// Engine adapts cedar-go's PolicySet/Authorize to the domain's Evaluator
// interface. It carries no state of its own -- parsed policy sets live in
// the caller (the policy loader's cache), not here.
type Engine struct{}

// New returns a stateless Engine.
func New() *Engine {
	return &Engine{}
}

var _ policy.Evaluator = (*Engine)(nil)

// Parse compiles texts into a *cedar.PolicySet, assigning each policy the
// corresponding id from ids (falling back to "p{index}" if ids is shorter
// than texts). Every parse failure is appended to the returned error slice,
// and any failure fails the whole parse: partial sets are never returned to
// a caller that checks the error.
func (e *Engine) Parse(ids []string, texts []string) (any, []string, error) {
	ps := cedar.NewPolicySet()
	var errs []string

	for i, text := range texts {
		id := fmt.Sprintf("p%d", i)
		if i < len(ids) && ids[i] != "" {
			id = ids[i]
		}

		var p cedar.Policy
		if err := p.UnmarshalCedar([]byte(text)); err != nil {
			errs = append(errs, fmt.Sprintf("policy %d (%s) parse error: %v", i, id, err))
			continue
		}
		ps.Add(cedar.PolicyID(id), &p)
	}

	if len(errs) > 0 {
		return ps, errs, fmt.Errorf("cedarengine: %d of %d policies failed to parse", len(errs), len(texts))
	}
	return ps, errs, nil
}

// Evaluate authorizes evalCtx's (principal, action, resource, context)
// tuple against policySet (a *cedar.PolicySet returned by Parse) and the
// supplied entities, using cedar-go's native deny-wins-over-allow
// semantics directly -- no ALLOW/DENY combination logic is reimplemented
// here.
func (e *Engine) Evaluate(_ context.Context, evalCtx policy.EvaluationContext, entities []policy.Entity, policySet any) (bool, error) {
	ps, ok := policySet.(*cedar.PolicySet)
	if !ok || ps == nil {
		return false, fmt.Errorf("cedarengine: policy set is not a parsed *cedar.PolicySet")
	}

	principalUID, err := toEntityUID(evalCtx.Principal)
	if err != nil {
		return false, fmt.Errorf("cedarengine: principal: %w", err)
	}
	resourceUID, err := toEntityUID(evalCtx.Resource)
	if err != nil {
		return false, fmt.Errorf("cedarengine: resource: %w", err)
	}
	actionUID, err := toEntityUID(evalCtx.Action)
	if err != nil {
		return false, fmt.Errorf("cedarengine: action: %w", err)
	}

	entityMap, err := buildEntityMap(entities)
	if err != nil {
		return false, fmt.Errorf("cedarengine: %w", err)
	}

	req := cedar.Request{
		Principal: principalUID,
		Action:    actionUID,
		Resource:  resourceUID,
		Context:   cedar.NewRecord(toRecordMap(evalCtx.Context)),
	}

	allowed, _ := cedar.Authorize(ps, entityMap, req)
	return allowed, nil
}

// toEntityUID parses a wire-format UID into a cedar.EntityUID. The first
// attempt uses the strict TYPE::"ID" grammar; a
// second, more lenient attempt accepts minor wire variations (a single
// colon separator) before the UID is rejected outright. cedar-go's
// EntityUID is already the split {type,id} form, so both attempts feed the
// same constructor -- the fallback is compatibility scaffolding for wire
// variations from other callers, not an alternate evaluator API.
func toEntityUID(raw string) (cedar.EntityUID, error) {
	u, err := entity.ParseUID(raw)
	if err == nil {
		return cedar.NewEntityUID(cedar.EntityType(u.Type), cedar.String(u.ID)), nil
	}
	if u2, err2 := parseLenientUID(raw); err2 == nil {
		return cedar.NewEntityUID(cedar.EntityType(u2.Type), cedar.String(u2.ID)), nil
	}
	return cedar.EntityUID{}, err
}

// parseLenientUID accepts Type:"id" (single colon) as a fallback wire
// variation of the canonical Type::"id" grammar.
func parseLenientUID(raw string) (entity.UID, error) {
	s := raw
	idx := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return entity.UID{}, entity.ErrInvalidUID
	}
	return entity.ParseUID(s[:idx] + "::" + s[idx+1:])
}

// buildEntityMap assembles a cedar.EntityMap from entity records, with no
// parent entities; the entity builder never populates hierarchies.
func buildEntityMap(entities []policy.Entity) (cedar.EntityMap, error) {
	em := cedar.EntityMap{}
	for _, e := range entities {
		uid, err := toEntityUID(e.Type + `::"` + e.ID + `"`)
		if err != nil {
			return nil, fmt.Errorf("entity %s::%q: %w", e.Type, e.ID, err)
		}
		em[uid] = cedar.Entity{
			UID:        uid,
			Attributes: cedar.NewRecord(toRecordMap(e.Attrs)),
		}
	}
	return em, nil
}

// toRecordMap converts a generic attribute map into a cedar.RecordMap,
// recursively converting nested maps, slices, and scalars via toCedarValue.
func toRecordMap(attrs map[string]any) cedar.RecordMap {
	rm := cedar.RecordMap{}
	for k, v := range attrs {
		rm[cedar.String(k)] = toCedarValue(v)
	}
	return rm
}

// toCedarValue converts a single decoded-JSON-shaped Go value into a
// cedar.Value. Unrecognized types fall back to their string form rather
// than failing evaluation outright -- an attribute the evaluator can't use
// in a condition simply never matches, matching the "missing row is not
// denial" spirit of the store's attribute loader.
func toCedarValue(v any) cedar.Value {
	switch val := v.(type) {
	case nil:
		return cedar.String("")
	case string:
		return cedar.String(val)
	case bool:
		return cedar.Boolean(val)
	case int:
		return cedar.Long(int64(val))
	case int64:
		return cedar.Long(val)
	case float64:
		return cedar.Long(int64(val))
	case []any:
		vals := make([]cedar.Value, len(val))
		for i, item := range val {
			vals[i] = toCedarValue(item)
		}
		return cedar.NewSet(vals...)
	case map[string]any:
		return cedar.NewRecord(toRecordMap(val))
	default:
		return cedar.String(fmt.Sprintf("%v", val))
	}
}
