// Package entity provides the "entity" namespace: create, update, upsert,
// delete, get and list over a Store, applying update markers atomically.
//
// Every effect takes a "type" argument; all effects except create and list
// take an "id". The remaining arguments of create, update and upsert are
// the patch applied to the stored document (see Apply).
//
// An id carrying the temp prefix is remapped: create stores the entity
// under a fresh id and reports the temp id as "tempId", and later steps of
// the same run that pass the temp id are pointed at the stored entity.
package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/plugin"
)

// Namespace is the default namespace of the entity plugin.
const Namespace = "entity"

// Document fields owned by the plugin.
const (
	FieldID     = "id"
	FieldType   = "type"
	FieldTempID = "tempId"
)

// Option configures Entities.
type Option func(*Entities)

// WithNamespace registers the effects under ns instead of "entity".
func WithNamespace(ns string) Option {
	return func(e *Entities) { e.namespace = ns }
}

// WithTempPrefix fixes the prefix that marks temp ids. Without it the
// prefix of the run's temp-id generator is used.
func WithTempPrefix(prefix string) Option {
	return func(e *Entities) { e.tempPrefix = prefix }
}

// WithIDGenerator sets the generator for ids of new entities.
func WithIDGenerator(fn func() string) Option {
	return func(e *Entities) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Entities) {
		if l != nil {
			e.logger = l
		}
	}
}

// Entities implements the entity effects over a Store.
type Entities struct {
	store      Store
	namespace  string
	tempPrefix string
	newID      func() string
	logger     *slog.Logger
}

// New creates the entity effects over store.
func New(store Store, opts ...Option) *Entities {
	e := &Entities{
		store:      store,
		namespace: Namespace,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the backing store.
func (e *Entities) Store() Store { return e.store }

// Plugin returns the effects for registration.
func (e *Entities) Plugin() plugin.Plugin {
	return plugin.Plugin{
		Namespace: e.namespace,
		Effects: map[string]plugin.EffectHandler{
			"create": e.create,
			"update": e.update,
			"upsert": e.upsert,
			"delete": e.delete,
			"get":    e.get,
			"list":   e.list,
		},
	}
}

func (e *Entities) create(ctx context.Context, args map[string]any, ec *expr.EvalContext) (any, error) {
	typ, err := stringArg("create", args, FieldType, true)
	if err != nil {
		return nil, err
	}
	id, err := stringArg("create", args, FieldID, false)
	if err != nil {
		return nil, err
	}

	tempID := ""
	switch {
	case id == "":
		id = e.newID()
	case expr.IsTempID(id, e.tempPrefixFor(ec)):
		tempID = id
		id = e.newID()
	}

	patch := dataArgs(args)
	doc, err := e.store.Update(ctx, typ, id, func(current Document) (Document, error) {
		if current != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrExists, typ, id)
		}
		return e.build(nil, patch, typ, id)
	})
	if err != nil {
		return nil, fmt.Errorf("entity.create: %w", err)
	}
	e.logger.Debug("Entity created", "type", typ, "id", id, "tempId", tempID)
	return withTempID(doc, tempID), nil
}

func (e *Entities) update(ctx context.Context, args map[string]any, ec *expr.EvalContext) (any, error) {
	typ, id, err := e.target("update", args, ec)
	if err != nil {
		return nil, err
	}
	patch := dataArgs(args)
	doc, err := e.store.Update(ctx, typ, id, func(current Document) (Document, error) {
		if current == nil {
			return nil, notFound(typ, id)
		}
		return e.build(current, patch, typ, id)
	})
	if err != nil {
		return nil, fmt.Errorf("entity.update: %w", err)
	}
	return doc, nil
}

// upsert updates the entity or creates it when missing. A missing or temp
// id always creates.
func (e *Entities) upsert(ctx context.Context, args map[string]any, ec *expr.EvalContext) (any, error) {
	typ, err := stringArg("upsert", args, FieldType, true)
	if err != nil {
		return nil, err
	}
	id, err := stringArg("upsert", args, FieldID, false)
	if err != nil {
		return nil, err
	}
	tempID := ""
	if id != "" {
		id = e.remap(id, ec)
	}
	switch {
	case id == "":
		id = e.newID()
	case expr.IsTempID(id, e.tempPrefixFor(ec)):
		tempID = id
		id = e.newID()
	}

	patch := dataArgs(args)
	doc, err := e.store.Update(ctx, typ, id, func(current Document) (Document, error) {
		return e.build(current, patch, typ, id)
	})
	if err != nil {
		return nil, fmt.Errorf("entity.upsert: %w", err)
	}
	return withTempID(doc, tempID), nil
}

func (e *Entities) delete(ctx context.Context, args map[string]any, ec *expr.EvalContext) (any, error) {
	typ, id, err := e.target("delete", args, ec)
	if err != nil {
		return nil, err
	}
	if err := e.store.Delete(ctx, typ, id); err != nil {
		return nil, fmt.Errorf("entity.delete: %w", err)
	}
	return map[string]any{FieldType: typ, FieldID: id, "deleted": true}, nil
}

// get returns nil for a missing entity so "$when" can test for it.
func (e *Entities) get(ctx context.Context, args map[string]any, ec *expr.EvalContext) (any, error) {
	typ, id, err := e.target("get", args, ec)
	if err != nil {
		return nil, err
	}
	doc, err := e.store.Get(ctx, typ, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("entity.get: %w", err)
	}
	return doc, nil
}

// list returns the entities of a type whose fields equal every entry of
// "where", at most "limit" of them.
func (e *Entities) list(ctx context.Context, args map[string]any, _ *expr.EvalContext) (any, error) {
	typ, err := stringArg("list", args, FieldType, true)
	if err != nil {
		return nil, err
	}
	where, _ := args["where"].(map[string]any)
	limit := 0
	if v, ok := args["limit"]; ok {
		f, ok := toFloat(v)
		if !ok || f < 0 {
			return nil, fmt.Errorf("entity.list: 'limit' must be a non-negative number")
		}
		limit = int(f)
	}

	docs, err := e.store.List(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("entity.list: %w", err)
	}
	out := make([]any, 0, len(docs))
	for _, doc := range docs {
		if !matches(doc, where) {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (e *Entities) build(current, patch Document, typ, id string) (Document, error) {
	doc, err := Apply(current, patch)
	if err != nil {
		return nil, err
	}
	doc[FieldType] = typ
	doc[FieldID] = id
	return doc, nil
}

// target reads type and id, following temp ids created earlier in the run.
func (e *Entities) target(effect string, args map[string]any, ec *expr.EvalContext) (string, string, error) {
	typ, err := stringArg(effect, args, FieldType, true)
	if err != nil {
		return "", "", err
	}
	id, err := stringArg(effect, args, FieldID, true)
	if err != nil {
		return "", "", err
	}
	return typ, e.remap(id, ec), nil
}

// remap returns the stored id of an entity created in this run under the
// temp id, or id unchanged.
func (e *Entities) remap(id string, ec *expr.EvalContext) string {
	if ec == nil || !expr.IsTempID(id, e.tempPrefixFor(ec)) {
		return id
	}
	for _, v := range ec.Results() {
		doc, ok := v.(map[string]any)
		if !ok || doc[FieldTempID] != id {
			continue
		}
		if stored, ok := doc[FieldID].(string); ok {
			return stored
		}
	}
	return id
}

// tempPrefixFor returns the fixed temp prefix, or the prefix of the
// generator behind ec.
func (e *Entities) tempPrefixFor(ec *expr.EvalContext) string {
	if e.tempPrefix != "" {
		return e.tempPrefix
	}
	if ec != nil {
		switch g := ec.TempIDs().(type) {
		case *expr.Sequence:
			return g.Prefix()
		case expr.UUIDGenerator:
			if g.Prefix != "" {
				return g.Prefix
			}
		}
	}
	return expr.DefaultTempPrefix
}

func stringArg(effect string, args map[string]any, name string, required bool) (string, error) {
	v, ok := args[name]
	if !ok || v == nil || expr.IsUndefined(v) {
		if required {
			return "", fmt.Errorf("entity.%s: '%s' is required", effect, name)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("entity.%s: '%s' must be a string, got %T", effect, name, v)
	}
	if s == "" && required {
		return "", fmt.Errorf("entity.%s: '%s' is required", effect, name)
	}
	return s, nil
}

func dataArgs(args map[string]any) Document {
	patch := maps.Clone(args)
	delete(patch, FieldType)
	delete(patch, FieldID)
	delete(patch, FieldTempID)
	return patch
}

func withTempID(doc Document, tempID string) Document {
	if tempID == "" {
		return doc
	}
	out := maps.Clone(doc)
	out[FieldTempID] = tempID
	return out
}

func matches(doc, where Document) bool {
	for k, want := range where {
		got, ok := doc[k]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

