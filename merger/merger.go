// Package merger implements the Type Merger (§4.2): it folds several
// recorder.Inventory values, in declaration order, into one TypeMap,
// invoking a caller-supplied tie-breaker on name collisions and recording,
// per object/interface field, which upstream schema owns its execution.
package merger

import (
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mosaicgql/mosaic/common"
	"github.com/mosaicgql/mosaic/gqlerrors"
	"github.com/mosaicgql/mosaic/recorder"
)

// Strategy names how a merged field's value is produced.
type Strategy int

const (
	// UpstreamDelegated means the field is answered by delegating to the
	// schema that owns it, the default for every recorded field.
	UpstreamDelegated Strategy = iota
	// LinkResolver means an operator-supplied resolver answers the field,
	// installed by linker.Bind.
	LinkResolver
	// PassthroughScalar marks a leaf scalar field that never needs its own
	// delegation because its value already rides along with its parent.
	// Reserved: nothing in this module currently assigns it automatically;
	// an operator may still set it through a future resolver override.
	PassthroughScalar
	// EnumIdentity marks an enum value that requires no resolution beyond
	// identity mapping. Reserved, same status as PassthroughScalar.
	EnumIdentity
	// UnionTypeResolver marks a field whose abstract return type resolution
	// is read off the owning schema's own `__typename`, never recomputed
	// locally (§4.4). Reserved, same status as PassthroughScalar.
	UnionTypeResolver
	// Unbound marks a field introduced by an `extend` block with no
	// resolver bound yet. Resolving it before linker.Bind installs a
	// LinkResolver strategy is a gqlerrors.MissingLinkResolver error.
	Unbound
)

func (s Strategy) String() string {
	switch s {
	case UpstreamDelegated:
		return "UpstreamDelegated"
	case LinkResolver:
		return "LinkResolver"
	case PassthroughScalar:
		return "PassthroughScalar"
	case EnumIdentity:
		return "EnumIdentity"
	case UnionTypeResolver:
		return "UnionTypeResolver"
	case Unbound:
		return "Unbound"
	default:
		return "Strategy(?)"
	}
}

// ResolveFunc is the resolver signature linker.Bind installs for a
// LinkResolver field: (parent, args, context, info) -> (value, error).
type ResolveFunc func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error)

// FieldEntry is one object/interface field's routing decision.
type FieldEntry struct {
	Strategy Strategy
	// Origin is meaningful when Strategy == UpstreamDelegated.
	Origin recorder.OriginID
	// Resolve is set when Strategy == LinkResolver.
	Resolve ResolveFunc
	// RequiredPaths are the dotted parent-field paths a LinkResolver's
	// fragment annotation requires be present in the selection sent
	// upstream for the parent type (§4.4 step 3). Empty for fields with no
	// fragment annotation.
	RequiredPaths []string
}

// MergedType is one named type's winning definition plus, for object and
// interface kinds, its per-field routing table.
type MergedType struct {
	Definition *ast.Definition
	Origin     recorder.OriginID
	Fields     map[string]*FieldEntry
}

// ConflictFunc resolves a name collision between two contributions'
// definitions for the same type name. Returning existing or incoming keeps
// that definition verbatim; returning a third, freshly built definition is
// also supported (§9 open question) — the merger only inspects which value
// was returned, never how it was produced.
type ConflictFunc func(existing, incoming *ast.Definition) *ast.Definition

// Reader is the read-only view of a TypeMap the Delegation Engine consumes.
// Once Merge (and any linker.Bind pass) has returned, nothing further
// mutates a TypeMap; Reader keeps that a compile-time guarantee for every
// package downstream of merger.
type Reader interface {
	Field(typeName, fieldName string) (*FieldEntry, bool)
	Type(name string) (*ast.Definition, bool)
	TypeNames() []string
	Schema() *ast.Schema
}

// TypeMap is the merged type system: one winning *ast.Definition per name,
// plus routing metadata for every object/interface field. It is built by
// Merge, mutated only by linker.Bind (SetResolver), and read thereafter
// through the Reader interface.
type TypeMap struct {
	types        map[string]*MergedType
	loserOrigins map[string]recorder.OriginID
	schema       *ast.Schema
}

// Field implements Reader.
func (tm *TypeMap) Field(typeName, fieldName string) (*FieldEntry, bool) {
	mt, ok := tm.types[typeName]
	if !ok {
		return nil, false
	}
	fe, ok := mt.Fields[fieldName]
	return fe, ok
}

// Type implements Reader.
func (tm *TypeMap) Type(name string) (*ast.Definition, bool) {
	mt, ok := tm.types[name]
	if !ok {
		return nil, false
	}
	return mt.Definition, true
}

// TypeNames implements Reader.
func (tm *TypeMap) TypeNames() []string {
	return lo.Keys(tm.types)
}

// Schema implements Reader.
func (tm *TypeMap) Schema() *ast.Schema {
	return tm.schema
}

// LoserOrigin reports the origin a name-collision loser came from, when one
// is on record for that type name.
func (tm *TypeMap) LoserOrigin(typeName string) (recorder.OriginID, bool) {
	origin, ok := tm.loserOrigins[typeName]
	return origin, ok
}

// SetResolver installs a LinkResolver strategy for typeName.fieldName. It is
// the only mutator TypeMap exposes, and is meant to be called solely by
// linker.Bind during the bind phase, before MergeSchemas returns. The
// delegate.Engine already holds the TypeMap by then (it is built first so a
// resolver factory can close over its Delegate) and sees the installed
// strategies through it.
func (tm *TypeMap) SetResolver(typeName, fieldName string, resolve ResolveFunc, requiredPaths []string) error {
	mt, ok := tm.types[typeName]
	if !ok {
		return gqlerrors.Newf(gqlerrors.MergeConflict, "cannot bind resolver: type %q not found in merged schema", typeName)
	}
	fe, ok := mt.Fields[fieldName]
	if !ok {
		return gqlerrors.Newf(gqlerrors.MergeConflict, "cannot bind resolver: field %q not found on type %q", fieldName, typeName)
	}
	fe.Strategy = LinkResolver
	fe.Resolve = resolve
	fe.RequiredPaths = requiredPaths
	return nil
}

// MergeResult is the outcome of Merge.
type MergeResult struct {
	TypeMap *TypeMap
}

// Merge folds inventories, in input order, into one TypeMap. A name
// collision invokes onConflict; a nil onConflict keeps the existing
// definition (§4.2's default policy). After every inventory is folded, each
// inventory's deferred `extend` blocks are applied against the winning
// definition for their target type, then the resulting schema is formatted
// back to SDL and reloaded through gqlparser to catch structural breakage
// (an extended union naming a non-object member, and similar) before it
// ever reaches the Delegation Engine.
func Merge(inventories []*recorder.Inventory, onConflict ConflictFunc) (*MergeResult, error) {
	types := map[string]*MergedType{}
	loserOrigins := map[string]recorder.OriginID{}
	directives := map[string]*ast.DirectiveDefinition{}
	var pending []*recorder.PendingExtension

	for _, inv := range inventories {
		for name, def := range inv.Types {
			if common.IsBuiltinName(name) {
				continue
			}
			if err := mergeOne(types, loserOrigins, name, def, inv, onConflict); err != nil {
				return nil, err
			}
		}
		for name, d := range inv.Directives {
			mergeDirective(directives, name, d)
		}
		pending = append(pending, inv.PendingExtensions...)
	}

	for _, ext := range pending {
		mt, ok := types[ext.TargetType]
		if !ok {
			return nil, gqlerrors.Newf(gqlerrors.DanglingExtension, "contribution %d (%s): extend %s: no such type in merged schema", ext.ContributionIndex, ext.Origin, ext.TargetType)
		}
		if err := applyExtension(mt, ext); err != nil {
			return nil, err
		}
	}

	schema, err := buildValidatedSchema(types, directives)
	if err != nil {
		return nil, gqlerrors.Newf(gqlerrors.MergeConflict, "merged schema failed validation: %w", err)
	}

	return &MergeResult{TypeMap: &TypeMap{types: types, loserOrigins: loserOrigins, schema: schema}}, nil
}

func mergeOne(types map[string]*MergedType, loserOrigins map[string]recorder.OriginID, name string, incoming *ast.Definition, inv *recorder.Inventory, onConflict ConflictFunc) error {
	// Work on a copy: the inventory's own schema shares this definition, and
	// root-type unioning and extension appends must not write through to it.
	cp := *incoming
	cp.Fields = append(ast.FieldList(nil), incoming.Fields...)
	cp.Types = append([]string(nil), incoming.Types...)
	cp.EnumValues = append(ast.EnumValueList(nil), incoming.EnumValues...)
	incoming = &cp

	existing, ok := types[name]
	if !ok {
		types[name] = &MergedType{Definition: incoming, Origin: inv.Origin, Fields: fieldsFor(incoming, inv.Origin)}
		return nil
	}

	// Query/Mutation never go through the tie-break callback: a contribution
	// built from an already-executable schema (FromSchema) cannot express its
	// root fields as an `extend` block the way an SDL contribution can, so
	// `type Query { ... }` is the normal, expected shape for every
	// contribution that adds root fields. Treating a second `type Query` as a
	// whole-type collision would silently drop every root field the loser
	// declared; unioning them is what makes composing disjoint sub-queries
	// from several contributions possible at all.
	if common.IsRootObjectName(name) {
		return mergeRootType(existing, incoming, inv)
	}

	winner := existing.Definition
	if onConflict != nil {
		winner = onConflict(existing.Definition, incoming)
	}

	switch winner {
	case incoming:
		loserOrigins[name] = existing.Origin
		types[name] = &MergedType{Definition: winner, Origin: inv.Origin, Fields: fieldsFor(winner, inv.Origin)}
	case existing.Definition:
		loserOrigins[name] = inv.Origin
		// existing wins verbatim; its Fields table is already built.
	default:
		// A freshly constructed third definition (§9 open question):
		// accepted as any other winner, origin left as whichever
		// contribution is currently being folded since neither existing
		// nor incoming is structurally "the" answer anymore.
		types[name] = &MergedType{Definition: winner, Origin: inv.Origin, Fields: fieldsFor(winner, inv.Origin)}
	}
	return nil
}

// mergeRootType unions incoming's fields onto existing's root definition
// in place, tagging each newly added field with inv's origin. Two
// contributions naming the same root field is a genuine conflict (there is
// no tie-break policy for "which contribution answers this field" the way
// there is for a whole competing type), so it is always fatal.
func mergeRootType(existing *MergedType, incoming *ast.Definition, inv *recorder.Inventory) error {
	for _, f := range incoming.Fields {
		if common.IsBuiltinName(f.Name) {
			continue
		}
		if _, exists := existing.Fields[f.Name]; exists {
			return gqlerrors.Newf(gqlerrors.MergeConflict, "contribution %q: %s.%s is declared by more than one contribution", inv.Origin, existing.Definition.Name, f.Name)
		}
		existing.Definition.Fields = append(existing.Definition.Fields, f)
		existing.Fields[f.Name] = &FieldEntry{Strategy: UpstreamDelegated, Origin: inv.Origin}
	}
	return nil
}

func fieldsFor(def *ast.Definition, origin recorder.OriginID) map[string]*FieldEntry {
	if def.Kind != ast.Object && def.Kind != ast.Interface {
		return nil
	}
	fields := map[string]*FieldEntry{}
	for _, f := range def.Fields {
		if common.IsBuiltinName(f.Name) {
			continue
		}
		fields[f.Name] = &FieldEntry{Strategy: UpstreamDelegated, Origin: origin}
	}
	return fields
}

func mergeDirective(directives map[string]*ast.DirectiveDefinition, name string, incoming *ast.DirectiveDefinition) {
	existing, ok := directives[name]
	if !ok {
		directives[name] = incoming
		return
	}
	existing.Locations = lo.Uniq(append(existing.Locations, incoming.Locations...))
}

func applyExtension(mt *MergedType, ext *recorder.PendingExtension) error {
	switch ext.Definition.Kind {
	case ast.Object, ast.Interface:
		if mt.Fields == nil {
			mt.Fields = map[string]*FieldEntry{}
		}
		for _, f := range ext.Definition.Fields {
			if _, exists := mt.Fields[f.Name]; exists {
				return gqlerrors.Newf(gqlerrors.DanglingExtension, "contribution %d (%s): extend %s: field %q already defined (extending an existing field is unsupported)", ext.ContributionIndex, ext.Origin, ext.TargetType, f.Name)
			}
			mt.Definition.Fields = append(mt.Definition.Fields, f)
			mt.Fields[f.Name] = &FieldEntry{Strategy: Unbound, Origin: ext.Origin}
		}
	case ast.Union:
		for _, member := range ext.Definition.Types {
			if !lo.Contains(mt.Definition.Types, member) {
				mt.Definition.Types = append(mt.Definition.Types, member)
			}
		}
	case ast.Enum:
		existingNames := lo.Map(mt.Definition.EnumValues, func(v *ast.EnumValueDefinition, _ int) string { return v.Name })
		for _, v := range ext.Definition.EnumValues {
			if !lo.Contains(existingNames, v.Name) {
				mt.Definition.EnumValues = append(mt.Definition.EnumValues, v)
			}
		}
	default:
		return gqlerrors.Newf(gqlerrors.DanglingExtension, "contribution %d (%s): extend %s: unsupported extension kind %v", ext.ContributionIndex, ext.Origin, ext.TargetType, ext.Definition.Kind)
	}
	return nil
}

func buildValidatedSchema(types map[string]*MergedType, directives map[string]*ast.DirectiveDefinition) (*ast.Schema, error) {
	defs := make(map[string]*ast.Definition, len(types))
	for name, mt := range types {
		defs[name] = mt.Definition
	}
	return common.BuildSchema(defs, directives)
}
