// Package delegate implements the Delegation Engine (§4.4): for a field
// whose owning schema differs from the merged schema, it synthesizes a
// sub-operation against that owner, executes it through a host.Executor,
// and folds any upstream errors back onto the caller's error path.
package delegate

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mosaicgql/mosaic/common"
	"github.com/mosaicgql/mosaic/format"
	"github.com/mosaicgql/mosaic/gqlerrors"
	"github.com/mosaicgql/mosaic/host"
	"github.com/mosaicgql/mosaic/merger"
	"github.com/mosaicgql/mosaic/recorder"
)

// Request is one call into the engine: "ask Origin to resolve
// RootField(Args) of OperationType, shaped by Selection." Both the
// automatic resolution of an UpstreamDelegated field and a link resolver's
// own cross-schema fetch go through the same Request shape — the only
// difference is who builds it and which Origin it names.
type Request struct {
	Origin        recorder.OriginID
	OperationType ast.Operation
	RootField     string
	// FieldAlias is the key the root value is read back out under; defaults
	// to RootField when empty.
	FieldAlias string
	Args       map[string]interface{}
	// ParentContext is threaded straight through to host.Executor.Execute's
	// reqCtx parameter; this package never inspects it.
	ParentContext interface{}
	// Selection is the selection set to apply to the delegated root field —
	// normally copied from whatever the caller's own Info.Selection was.
	Selection ast.SelectionSet
	// VariableDefinitions/Variables are the caller's own operation's
	// variable declarations and runtime values, consulted when Selection
	// references a variable by name.
	VariableDefinitions ast.VariableDefinitionList
	Variables           map[string]interface{}
	// Fragments resolves FragmentSpread nodes encountered within Selection.
	Fragments map[string]*ast.FragmentDefinition
	// Path is the caller's current response path, prefixed onto any errors
	// this call produces.
	Path []interface{}
}

// Info is the context a LinkResolver's Resolve function receives: the
// incoming selection on the link field, the caller's variable declarations
// and values, its fragment definitions, the merged schema, the current
// response path, and a bound Delegate closure for reaching across to
// whichever schema the link needs.
type Info struct {
	Selection           ast.SelectionSet
	VariableDefinitions ast.VariableDefinitionList
	Variables           map[string]interface{}
	Fragments           map[string]*ast.FragmentDefinition
	Schema              *ast.Schema
	Path                []interface{}
	Delegate            func(ctx context.Context, req Request) (interface{}, gqlerrors.ErrorList)
}

// MergeInfo is the value handed to a resolver factory during the two-phase
// wiring sequence (§4.4 expansion): it exposes only the Delegate closure, so
// a factory can close over it to build ResolverSpecs before any Info for an
// actual field resolution exists yet.
type MergeInfo struct {
	Delegate func(ctx context.Context, req Request) (interface{}, gqlerrors.ErrorList)
}

// Engine holds only read-only references: the merged TypeMap, the
// per-origin executors, and each origin's own schema. Concurrent Delegate
// calls share no mutable state — every call allocates its own rewrite
// locals and they do not outlive it (§5).
type Engine struct {
	tm        merger.Reader
	executors map[recorder.OriginID]host.Executor
	schemas   map[recorder.OriginID]*ast.Schema
	logger    zerolog.Logger
}

// NewEngine builds an Engine bound to a frozen TypeMap, the set of executors
// reachable from it, and each origin's own schema T — the schema a
// synthesized sub-operation is executed against (§4.4 step 7), distinct
// from the merged schema the TypeMap describes.
func NewEngine(tm merger.Reader, executors map[recorder.OriginID]host.Executor, schemas map[recorder.OriginID]*ast.Schema, logger zerolog.Logger) *Engine {
	return &Engine{tm: tm, executors: executors, schemas: schemas, logger: logger}
}

// MergeInfo returns the wiring-phase handle onto this engine's Delegate.
func (e *Engine) MergeInfo() MergeInfo {
	return MergeInfo{Delegate: e.Delegate}
}

// Delegate runs the full synthesize/execute cycle: Synthesizing while the
// sub-operation is built, Executing while host.Executor runs it, and
// Completed or Failed once it returns. ctx cancellation observed before
// execution starts short-circuits straight to Failed.
func (e *Engine) Delegate(ctx context.Context, req Request) (interface{}, gqlerrors.ErrorList) {
	if err := ctx.Err(); err != nil {
		return nil, gqlerrors.ErrorList{gqlerrors.New(gqlerrors.UpstreamExecutionError, err).WithPathPrefix(req.Path)}
	}

	executor, ok := e.executors[req.Origin]
	if !ok {
		return nil, gqlerrors.ErrorList{gqlerrors.Newf(gqlerrors.DelegationTargetMissing, "no executor registered for origin %q", req.Origin).WithPathPrefix(req.Path)}
	}

	// ownerSchema is T (§4.4 step 7): the schema the synthesized
	// sub-operation is actually run against. Falling back to the merged
	// schema when an origin has no recorded schema of its own should never
	// happen in practice (mosaic.MergeSchemas always populates both maps
	// from the same inventories) but keeps Delegate from passing a nil
	// schema to an Executor that dereferences it.
	ownerSchema := e.schemas[req.Origin]
	if ownerSchema == nil {
		ownerSchema = e.tm.Schema()
	}

	parentTypeName := common.QueryObjectName
	if req.OperationType == ast.Mutation {
		parentTypeName = common.MutationObjectName
	}

	rootParent, ok := e.tm.Type(parentTypeName)
	if !ok {
		return nil, gqlerrors.ErrorList{gqlerrors.Newf(gqlerrors.DelegationTargetMissing, "merged schema has no %s type", parentTypeName).WithPathPrefix(req.Path)}
	}

	rootFieldDef, ok := lo.Find(rootParent.Fields, func(f *ast.FieldDefinition) bool { return f.Name == req.RootField })
	if !ok {
		return nil, gqlerrors.ErrorList{gqlerrors.Newf(gqlerrors.DelegationTargetMissing, "no field %q on %s in merged schema", req.RootField, parentTypeName).WithPathPrefix(req.Path)}
	}

	e.logger.Debug().Str("origin", string(req.Origin)).Str("field", req.RootField).Msg("delegate: synthesizing")

	alias := req.FieldAlias
	if alias == "" {
		alias = req.RootField
	}

	var errs gqlerrors.ErrorList

	argNames := lo.Keys(req.Args)
	sort.Strings(argNames)

	var varDefs ast.VariableDefinitionList
	variables := map[string]interface{}{}
	var argList ast.ArgumentList

	for _, name := range argNames {
		argDef, ok := lo.Find(rootFieldDef.Arguments, func(a *ast.ArgumentDefinition) bool { return a.Name == name })
		if !ok {
			errs = append(errs, gqlerrors.Newf(gqlerrors.VariableCoercionError, "argument %q is not defined on %s.%s", name, parentTypeName, req.RootField).WithPathPrefix(req.Path))
			continue
		}
		freshName := "__arg_" + name
		varDefs = append(varDefs, &ast.VariableDefinition{Variable: freshName, Type: argDef.Type})
		variables[freshName] = req.Args[name]
		argList = append(argList, &ast.Argument{Name: name, Value: &ast.Value{Kind: ast.Variable, Raw: freshName}})
	}

	var returnDef *ast.Definition
	if def, ok := e.tm.Type(rootFieldDef.Type.Name()); ok {
		returnDef = def
	}

	var rewritten ast.SelectionSet
	if returnDef != nil {
		rewritten = e.rewriteSet(returnDef, req.Selection, req.Fragments, req.Path, &errs, ownerSchema)
	} else {
		rewritten = req.Selection
	}
	if len(rewritten) == 0 && len(req.Selection) > 0 {
		rewritten = ast.SelectionSet{&ast.Field{Name: common.TypenameFieldName}}
	}

	used := map[string]bool{}
	collectVariables(rewritten, used)

	var names []string
	for name := range used {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, varName := range names {
		vd, ok := lo.Find(req.VariableDefinitions, func(d *ast.VariableDefinition) bool { return d.Variable == varName })
		if !ok {
			errs = append(errs, gqlerrors.Newf(gqlerrors.VariableCoercionError, "variable $%s has no definition in the incoming operation", varName).WithPathPrefix(req.Path))
			continue
		}
		varDefs = append(varDefs, vd)
		variables[varName] = req.Variables[varName]
	}

	rootSel := &ast.Field{Alias: alias, Name: req.RootField, Arguments: argList, SelectionSet: rewritten}

	op := &ast.OperationDefinition{
		Operation:           req.OperationType,
		VariableDefinitions: varDefs,
		SelectionSet:        ast.SelectionSet{rootSel},
	}

	if e.logger.Debug().Enabled() {
		e.logger.Debug().Str("origin", string(req.Origin)).Str("document", format.Document(op, nil)).Msg("delegate: executing")
	}

	doc := &ast.QueryDocument{Operations: ast.OperationList{op}}

	data, upstreamErrs := executor.Execute(ctx, ownerSchema, doc, variables, req.ParentContext)
	errs = append(errs, upstreamErrs.WithPathPrefix(req.Path)...)

	if len(errs) > 0 {
		e.logger.Debug().Str("origin", string(req.Origin)).Int("errors", len(errs)).Msg("delegate: failed")
	} else {
		e.logger.Debug().Str("origin", string(req.Origin)).Msg("delegate: completed")
	}

	if data == nil {
		return nil, errs
	}

	return data[alias], errs
}

// rewriteSet is the core rewrite pass (§4.4 steps 1-4): it walks set typed
// as parentDef, drops LinkResolver fields while splicing their required
// parent paths in at the same scope, reports Unbound fields as
// gqlerrors.MissingLinkResolver without halting their siblings, drops any
// other field the owner's own schema does not define on that type, inlines
// fragment spreads (the same technique the teacher's sanitizeSelectionSet
// uses to fold *ast.FragmentSpread into a synthetic *ast.InlineFragment
// before routing), and recurses into every retained composite field using
// its own return type as the next parentDef. ownerSchema is T, the
// destination origin's own schema — the abstract-type tie-break drops an
// inline fragment whose type condition names a type absent from T, rather
// than one merely absent from the merged schema, since T is what will
// actually be asked to resolve it (§4.4's "tie-break for abstract types").
func (e *Engine) rewriteSet(parentDef *ast.Definition, set ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, path []interface{}, errs *gqlerrors.ErrorList, ownerSchema *ast.Schema) ast.SelectionSet {
	var out ast.SelectionSet
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if common.IsBuiltinName(s.Name) {
				out = append(out, s)
				continue
			}

			fe, ok := e.tm.Field(parentDef.Name, s.Name)
			if !ok {
				out = append(out, s)
				continue
			}

			switch fe.Strategy {
			case merger.LinkResolver:
				for _, p := range fe.RequiredPaths {
					out = injectRequiredPath(out, strings.Split(p, "."))
				}
			case merger.Unbound:
				*errs = append(*errs, gqlerrors.Newf(gqlerrors.MissingLinkResolver, "field %s.%s has no resolver bound", parentDef.Name, s.Name).WithPathPrefix(append(clonePath(path), common.FieldDisplayName(s))))
			default:
				if ownerSchema != nil {
					if ownerDef := ownerSchema.Types[parentDef.Name]; ownerDef != nil && ownerDef.Fields.ForName(s.Name) == nil {
						continue
					}
				}
				childPath := append(clonePath(path), common.FieldDisplayName(s))
				out = append(out, e.rewriteField(s, fragments, childPath, errs, ownerSchema))
			}
		case *ast.InlineFragment:
			if s.TypeCondition != "" && ownerSchema != nil {
				if _, ok := ownerSchema.Types[s.TypeCondition]; !ok {
					continue
				}
			}
			target := parentDef
			if s.TypeCondition != "" {
				if def, ok := e.tm.Type(s.TypeCondition); ok {
					target = def
				}
			}
			rewritten := e.rewriteSet(target, s.SelectionSet, fragments, path, errs, ownerSchema)
			if len(rewritten) == 0 {
				rewritten = ast.SelectionSet{&ast.Field{Name: common.TypenameFieldName}}
			}
			out = append(out, &ast.InlineFragment{
				TypeCondition:    s.TypeCondition,
				Directives:       s.Directives,
				SelectionSet:     rewritten,
				ObjectDefinition: s.ObjectDefinition,
			})
		case *ast.FragmentSpread:
			def := fragments[s.Name]
			if def == nil {
				def = s.Definition
			}
			if def == nil {
				continue
			}
			inline := &ast.InlineFragment{
				TypeCondition:    def.TypeCondition,
				Directives:       s.Directives,
				SelectionSet:     def.SelectionSet,
				ObjectDefinition: def.Definition,
			}
			out = append(out, e.rewriteSet(parentDef, ast.SelectionSet{inline}, fragments, path, errs, ownerSchema)...)
		}
	}
	return out
}

func (e *Engine) rewriteField(s *ast.Field, fragments map[string]*ast.FragmentDefinition, path []interface{}, errs *gqlerrors.ErrorList, ownerSchema *ast.Schema) *ast.Field {
	if len(s.SelectionSet) == 0 {
		return s
	}

	var childDef *ast.Definition
	if s.Definition != nil {
		childDef, _ = e.tm.Type(s.Definition.Type.Name())
	}
	if childDef == nil {
		return s
	}

	rewritten := e.rewriteSet(childDef, s.SelectionSet, fragments, path, errs, ownerSchema)
	if len(rewritten) == 0 {
		rewritten = ast.SelectionSet{&ast.Field{Name: common.TypenameFieldName}}
	}

	return &ast.Field{
		Alias:            s.Alias,
		Name:             s.Name,
		Arguments:        s.Arguments,
		Directives:       s.Directives,
		SelectionSet:     rewritten,
		Definition:       s.Definition,
		Position:         s.Position,
		ObjectDefinition: s.ObjectDefinition,
	}
}

// injectRequiredPath ensures set contains a (possibly nested) field chain
// for segments, reusing an already-present field at each level rather than
// duplicating it. This is the dual of the teacher's ScrubFields: instead of
// marking an injected field for later removal, it is simply left in the
// result the caller hands back to the host engine as the parent value for
// the dropped LinkResolver field's own later resolution.
func injectRequiredPath(set ast.SelectionSet, segments []string) ast.SelectionSet {
	if len(segments) == 0 {
		return set
	}

	name := segments[0]
	for i, sel := range set {
		f, ok := sel.(*ast.Field)
		if !ok || f.Name != name {
			continue
		}
		if len(segments) > 1 {
			clone := *f
			clone.SelectionSet = injectRequiredPath(f.SelectionSet, segments[1:])
			set[i] = &clone
		}
		return set
	}

	field := &ast.Field{Alias: name, Name: name}
	if len(segments) > 1 {
		field.SelectionSet = injectRequiredPath(nil, segments[1:])
	}
	return append(set, field)
}

func clonePath(path []interface{}) []interface{} {
	return append([]interface{}{}, path...)
}

func collectVariables(set ast.SelectionSet, used map[string]bool) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			for _, a := range s.Arguments {
				collectValueVariables(a.Value, used)
			}
			collectVariables(s.SelectionSet, used)
		case *ast.InlineFragment:
			collectVariables(s.SelectionSet, used)
		}
	}
}

func collectValueVariables(v *ast.Value, used map[string]bool) {
	if v == nil {
		return
	}
	switch v.Kind {
	case ast.Variable:
		used[v.Raw] = true
	case ast.ListValue, ast.ObjectValue:
		for _, c := range v.Children {
			collectValueVariables(c.Value, used)
		}
	}
}
