// Package linker implements the Link Resolver Binder (§4.3): it accepts
// operator-supplied resolver overrides — including fragment annotations for
// fields the resolver needs read off its parent type — and attaches them to
// a merger.TypeMap, replacing whatever upstream-owned strategy the field had
// before.
package linker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/mosaicgql/mosaic/common"
	"github.com/mosaicgql/mosaic/gqlerrors"
	"github.com/mosaicgql/mosaic/merger"
)

// ResolveFunc is re-exported from merger so callers building a ResolverTable
// don't need to import merger directly just for this type.
type ResolveFunc = merger.ResolveFunc

// ResolverSpec is one link field's override: the resolver itself, plus an
// optional fragment (in SDL fragment syntax, on the field's parent type)
// naming the fields the resolver needs present on its parent value.
type ResolverSpec struct {
	Fragment string
	Resolve  ResolveFunc
}

// ResolverTable is the full set of overrides to bind, keyed by type name
// then field name.
type ResolverTable map[string]map[string]*ResolverSpec

// Bind validates every (type, field) in table against schema, reduces each
// spec's fragment (when present) to a set of required parent-field paths,
// and installs the resulting strategy on tm. A field named in table that
// doesn't exist on the merged schema (neither natively nor via a recorded
// `extend`) is a binding error, not silently ignored, per the invariant
// that a LinkResolver's target field must already exist in the TypeMap.
func Bind(tm *merger.TypeMap, table ResolverTable) error {
	for typeName, fields := range table {
		def, ok := tm.Type(typeName)
		if !ok {
			return gqlerrors.Newf(gqlerrors.MergeConflict, "linker.Bind: type %q not found in merged schema", typeName)
		}

		for fieldName, spec := range fields {
			if _, ok := tm.Field(typeName, fieldName); !ok {
				return gqlerrors.Newf(gqlerrors.MergeConflict, "linker.Bind: field %q not found on type %q", fieldName, typeName)
			}

			var paths []string
			if spec.Fragment != "" {
				p, err := requiredPaths(tm.Schema(), def, spec.Fragment)
				if err != nil {
					return gqlerrors.Newf(gqlerrors.MergeConflict, "linker.Bind: %s.%s: %w", typeName, fieldName, err)
				}
				paths = p
			}

			if err := tm.SetResolver(typeName, fieldName, spec.Resolve, paths); err != nil {
				return err
			}
		}
	}
	return nil
}

// requiredPaths parses fragment as a standalone fragment definition typed on
// parent, validates every field it names against schema (the only document
// in scope, per the invariant that fragment annotations bind only to types
// that exist in the merged schema at bind time), and reduces its selection
// set to dotted field-path strings rooted at parent. Validation is done by
// hand, walking schema.Types directly, rather than by synthesizing a dummy
// operation to feed gqlparser.LoadQuery: a fragment typed on an arbitrary
// parent has no root operation type it can be legally spread into, so the
// usual "parse the whole document, let the validator catch it" path doesn't
// apply here.
func requiredPaths(schema *ast.Schema, parent *ast.Definition, fragment string) ([]string, error) {
	bare, err := parser.ParseQuery(&ast.Source{Name: "fragment", Input: fragment})
	if err != nil {
		return nil, err
	}
	if len(bare.Fragments) != 1 {
		return nil, fmt.Errorf("expected exactly one fragment definition, got %d", len(bare.Fragments))
	}

	frag := bare.Fragments[0]
	if frag.TypeCondition != parent.Name {
		return nil, fmt.Errorf("fragment %s is typed on %q, expected %q", frag.Name, frag.TypeCondition, parent.Name)
	}

	var paths []string
	if err := validateAndCollect(schema, bare.Fragments, parent, frag.SelectionSet, nil, &paths); err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return lo.Uniq(paths), nil
}

func validateAndCollect(schema *ast.Schema, fragments ast.FragmentDefinitionList, parent *ast.Definition, set ast.SelectionSet, prefix []string, out *[]string) error {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if common.IsBuiltinName(s.Name) {
				continue
			}
			field := lo.FindOrElse(parent.Fields, nil, func(f *ast.FieldDefinition) bool { return f.Name == s.Name })
			if field == nil {
				return fmt.Errorf("field %q does not exist on type %q", s.Name, parent.Name)
			}

			path := append(append([]string{}, prefix...), s.Name)
			if len(s.SelectionSet) == 0 {
				*out = append(*out, strings.Join(path, "."))
				continue
			}

			childDef, ok := schema.Types[field.Type.Name()]
			if !ok {
				return fmt.Errorf("field %q on type %q has unknown return type %q", s.Name, parent.Name, field.Type.Name())
			}
			if err := validateAndCollect(schema, fragments, childDef, s.SelectionSet, path, out); err != nil {
				return err
			}
		case *ast.InlineFragment:
			target := parent
			if s.TypeCondition != "" {
				def, ok := schema.Types[s.TypeCondition]
				if !ok {
					return fmt.Errorf("inline fragment names unknown type %q", s.TypeCondition)
				}
				target = def
			}
			if err := validateAndCollect(schema, fragments, target, s.SelectionSet, prefix, out); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			nested, ok := lo.Find(fragments, func(f *ast.FragmentDefinition) bool { return f.Name == s.Name })
			if !ok {
				return fmt.Errorf("fragment spread ...%s has no matching definition", s.Name)
			}
			target := parent
			if nested.TypeCondition != "" {
				def, ok := schema.Types[nested.TypeCondition]
				if !ok {
					return fmt.Errorf("fragment %s names unknown type %q", nested.Name, nested.TypeCondition)
				}
				target = def
			}
			if err := validateAndCollect(schema, fragments, target, nested.SelectionSet, prefix, out); err != nil {
				return err
			}
		}
	}
	return nil
}
