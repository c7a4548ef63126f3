package common

import (
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// AssembleSchema builds a raw *ast.Schema from a flat type/directive table:
// it wires up the Query/Mutation roots (when present — a contribution that
// only extends another contribution's root type owns no Query/Mutation of
// its own, and that's fine here) plus the interface and union possible-type
// indexes. It does not reload the result through gqlparser, so it never
// fails and never enforces the "a schema must have a Query type" rule a
// full LoadSchema pass would — appropriate for a schema that exists only to
// be handed to a host.Executor as an owner's own type universe, not to be
// independently valid as an executable entry point.
func AssembleSchema(types map[string]*ast.Definition, directives map[string]*ast.DirectiveDefinition) *ast.Schema {
	raw := &ast.Schema{
		Types:         map[string]*ast.Definition{},
		PossibleTypes: map[string][]*ast.Definition{},
		Implements:    map[string][]*ast.Definition{},
		Directives:    directives,
	}

	for name, def := range types {
		raw.Types[name] = def
		switch name {
		case QueryObjectName:
			raw.Query = def
		case MutationObjectName:
			raw.Mutation = def
		}
	}

	for name, def := range types {
		for _, iface := range def.Interfaces {
			raw.AddPossibleType(iface, def)
			if ifaceDef, ok := types[iface]; ok {
				raw.AddImplements(name, ifaceDef)
			}
		}
		if def.Kind == ast.Union {
			for _, member := range def.Types {
				if memberDef, ok := types[member]; ok {
					raw.AddPossibleType(name, memberDef)
				}
			}
		}
	}

	return raw
}

// BuildSchema is AssembleSchema followed by a format-and-reload pass through
// gqlparser, so a programmatically assembled schema gets the same
// structural validation a hand-written one does (a union naming a
// non-object member, a missing Query root, and the like). Used where the
// result must stand on its own as a complete, executable schema — the Type
// Merger's merged output, not a single contribution's own partial schema.
func BuildSchema(types map[string]*ast.Definition, directives map[string]*ast.DirectiveDefinition) (*ast.Schema, error) {
	raw := AssembleSchema(types, directives)

	var buf strings.Builder
	formatter.NewFormatter(&buf).FormatSchema(raw)

	return gqlparser.LoadSchema(&ast.Source{Name: "schema", Input: buf.String()})
}
