package common

import (
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
)

// IsEqual reports whether two comparable slices hold the same elements in
// the same order.
func IsEqual[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}

	for i, v := range a {
		if b[i] != v {
			return false
		}
	}
	return true
}

// SelectionSetToFields flattens a selection set into its constituent fields,
// descending into inline fragments. If parentDef is non-nil, fields and
// fragments that don't apply to it are skipped.
func SelectionSetToFields(selectionSet ast.SelectionSet, parentDef *ast.Definition) []*ast.Field {
	var result []*ast.Field
	for _, s := range selectionSet {
		switch s := s.(type) {
		case *ast.Field:
			if parentDef != nil && !lo.ContainsBy(parentDef.Fields, func(fd *ast.FieldDefinition) bool {
				return fd.Name == s.Name
			}) {
				continue
			}
			result = append(result, s)
		case *ast.InlineFragment:
			if parentDef != nil && s.TypeCondition != parentDef.Name {
				continue
			}
			result = append(result, SelectionSetToFields(s.SelectionSet, parentDef)...)
		}
	}

	return result
}

// FieldDisplayName returns the alias a field was requested under, falling
// back to its name when no alias was given.
func FieldDisplayName(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}
