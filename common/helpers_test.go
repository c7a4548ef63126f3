package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestIsEqual(t *testing.T) {
	assert.True(t, IsEqual([]string{"a", "b"}, []string{"a", "b"}))
	assert.False(t, IsEqual([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, IsEqual([]string{"a"}, []string{"a", "b"}))
	assert.True(t, IsEqual([]string{}, []string{}))
}

func TestIsBuiltinName(t *testing.T) {
	assert.True(t, IsBuiltinName("__Schema"))
	assert.True(t, IsBuiltinName("__typename"))
	assert.True(t, IsBuiltinName("String"))
	assert.True(t, IsBuiltinName("ID"))
	assert.False(t, IsBuiltinName("Property"))
	assert.False(t, IsBuiltinName("Query"))
}

func TestIsRootObjectName(t *testing.T) {
	assert.True(t, IsRootObjectName(QueryObjectName))
	assert.True(t, IsRootObjectName(MutationObjectName))
	assert.False(t, IsRootObjectName("Subscription"))
	assert.False(t, IsRootObjectName("Property"))
}

const fieldDisplaySchema = `
type Property {
	id: ID!
	name: String!
	address: Address!
}

type Address {
	city: String!
}

union SearchResult = Property

type Query {
	propertyById(id: ID!): Property
	search: [SearchResult!]!
}
`

func mustLoadQuery(t *testing.T, src string) (*ast.Schema, *ast.QueryDocument) {
	t.Helper()
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "test", Input: fieldDisplaySchema})
	require.NoError(t, err)
	doc, queryErrs := gqlparser.LoadQuery(schema, src)
	require.Empty(t, queryErrs)
	return schema, doc
}

func TestSelectionSetToFieldsFlattensInlineFragments(t *testing.T) {
	_, doc := mustLoadQuery(t, `
	query {
		search {
			... on Property { id name }
		}
	}
	`)

	root := doc.Operations[0].SelectionSet[0].(*ast.Field)
	fields := SelectionSetToFields(root.SelectionSet, nil)
	require.Len(t, fields, 2)
	assert.Equal(t, "id", fields[0].Name)
	assert.Equal(t, "name", fields[1].Name)
}

func TestSelectionSetToFieldsSkipsFragmentsForOtherTypes(t *testing.T) {
	schema, doc := mustLoadQuery(t, `
	query {
		search {
			... on Property { id }
		}
	}
	`)

	root := doc.Operations[0].SelectionSet[0].(*ast.Field)
	propertyDef := schema.Types["Property"]
	addressDef := schema.Types["Address"]

	assert.Len(t, SelectionSetToFields(root.SelectionSet, propertyDef), 1)
	assert.Empty(t, SelectionSetToFields(root.SelectionSet, addressDef))
}

func TestSelectionSetToFieldsSkipsFieldsNotOnParent(t *testing.T) {
	_, doc := mustLoadQuery(t, `
	query {
		propertyById(id: "p1") { id name address { city } }
	}
	`)

	root := doc.Operations[0].SelectionSet[0].(*ast.Field)
	propertyDef := &ast.Definition{Name: "Property", Fields: ast.FieldList{{Name: "id"}, {Name: "name"}}}

	fields := SelectionSetToFields(root.SelectionSet, propertyDef)
	require.Len(t, fields, 2)
	assert.Equal(t, "id", fields[0].Name)
	assert.Equal(t, "name", fields[1].Name)
}

func TestFieldDisplayName(t *testing.T) {
	assert.Equal(t, "name", FieldDisplayName(&ast.Field{Name: "name"}))
	assert.Equal(t, "n", FieldDisplayName(&ast.Field{Name: "name", Alias: "n"}))
}
