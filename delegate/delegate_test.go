package delegate

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mosaicgql/mosaic/gqlerrors"
	"github.com/mosaicgql/mosaic/host"
	"github.com/mosaicgql/mosaic/merger"
	"github.com/mosaicgql/mosaic/recorder"
)

const propertySDL = `
type Property {
	id: ID!
	name: String!
	address: Address!
}

type Address {
	city: String!
}

type Query {
	propertyById(id: ID!): Property
}
`

const bookingSDL = `
type Booking {
	id: ID!
	propertyId: ID!
	checkIn: String!
}

extend type Property {
	bookings: [Booking!]!
}

type Mutation {
	createBooking(propertyId: ID!, checkIn: String!): Booking!
}
`

func buildTypeMap(t *testing.T) (*merger.TypeMap, map[recorder.OriginID]*ast.Schema) {
	t.Helper()
	invs, err := recorder.Record(context.Background(), []recorder.Contribution{
		recorder.FromSDL("properties", propertySDL),
		recorder.FromSDL("bookings", bookingSDL),
	})
	require.NoError(t, err)

	result, err := merger.Merge(invs, nil)
	require.NoError(t, err)
	return result.TypeMap, schemasByOriginForTest(invs)
}

func schemasByOriginForTest(invs []*recorder.Inventory) map[recorder.OriginID]*ast.Schema {
	schemas := make(map[recorder.OriginID]*ast.Schema, len(invs))
	for _, inv := range invs {
		schemas[inv.Origin] = inv.Schema
	}
	return schemas
}

func recordingExecutor(t *testing.T, captured *string, data map[string]interface{}) host.Executor {
	return host.LocalFunc(func(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList) {
		require.Len(t, doc.Operations, 1)
		if captured != nil {
			op := doc.Operations[0]
			*captured = op.SelectionSet[0].(*ast.Field).Name
		}
		return data, nil
	})
}

func loadQuery(t *testing.T, schema *ast.Schema, src string) *ast.QueryDocument {
	t.Helper()
	doc, queryErrs := gqlparser.LoadQuery(schema, src)
	require.Empty(t, queryErrs)
	return doc
}

func TestDelegateBasicFieldRouting(t *testing.T) {
	tm, schemas := buildTypeMap(t)

	doc := loadQuery(t, tm.Schema(), `query Q($id: ID!) { propertyById(id: $id) { id name } }`)
	op := doc.Operations[0]
	field := op.SelectionSet[0].(*ast.Field)

	executor := recordingExecutor(t, nil, map[string]interface{}{
		"propertyById": map[string]interface{}{"id": "p1", "name": "Seaside"},
	})

	engine := NewEngine(tm, map[recorder.OriginID]host.Executor{"properties": executor}, schemas, zerolog.Nop())

	result, errs := engine.Delegate(context.Background(), Request{
		Origin:              "properties",
		OperationType:       ast.Query,
		RootField:           "propertyById",
		Args:                map[string]interface{}{"id": "p1"},
		Selection:           field.SelectionSet,
		VariableDefinitions: op.VariableDefinitions,
		Variables:           map[string]interface{}{"id": "p1"},
	})

	require.Empty(t, errs)
	data, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Seaside", data["name"])
}

func TestDelegateDropsLinkFieldAndInjectsRequiredPath(t *testing.T) {
	tm, schemas := buildTypeMap(t)
	require.NoError(t, tm.SetResolver("Property", "bookings", nil, []string{"id"}))

	doc := loadQuery(t, tm.Schema(), `query Q($id: ID!) { propertyById(id: $id) { name bookings { id checkIn } } }`)
	op := doc.Operations[0]
	field := op.SelectionSet[0].(*ast.Field)

	var sentFields []string
	executor := host.LocalFunc(func(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList) {
		root := doc.Operations[0].SelectionSet[0].(*ast.Field)
		for _, sel := range root.SelectionSet {
			if f, ok := sel.(*ast.Field); ok {
				sentFields = append(sentFields, f.Name)
			}
		}
		return map[string]interface{}{
			"propertyById": map[string]interface{}{"id": "p1", "name": "Seaside"},
		}, nil
	})

	engine := NewEngine(tm, map[recorder.OriginID]host.Executor{"properties": executor}, schemas, zerolog.Nop())

	_, errs := engine.Delegate(context.Background(), Request{
		Origin:              "properties",
		OperationType:       ast.Query,
		RootField:           "propertyById",
		Args:                map[string]interface{}{"id": "p1"},
		Selection:           field.SelectionSet,
		VariableDefinitions: op.VariableDefinitions,
		Variables:           map[string]interface{}{"id": "p1"},
	})

	require.Empty(t, errs)
	assert.Contains(t, sentFields, "id")
	assert.Contains(t, sentFields, "name")
	assert.NotContains(t, sentFields, "bookings")
}

func TestDelegateUnboundFieldReportsMissingLinkResolver(t *testing.T) {
	tm, schemas := buildTypeMap(t)

	doc := loadQuery(t, tm.Schema(), `query Q($id: ID!) { propertyById(id: $id) { id bookings { id } } }`)
	op := doc.Operations[0]
	field := op.SelectionSet[0].(*ast.Field)

	executor := recordingExecutor(t, nil, map[string]interface{}{
		"propertyById": map[string]interface{}{"id": "p1"},
	})

	engine := NewEngine(tm, map[recorder.OriginID]host.Executor{"properties": executor}, schemas, zerolog.Nop())

	_, errs := engine.Delegate(context.Background(), Request{
		Origin:              "properties",
		OperationType:       ast.Query,
		RootField:           "propertyById",
		Args:                map[string]interface{}{"id": "p1"},
		Selection:           field.SelectionSet,
		VariableDefinitions: op.VariableDefinitions,
		Variables:           map[string]interface{}{"id": "p1"},
	})

	require.Len(t, errs, 1)
	assert.Equal(t, gqlerrors.MissingLinkResolver, errs[0].Kind)
}

func TestDelegateMutationRouting(t *testing.T) {
	tm, schemas := buildTypeMap(t)

	doc := loadQuery(t, tm.Schema(), `mutation M($pid: ID!, $checkIn: String!) { createBooking(propertyId: $pid, checkIn: $checkIn) { id checkIn } }`)
	op := doc.Operations[0]
	field := op.SelectionSet[0].(*ast.Field)

	executor := recordingExecutor(t, nil, map[string]interface{}{
		"createBooking": map[string]interface{}{"id": "b1", "checkIn": "2026-09-01"},
	})

	engine := NewEngine(tm, map[recorder.OriginID]host.Executor{"bookings": executor}, schemas, zerolog.Nop())

	result, errs := engine.Delegate(context.Background(), Request{
		Origin:              "bookings",
		OperationType:       ast.Mutation,
		RootField:           "createBooking",
		Args:                map[string]interface{}{"propertyId": "p1", "checkIn": "2026-09-01"},
		Selection:           field.SelectionSet,
		VariableDefinitions: op.VariableDefinitions,
		Variables:           map[string]interface{}{"pid": "p1", "checkIn": "2026-09-01"},
	})

	require.Empty(t, errs)
	data := result.(map[string]interface{})
	assert.Equal(t, "b1", data["id"])
}

func TestDelegateUnknownOriginErrors(t *testing.T) {
	tm, schemas := buildTypeMap(t)
	engine := NewEngine(tm, map[recorder.OriginID]host.Executor{}, schemas, zerolog.Nop())

	_, errs := engine.Delegate(context.Background(), Request{
		Origin:     "missing",
		RootField:  "propertyById",
		Args:       map[string]interface{}{"id": "p1"},
		Selection:  ast.SelectionSet{&ast.Field{Name: "id"}},
		OperationType: ast.Query,
	})

	require.Len(t, errs, 1)
	assert.Equal(t, gqlerrors.DelegationTargetMissing, errs[0].Kind)
}

func TestDelegateFragmentSpreadIsInlined(t *testing.T) {
	tm, schemas := buildTypeMap(t)

	doc := loadQuery(t, tm.Schema(), `
query Q($id: ID!) {
	propertyById(id: $id) {
		...PropertyFields
	}
}

fragment PropertyFields on Property {
	id
	name
	address {
		city
	}
}
`)
	op := doc.Operations[0]
	field := op.SelectionSet[0].(*ast.Field)

	fragments := map[string]*ast.FragmentDefinition{}
	for _, f := range doc.Fragments {
		fragments[f.Name] = f
	}

	var sentFields []string
	executor := host.LocalFunc(func(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList) {
		root := doc.Operations[0].SelectionSet[0].(*ast.Field)
		set := root.SelectionSet
		// A lone top-level fragment spread is rewritten into a single
		// wrapping inline fragment rather than spliced flat into set; unwrap
		// it here to inspect the fields it carries.
		if len(set) == 1 {
			if inline, ok := set[0].(*ast.InlineFragment); ok {
				set = inline.SelectionSet
			}
		}
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				sentFields = append(sentFields, s.Name)
			case *ast.FragmentSpread:
				t.Fatalf("expected fragment spreads to be inlined, found spread %q", s.Name)
			}
		}
		return map[string]interface{}{
			"propertyById": map[string]interface{}{"id": "p1", "name": "Seaside", "address": map[string]interface{}{"city": "Nowhere"}},
		}, nil
	})

	engine := NewEngine(tm, map[recorder.OriginID]host.Executor{"properties": executor}, schemas, zerolog.Nop())

	_, errs := engine.Delegate(context.Background(), Request{
		Origin:              "properties",
		OperationType:       ast.Query,
		RootField:           "propertyById",
		Args:                map[string]interface{}{"id": "p1"},
		Selection:           field.SelectionSet,
		VariableDefinitions: op.VariableDefinitions,
		Variables:           map[string]interface{}{"id": "p1"},
		Fragments:           fragments,
	})

	require.Empty(t, errs)
	assert.ElementsMatch(t, []string{"id", "name", "address"}, sentFields)
}

const searchPropertySDL = `
type Property {
	id: ID!
	name: String!
}

union SearchResult = Property | Booking

type Query {
	search: [SearchResult!]!
}
`

const searchBookingSDL = `
type Booking {
	id: ID!
	checkIn: String!
}

type Query {
	ping: String
}
`

// buildSearchTypeMap wires a union whose members are owned by two different
// origins: Property by "properties" (the same origin that owns the search
// field and its root query) and Booking by "bookings". Booking therefore
// never appears in "properties"'s own schema, which is exactly the setup
// the abstract-type tie-break needs to be exercised against.
func buildSearchTypeMap(t *testing.T) (*merger.TypeMap, map[recorder.OriginID]*ast.Schema) {
	t.Helper()
	invs, err := recorder.Record(context.Background(), []recorder.Contribution{
		recorder.FromSDL("properties", searchPropertySDL),
		recorder.FromSDL("bookings", searchBookingSDL),
	})
	require.NoError(t, err)

	result, err := merger.Merge(invs, nil)
	require.NoError(t, err)
	return result.TypeMap, schemasByOriginForTest(invs)
}

func TestDelegateDropsInlineFragmentForTypeAbsentFromOwnerSchema(t *testing.T) {
	tm, schemas := buildSearchTypeMap(t)

	doc := loadQuery(t, tm.Schema(), `
query Q {
	search {
		... on Property { id name }
		... on Booking { id checkIn }
	}
}
`)
	op := doc.Operations[0]
	field := op.SelectionSet[0].(*ast.Field)

	var sentConditions []string
	executor := host.LocalFunc(func(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList) {
		root := doc.Operations[0].SelectionSet[0].(*ast.Field)
		for _, sel := range root.SelectionSet {
			if inline, ok := sel.(*ast.InlineFragment); ok {
				sentConditions = append(sentConditions, inline.TypeCondition)
			}
		}
		return map[string]interface{}{
			"search": []interface{}{map[string]interface{}{"id": "p1", "name": "Seaside"}},
		}, nil
	})

	engine := NewEngine(tm, map[recorder.OriginID]host.Executor{"properties": executor}, schemas, zerolog.Nop())

	_, errs := engine.Delegate(context.Background(), Request{
		Origin:              "properties",
		OperationType:       ast.Query,
		RootField:           "search",
		Selection:           field.SelectionSet,
		VariableDefinitions: op.VariableDefinitions,
	})

	require.Empty(t, errs)
	assert.Equal(t, []string{"Property"}, sentConditions, "Booking is absent from the properties origin's own schema and must be dropped, not retained against the merged schema")
}
