package recorder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/mosaicgql/mosaic/common"
)

// introspect sends the standard introspection query through fetcher and
// reconstructs the result into a locally usable *ast.Schema, the same
// proxy-schema technique the teacher's introspection/remote.go uses, minus
// its HTTP transport (that lives behind Fetcher now, supplied by the
// caller).
func introspect(ctx context.Context, fetch Fetcher, origin string) (*ast.Schema, error) {
	res, err := fetch(ctx, introspectionQuery, nil)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Data == nil {
		return nil, fmt.Errorf("introspection of %q returned no data", origin)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("introspection of %q failed: %s", origin, res.Errors.Error())
	}

	raw, err := json.Marshal(res.Data)
	if err != nil {
		return nil, err
	}

	var result introspectionQueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("introspection of %q: decoding response: %w", origin, err)
	}

	return buildSchema(result.Schema, origin)
}

// buildSchema turns a decoded introspection response into an *ast.Schema,
// then round-trips it through the SDL printer and gqlparser.LoadSchema to
// normalize it exactly as any other contribution would be.
func buildSchema(schema *introspectionQuerySchema, origin string) (*ast.Schema, error) {
	if schema == nil {
		return nil, fmt.Errorf("introspection of %q: empty __schema", origin)
	}

	queryName := common.QueryObjectName
	if schema.QueryType != nil {
		queryName = schema.QueryType.Name
	}
	mutationName := ""
	if schema.MutationType != nil {
		mutationName = schema.MutationType.Name
	}
	subscriptionName := ""
	if schema.SubscriptionType != nil {
		subscriptionName = schema.SubscriptionType.Name
	}

	built := &ast.Schema{
		Types:         map[string]*ast.Definition{},
		PossibleTypes: map[string][]*ast.Definition{},
		Implements:    map[string][]*ast.Definition{},
		Directives:    map[string]*ast.DirectiveDefinition{},
	}

	definitionsByName := map[string]*ast.Definition{}

	for _, t := range schema.Types {
		if common.IsBuiltinName(t.Name) {
			continue
		}
		def := parseType(t)
		definitionsByName[t.Name] = def
		built.Types[t.Name] = def

		switch t.Name {
		case queryName:
			def.Name = common.QueryObjectName
			built.Types[common.QueryObjectName] = def
			built.Query = def
		case mutationName:
			built.Mutation = def
		case subscriptionName:
			built.Subscription = def
		}
	}

	for _, t := range schema.Types {
		def := definitionsByName[t.Name]
		if def == nil {
			continue
		}
		for _, iface := range t.Interfaces {
			built.AddPossibleType(iface.Name, def)
			built.AddImplements(t.Name, definitionsByName[iface.Name])
		}
		for _, possible := range t.PossibleTypes {
			if pd := definitionsByName[possible.Name]; pd != nil {
				built.AddPossibleType(t.Name, pd)
			}
		}
	}

	for _, d := range schema.Directives {
		if d.Name == "skip" || d.Name == "include" || d.Name == "deprecated" {
			continue
		}
		built.Directives[d.Name] = &ast.DirectiveDefinition{
			Name:        d.Name,
			Description: d.Description,
			Arguments:   parseArgList(d.Args),
			Locations:   d.Locations,
		}
	}

	var buf fmtWriter
	formatter.NewFormatter(&buf).FormatSchema(built)

	normalized, err := gqlparser.LoadSchema(&ast.Source{Name: fmt.Sprintf("introspection:%s", origin), Input: buf.String()})
	if err != nil {
		return nil, fmt.Errorf("introspection of %q: reconstructed schema failed to reload: %w", origin, err)
	}

	return normalized, nil
}

func parseType(t introspectionQueryFullType) *ast.Definition {
	def := &ast.Definition{
		Name:        t.Name,
		Description: t.Description,
	}

	switch t.Kind {
	case "OBJECT":
		def.Kind = ast.Object
	case "INTERFACE":
		def.Kind = ast.Interface
	case "UNION":
		def.Kind = ast.Union
	case "ENUM":
		def.Kind = ast.Enum
	case "INPUT_OBJECT":
		def.Kind = ast.InputObject
	case "SCALAR":
		def.Kind = ast.Scalar
	default:
		def.Kind = ast.Object
	}

	for _, f := range t.Fields {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        f.Name,
			Description: f.Description,
			Arguments:   parseArgList(f.Args),
			Type:        parseTypeRef(f.Type),
		})
	}

	for _, f := range t.InputFields {
		def.Fields = append(def.Fields, parseInputField(f))
	}

	for _, iface := range t.Interfaces {
		def.Interfaces = append(def.Interfaces, iface.Name)
	}

	for _, ev := range t.EnumValues {
		def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
			Name:        ev.Name,
			Description: ev.Description,
		})
	}

	return def
}

func parseInputField(f introspectionInputValue) *ast.FieldDefinition {
	fd := &ast.FieldDefinition{
		Name:        f.Name,
		Description: f.Description,
		Type:        parseTypeRef(f.Type),
	}

	if f.DefaultValue != nil {
		fd.DefaultValue = parseDefaultValue(*f.DefaultValue, fd.Type)
	}

	return fd
}

func parseDefaultValue(raw string, typ *ast.Type) *ast.Value {
	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return &ast.Value{Kind: ast.StringValue, Raw: raw}
	}

	switch v := decoded.(type) {
	case []interface{}:
		val := &ast.Value{Kind: ast.ListValue}
		for _, item := range v {
			b, _ := json.Marshal(item)
			val.Children = append(val.Children, &ast.ChildValue{Value: parseDefaultValue(string(b), typ.Elem)})
		}
		return val
	case bool:
		return &ast.Value{Kind: ast.BooleanValue, Raw: raw}
	case float64:
		return &ast.Value{Kind: ast.IntValue, Raw: raw}
	default:
		return &ast.Value{Kind: ast.StringValue, Raw: raw}
	}
}

func parseArgList(args []introspectionInputValue) ast.ArgumentDefinitionList {
	var out ast.ArgumentDefinitionList
	for _, a := range args {
		ad := &ast.ArgumentDefinition{
			Name:        a.Name,
			Description: a.Description,
			Type:        parseTypeRef(a.Type),
		}
		if a.DefaultValue != nil {
			ad.DefaultValue = parseDefaultValue(*a.DefaultValue, ad.Type)
		}
		out = append(out, ad)
	}
	return out
}

func parseTypeRef(ref introspectionTypeRef) *ast.Type {
	switch ref.Kind {
	case "NON_NULL":
		inner := parseTypeRef(*ref.OfType)
		inner.NonNull = true
		return inner
	case "LIST":
		return ast.ListType(parseTypeRef(*ref.OfType), nil)
	default:
		return ast.NamedType(ref.Name, nil)
	}
}

// fmtWriter is a minimal io.Writer that accumulates everything written to it
// in a byte slice.
type fmtWriter struct {
	buf []byte
}

func (w *fmtWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *fmtWriter) String() string {
	return string(w.buf)
}

// introspectionQuery is the standard GraphQL introspection query, unchanged
// from the wire format every GraphQL server implements it with.
const introspectionQuery = `
query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      ...FullType
    }
    directives {
      name
      description
      locations
      args {
        ...InputValue
      }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args {
      ...InputValue
    }
    type {
      ...TypeRef
    }
    isDeprecated
    deprecationReason
  }
  inputFields {
    ...InputValue
  }
  interfaces {
    name
  }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes {
    name
  }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType {
                kind
                name
              }
            }
          }
        }
      }
    }
  }
}
`

type introspectionQueryResult struct {
	Schema *introspectionQuerySchema `json:"__schema"`
}

type introspectionQuerySchema struct {
	QueryType        *introspectionQueryRootType `json:"queryType"`
	MutationType     *introspectionQueryRootType `json:"mutationType"`
	SubscriptionType *introspectionQueryRootType `json:"subscriptionType"`
	Types            []introspectionQueryFullType `json:"types"`
	Directives       []introspectionQueryDirective `json:"directives"`
}

type introspectionQueryRootType struct {
	Name string `json:"name"`
}

type introspectionQueryDirective struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Locations   []ast.DirectiveLocation    `json:"locations"`
	Args        []introspectionInputValue  `json:"args"`
}

type introspectionQueryFullTypeField struct {
	Name              string                    `json:"name"`
	Description       string                    `json:"description"`
	Args              []introspectionInputValue `json:"args"`
	Type              introspectionTypeRef      `json:"type"`
	IsDeprecated      bool                      `json:"isDeprecated"`
	DeprecationReason string                    `json:"deprecationReason"`
}

type introspectionQueryFullType struct {
	Kind          string                             `json:"kind"`
	Name          string                             `json:"name"`
	Description   string                             `json:"description"`
	InputFields   []introspectionInputValue           `json:"inputFields"`
	Interfaces    []introspectionTypeRef              `json:"interfaces"`
	PossibleTypes []introspectionTypeRef              `json:"possibleTypes"`
	Fields        []introspectionQueryFullTypeField   `json:"fields"`
	EnumValues    []introspectionQueryEnumDefinition  `json:"enumValues"`
}

type introspectionQueryEnumDefinition struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	IsDeprecated      bool   `json:"isDeprecated"`
	DeprecationReason string `json:"deprecationReason"`
}

type introspectionInputValue struct {
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	DefaultValue *string              `json:"defaultValue"`
	Type         introspectionTypeRef `json:"type"`
}

type introspectionTypeRef struct {
	Kind   string                 `json:"kind"`
	Name   string                 `json:"name"`
	OfType *introspectionTypeRef  `json:"ofType"`
}
