// Package host defines the narrow seams this module consumes from the
// outside world: the host GraphQL execution engine that actually runs a
// synthesized sub-operation against an upstream schema, and the pluggable
// fetcher an upstream schema can expose when it isn't reachable in-process.
//
// Both are assumed black boxes per the specification; this package gives
// them a concrete minimal shape so the rest of the module has something to
// call, without shipping any transport of its own.
package host

import (
	"context"

	"github.com/mosaicgql/mosaic/gqlerrors"
	"github.com/vektah/gqlparser/v2/ast"
)

// RawResult is the shape every upstream response is normalized to before the
// delegation engine inspects it: a decoded `data` object plus any errors
// reported alongside it.
type RawResult struct {
	Data   map[string]interface{}
	Errors gqlerrors.ErrorList
}

// Fetcher sends a standalone GraphQL document to an upstream schema reached
// only through some transport outside this module's concern (HTTP, gRPC,
// in-memory test double, ...) and returns its raw result. This is the
// `fetcher(document, variables, context)` seam from the specification's
// upstream schema contract.
type Fetcher func(ctx context.Context, document string, variables map[string]interface{}) (*RawResult, error)

// Executor runs a synthesized operation document against schema and returns
// the decoded root value plus any errors, exactly as the host GraphQL
// execution engine would for a request it received directly. The
// delegation engine's synthesized sub-operations always have exactly one
// root selection; callers read the value at that field's alias out of the
// returned map.
type Executor interface {
	Execute(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList)
}
