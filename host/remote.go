package host

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mosaicgql/mosaic/format"
	"github.com/mosaicgql/mosaic/gqlerrors"
)

// Remote adapts a Fetcher into an Executor, formatting the synthesized
// document back to GraphQL text (the only wire format a fetcher speaks) and
// decoding its raw result. This realizes the "remote schemas are best
// modeled behind the same local-schema interface" guidance: callers of
// Executor never know whether the schema on the other end is in-process or
// behind a fetcher.
type Remote struct {
	Fetcher Fetcher
}

// Execute implements Executor.
func (r Remote) Execute(ctx context.Context, _ *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, _ interface{}) (map[string]interface{}, gqlerrors.ErrorList) {
	var op *ast.OperationDefinition
	if len(doc.Operations) > 0 {
		op = doc.Operations[0]
	}
	if op == nil {
		return nil, gqlerrors.ErrorList{gqlerrors.Newf(gqlerrors.UpstreamExecutionError, "remote executor: synthesized document has no operation")}
	}

	text := format.Document(op, doc.Fragments)

	res, err := r.Fetcher(ctx, text, variables)
	if err != nil {
		return nil, gqlerrors.ErrorList{gqlerrors.New(gqlerrors.UpstreamExecutionError, err)}
	}
	if res == nil {
		return nil, nil
	}

	return res.Data, res.Errors
}
