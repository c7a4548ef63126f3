package host

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mosaicgql/mosaic/gqlerrors"
)

// LocalFunc adapts a plain function to Executor, the way the teacher's
// planner.SequentialPlanner adapts a plain function to its Planner
// interface. Use it when an upstream schema's resolvers already run in the
// same Go process as the merged schema, so "executing against it" is just a
// direct call into the host engine already wired to that schema.
type LocalFunc func(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList)

// Execute implements Executor.
func (f LocalFunc) Execute(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList) {
	return f(ctx, schema, doc, variables, reqCtx)
}
