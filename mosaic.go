// Package mosaic is the public entry point: it wires the Schema Recorder,
// Type Merger, Link Resolver Binder, and Delegation Engine into the
// two-phase sequence described in §4.4 — merge first, then build a
// Delegation Engine, then (if the caller's resolvers need to close over a
// Delegate closure) build the resolver table, then bind it — and exposes
// the result as a single MergedSchema with one Delegate entry point.
package mosaic

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mosaicgql/mosaic/delegate"
	"github.com/mosaicgql/mosaic/gqlerrors"
	"github.com/mosaicgql/mosaic/host"
	"github.com/mosaicgql/mosaic/linker"
	"github.com/mosaicgql/mosaic/merger"
	"github.com/mosaicgql/mosaic/recorder"
)

// Config is everything MergeSchemas needs: the contributions to record and
// merge, an optional conflict tie-breaker, the resolver overrides to bind,
// and an optional logger.
type Config struct {
	// Contributions are recorded and merged in order (§4.1/§4.2).
	Contributions []recorder.Contribution

	// OnTypeConflict resolves a name collision between two contributions; a
	// nil value keeps the existing definition (§4.2's default policy).
	OnTypeConflict merger.ConflictFunc

	// Resolvers is either a linker.ResolverTable built up front, or a
	// func(delegate.MergeInfo) linker.ResolverTable for resolvers that need
	// to close over the engine's own Delegate closure before they can be
	// built (the two-phase wiring sequence, §4.4 expansion). Nil skips
	// binding entirely — every field resolves via UpstreamDelegated, and any
	// field introduced by an `extend` block surfaces MissingLinkResolver
	// when queried.
	Resolvers any

	// Logger receives the Delegation Engine's debug-level diagnostics; the
	// recording, merging and binding stages do not log. The zero value is
	// zerolog's disabled logger, matching the teacher's own "logging is
	// opt-in, never required" stance.
	Logger zerolog.Logger
}

// MergedSchema is the result of MergeSchemas: a merged, queryable schema
// plus the one operation this library exists to provide — delegating a
// root field to whichever upstream schema owns it.
type MergedSchema struct {
	schema *ast.Schema
	engine *delegate.Engine
}

// Schema returns the merged, validated schema (§4.2's output).
func (m *MergedSchema) Schema() *ast.Schema {
	return m.schema
}

// Delegate resolves one root field against whichever upstream owns it,
// or against a LinkResolver's own cross-schema fetch. See delegate.Engine.
func (m *MergedSchema) Delegate(ctx context.Context, req delegate.Request) (interface{}, gqlerrors.ErrorList) {
	return m.engine.Delegate(ctx, req)
}

// MergeSchemas runs the full Schema Recorder -> Type Merger -> Link
// Resolver Binder -> Delegation Engine pipeline (§4.1-§4.4) and returns the
// stitched result. Every stage's errors are fatal and returned verbatim —
// only run-time Delegate calls ever produce partial, per-field failures
// (§7).
func MergeSchemas(cfg Config) (*MergedSchema, error) {
	ctx := context.Background()

	inventories, err := recorder.Record(ctx, cfg.Contributions)
	if err != nil {
		return nil, err
	}

	result, err := merger.Merge(inventories, cfg.OnTypeConflict)
	if err != nil {
		return nil, err
	}

	executors := executorsByOrigin(cfg.Contributions, inventories)
	schemas := schemasByOrigin(inventories)

	engine := delegate.NewEngine(result.TypeMap, executors, schemas, cfg.Logger)

	var table linker.ResolverTable
	switch r := cfg.Resolvers.(type) {
	case nil:
	case linker.ResolverTable:
		table = r
	case func(delegate.MergeInfo) linker.ResolverTable:
		table = r(engine.MergeInfo())
	default:
		return nil, gqlerrors.Newf(gqlerrors.MergeConflict, "mosaic.Config.Resolvers: unsupported type %T, expected linker.ResolverTable or func(delegate.MergeInfo) linker.ResolverTable", r)
	}

	if table != nil {
		if err := linker.Bind(result.TypeMap, table); err != nil {
			return nil, err
		}
	}

	return &MergedSchema{schema: result.TypeMap.Schema(), engine: engine}, nil
}

// executorsByOrigin builds the per-origin executor map a delegate.Engine
// dispatches through. A FromSchema/FromSDL contribution that never named a
// host.Executor falls back to host.LocalFunc wrapping a no-op that reports
// DelegationTargetMissing — this only matters for an origin no resolver
// ever actually delegates to (an otherwise-unused contribution is a
// configuration smell, not a reason to make MergeSchemas itself fail).
func executorsByOrigin(contributions []recorder.Contribution, inventories []*recorder.Inventory) map[recorder.OriginID]host.Executor {
	executors := make(map[recorder.OriginID]host.Executor, len(inventories))
	for i, inv := range inventories {
		if exec := contributions[i].Executor(); exec != nil {
			executors[inv.Origin] = exec
			continue
		}
		origin := inv.Origin
		executors[origin] = host.LocalFunc(func(ctx context.Context, schema *ast.Schema, doc *ast.QueryDocument, variables map[string]interface{}, reqCtx interface{}) (map[string]interface{}, gqlerrors.ErrorList) {
			return nil, gqlerrors.ErrorList{gqlerrors.Newf(gqlerrors.DelegationTargetMissing, "origin %q has no executor configured", origin)}
		})
	}
	return executors
}

// schemasByOrigin builds the per-origin schema map a delegate.Engine passes
// to host.Executor.Execute as the owner schema T (§4.4 step 7) — distinct
// from the merged schema the TypeMap describes.
func schemasByOrigin(inventories []*recorder.Inventory) map[recorder.OriginID]*ast.Schema {
	schemas := make(map[recorder.OriginID]*ast.Schema, len(inventories))
	for _, inv := range inventories {
		schemas[inv.Origin] = inv.Schema
	}
	return schemas
}
