// Package recorder implements the Schema Recorder (§4.1): it normalizes
// heterogeneous schema contributions — already-built executable schemas,
// SDL text, or introspected remote schemas — into a per-contribution
// Inventory that the Type Merger folds together.
package recorder

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicgql/mosaic/common"
	"github.com/mosaicgql/mosaic/gqlerrors"
	"github.com/mosaicgql/mosaic/host"
)

// OriginID names one upstream schema contribution. It shows up on every
// field a Type Merger routes back to that schema, and is what resolvers
// pass to Delegate to say which upstream they mean.
type OriginID string

// ResolveFunc is the resolver signature an upstream schema's own fields were
// built with: (parent, args, context, info) -> (value, error). The Schema
// Recorder captures these so the merged TypeMap can fall back to them for
// fields that keep their original owner.
type ResolveFunc func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error)

// ResolverTable is a per-type, per-field table of original resolvers,
// mirroring the shape the Link Resolver Binder later expects for overrides.
type ResolverTable map[string]map[string]ResolveFunc

// Fetcher re-exports host.Fetcher so callers constructing a Contribution
// don't need to import host directly.
type Fetcher = host.Fetcher

// PendingExtension is one `extend type/interface/union/enum ...` SDL block
// that could not be applied yet because the Type Merger hasn't decided the
// winning definition for its target type. Held here, applied by merger.
type PendingExtension struct {
	// TargetType is the name of the type/interface/union/enum being
	// extended.
	TargetType string
	// Definition carries only the incremental fields/members/values this
	// extension adds.
	Definition *ast.Definition
	// Origin is the contribution this extension came from. Fields added
	// this way have no upstream owner (Strategy = Unbound) until a link
	// resolver is bound for them.
	Origin OriginID
	// ContributionIndex is recorded purely for error messages (§4.1:
	// "SDL parse failure is fatal and returns a descriptive error naming
	// the contribution index").
	ContributionIndex int
}

// Inventory is one contribution's normalized record: every named type it
// introduced, tagged with its origin, plus any deferred `extend` blocks.
type Inventory struct {
	Origin OriginID

	// Types holds every non-builtin, non-synthetic-extension type this
	// contribution defines, keyed by name.
	Types map[string]*ast.Definition

	// Resolvers holds the original resolver for each field of each type
	// in Types, when the contribution was built from an executable
	// schema (FromSDL/FromIntrospection contributions have none — their
	// fields route to the origin wholesale via delegation).
	Resolvers ResolverTable

	// Directives carries directive definitions this contribution
	// declares; built-ins are never included here.
	Directives map[string]*ast.DirectiveDefinition

	// PendingExtensions holds this contribution's `extend` blocks.
	PendingExtensions []*PendingExtension

	// Schema is this contribution's own, single-origin schema — distinct
	// from the merged schema the Type Merger later builds across every
	// contribution. The Delegation Engine passes it to host.Executor.Execute
	// as the owning schema T a synthesized sub-operation is run against
	// (§4.4 step 7), so a host.LocalFunc executor resolves it the same way the
	// upstream would have, rather than re-entering the merged schema's own
	// link/delegation strategies.
	Schema *ast.Schema
}

// Contribution is one input to Record: an already-built schema, SDL text,
// or a remote schema reachable only through a Fetcher.
type Contribution struct {
	Origin OriginID

	schema    *ast.Schema
	resolvers ResolverTable

	sdl string

	fetcher Fetcher

	executor host.Executor

	index int // set by Record, used in error messages
}

// FromSchema records a contribution from an already-built executable
// schema, optionally carrying the original resolver for each field.
func FromSchema(origin OriginID, schema *ast.Schema, resolvers ResolverTable) Contribution {
	return Contribution{Origin: origin, schema: schema, resolvers: resolvers}
}

// FromSDL records a contribution parsed from SDL text. `extend` blocks are
// supported and deferred until merge time.
func FromSDL(origin OriginID, sdl string) Contribution {
	return Contribution{Origin: origin, sdl: sdl}
}

// FromIntrospection records a contribution reached only through fetcher: the
// standard introspection query is sent through it and the result is
// reconstructed into an *ast.Schema, realizing "remote schemas are locally
// introspected into a proxy schema" (§6/§9). Delegation at run time reuses
// the same fetcher (wrapped in host.Remote) unless WithExecutor overrides
// it.
func FromIntrospection(origin OriginID, fetcher Fetcher) Contribution {
	return Contribution{Origin: origin, fetcher: fetcher}
}

// WithExecutor attaches the host.Executor that run-time delegation should
// dispatch to for this contribution's origin. FromIntrospection defaults to
// a host.Remote wrapping its own fetcher when this is never called;
// FromSchema/FromSDL contributions have no default and report
// gqlerrors.DelegationTargetMissing at delegate time until one is attached.
func (c Contribution) WithExecutor(e host.Executor) Contribution {
	c.executor = e
	return c
}

// Executor returns the host.Executor attached via WithExecutor, or the
// default host.Remote built from this contribution's own fetcher for a
// FromIntrospection contribution that never had one attached. Returns nil
// when neither applies.
func (c Contribution) Executor() host.Executor {
	if c.executor != nil {
		return c.executor
	}
	if c.fetcher != nil {
		return host.Remote{Fetcher: c.fetcher}
	}
	return nil
}

// Record normalizes every contribution into an Inventory, in input order.
// Contributions are recorded independently of each other; contributions
// that require a network round trip (FromIntrospection) are fetched
// concurrently.
func Record(ctx context.Context, contributions []Contribution) ([]*Inventory, error) {
	inventories := make([]*Inventory, len(contributions))

	g, gctx := errgroup.WithContext(ctx)
	for i := range contributions {
		i := i
		contributions[i].index = i
		g.Go(func() error {
			inv, err := recordOne(gctx, contributions[i])
			if err != nil {
				return err
			}
			inventories[i] = inv
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return inventories, nil
}

func recordOne(ctx context.Context, c Contribution) (*Inventory, error) {
	switch {
	case c.schema != nil:
		return recordSchema(c), nil
	case c.sdl != "":
		return recordSDL(c)
	case c.fetcher != nil:
		schema, err := introspect(ctx, c.fetcher, string(c.Origin))
		if err != nil {
			return nil, gqlerrors.Newf(gqlerrors.SDLParseError, "contribution %d (%s): introspection failed: %w", c.index, c.Origin, err)
		}
		return recordSchema(Contribution{Origin: c.Origin, schema: schema}), nil
	default:
		return nil, gqlerrors.Newf(gqlerrors.SDLParseError, "contribution %d (%s): empty contribution", c.index, c.Origin)
	}
}

func recordSchema(c Contribution) *Inventory {
	inv := &Inventory{
		Origin:     c.Origin,
		Types:      map[string]*ast.Definition{},
		Resolvers:  ResolverTable{},
		Directives: map[string]*ast.DirectiveDefinition{},
		Schema:     c.schema,
	}

	for name, def := range c.schema.Types {
		if common.IsBuiltinName(name) {
			continue
		}
		inv.Types[name] = def

		if c.resolvers != nil {
			if fields, ok := c.resolvers[name]; ok {
				inv.Resolvers[name] = fields
			}
		}
	}

	for name, dir := range c.schema.Directives {
		if dir.Position != nil && dir.Position.Src != nil && dir.Position.Src.BuiltIn {
			continue
		}
		inv.Directives[name] = dir
	}

	return inv
}

func recordSDL(c Contribution) (*Inventory, error) {
	doc, err := parseSDL(c.sdl, string(c.Origin))
	if err != nil {
		return nil, gqlerrors.Newf(gqlerrors.SDLParseError, "contribution %d (%s): %w", c.index, c.Origin, err)
	}

	inv := &Inventory{
		Origin:     c.Origin,
		Types:      map[string]*ast.Definition{},
		Resolvers:  ResolverTable{},
		Directives: map[string]*ast.DirectiveDefinition{},
	}

	for _, def := range doc.Definitions {
		inv.Types[def.Name] = def
	}

	for _, ext := range doc.Extensions {
		inv.PendingExtensions = append(inv.PendingExtensions, &PendingExtension{
			TargetType:        ext.Name,
			Definition:        ext,
			Origin:            c.Origin,
			ContributionIndex: c.index,
		})
	}

	for _, dir := range doc.Directives {
		inv.Directives[dir.Name] = dir
	}

	// A contribution's own schema commonly has no Query/Mutation type of its
	// own (a contribution that only extends another contribution's root
	// type, the normal shape for a second or later service, see §4.2), so
	// this is assembled directly rather than round-tripped through
	// gqlparser.LoadSchema's "a schema must have a Query type" validation.
	inv.Schema = common.AssembleSchema(inv.Types, inv.Directives)

	return inv, nil
}

// parseSDL parses SDL text into an unmerged *ast.SchemaDocument, keeping
// `type` definitions and `extend` blocks separate so the Type Merger can
// defer extensions until the winning base definition is known. This uses
// gqlparser's low-level parser directly rather than gqlparser.LoadSchema,
// which would eagerly apply extensions onto a schema of their own.
func parseSDL(sdl, origin string) (*ast.SchemaDocument, error) {
	return parser.ParseSchema(&ast.Source{Name: fmt.Sprintf("schema:%s", origin), Input: sdl})
}
