package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicgql/mosaic/merger"
	"github.com/mosaicgql/mosaic/recorder"
)

const propertySDL = `
type Property {
	id: ID!
	name: String!
}

type Query {
	propertyById(id: ID!): Property
}
`

const bookingSDL = `
type Booking {
	id: ID!
	propertyId: ID!
}

extend type Property {
	bookings: [Booking!]!
}

type Query {
	bookingById(id: ID!): Booking
}
`

func mustMerge(t *testing.T, sdls ...string) *merger.TypeMap {
	t.Helper()

	contributions := make([]recorder.Contribution, len(sdls))
	for i, sdl := range sdls {
		contributions[i] = recorder.FromSDL(recorder.OriginID(string(rune('a'+i))), sdl)
	}

	invs, err := recorder.Record(context.Background(), contributions)
	require.NoError(t, err)

	result, err := merger.Merge(invs, nil)
	require.NoError(t, err)

	return result.TypeMap
}

func TestBindInstallsLinkResolver(t *testing.T) {
	tm := mustMerge(t, propertySDL, bookingSDL)

	err := Bind(tm, ResolverTable{
		"Property": {
			"bookings": &ResolverSpec{
				Fragment: `fragment PropertyBookingKey on Property { id }`,
				Resolve: func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error) {
					return nil, nil
				},
			},
		},
	})
	require.NoError(t, err)

	fe, ok := tm.Field("Property", "bookings")
	require.True(t, ok)
	assert.Equal(t, merger.LinkResolver, fe.Strategy)
	assert.Equal(t, []string{"id"}, fe.RequiredPaths)
}

func TestBindFragmentWithMultipleFields(t *testing.T) {
	tm := mustMerge(t, propertySDL, bookingSDL)

	err := Bind(tm, ResolverTable{
		"Booking": {
			"propertyId": &ResolverSpec{
				Fragment: `fragment BookingKey on Booking { id propertyId }`,
				Resolve:  func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error) { return nil, nil },
			},
		},
	})
	require.NoError(t, err)

	fe, ok := tm.Field("Booking", "propertyId")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"id", "propertyId"}, fe.RequiredPaths)
}

func TestBindUnknownTypeErrors(t *testing.T) {
	tm := mustMerge(t, propertySDL)

	err := Bind(tm, ResolverTable{
		"Nonexistent": {
			"field": &ResolverSpec{Resolve: func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error) { return nil, nil }},
		},
	})
	require.Error(t, err)
}

func TestBindUnknownFieldErrors(t *testing.T) {
	tm := mustMerge(t, propertySDL)

	err := Bind(tm, ResolverTable{
		"Property": {
			"nope": &ResolverSpec{Resolve: func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error) { return nil, nil }},
		},
	})
	require.Error(t, err)
}

func TestBindFragmentWrongTypeConditionErrors(t *testing.T) {
	tm := mustMerge(t, propertySDL, bookingSDL)

	err := Bind(tm, ResolverTable{
		"Property": {
			"bookings": &ResolverSpec{
				Fragment: `fragment Wrong on Booking { id }`,
				Resolve:  func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error) { return nil, nil },
			},
		},
	})
	require.Error(t, err)
}

func TestBindFragmentUnknownFieldErrors(t *testing.T) {
	tm := mustMerge(t, propertySDL, bookingSDL)

	err := Bind(tm, ResolverTable{
		"Property": {
			"bookings": &ResolverSpec{
				Fragment: `fragment Bad on Property { doesNotExist }`,
				Resolve:  func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error) { return nil, nil },
			},
		},
	})
	require.Error(t, err)
}

func TestBindWithoutFragmentHasNoRequiredPaths(t *testing.T) {
	tm := mustMerge(t, propertySDL, bookingSDL)

	err := Bind(tm, ResolverTable{
		"Property": {
			"bookings": &ResolverSpec{
				Resolve: func(parent interface{}, args map[string]interface{}, ctx interface{}, info interface{}) (interface{}, error) { return nil, nil },
			},
		},
	})
	require.NoError(t, err)

	fe, ok := tm.Field("Property", "bookings")
	require.True(t, ok)
	assert.Empty(t, fe.RequiredPaths)
}
