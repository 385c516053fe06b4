package Georef

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

var (
	square = orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole   = orb.Ring{{2, 2}, {4, 2}, {4, 4}, {2, 2}}
)

func sampleGeometries() map[string]orb.Geometry {
	return map[string]orb.Geometry{
		"point":           orb.Point{3, 4},
		"multipoint":      orb.MultiPoint{{1, 1}, {2, 3}},
		"linestring":      orb.LineString{{0, 0}, {5, 5}, {10, 0}},
		"multilinestring": orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 5}, {4, 4}}},
		"ring":            square,
		"polygon":         orb.Polygon{square, hole},
		"multipolygon":    orb.MultiPolygon{{square, hole}, {{{20, 20}, {30, 20}, {30, 30}, {20, 20}}}},
		"collection": orb.Collection{
			orb.Point{1, 2},
			orb.LineString{{0, 0}, {1, 0}},
			orb.Collection{orb.Polygon{square}},
		},
	}
}

func requireGeometryInDelta(t *testing.T, want, got orb.Geometry, delta float64) {
	t.Helper()
	require.IsType(t, want, got)
	switch w := want.(type) {
	case orb.Point:
		g := got.(orb.Point)
		require.InDelta(t, w[0], g[0], delta)
		require.InDelta(t, w[1], g[1], delta)
	case orb.MultiPoint:
		g := got.(orb.MultiPoint)
		require.Len(t, g, len(w))
		for i := range w {
			requireGeometryInDelta(t, w[i], g[i], delta)
		}
	case orb.LineString:
		requireGeometryInDelta(t, orb.MultiPoint(w), orb.MultiPoint(got.(orb.LineString)), delta)
	case orb.Ring:
		requireGeometryInDelta(t, orb.MultiPoint(w), orb.MultiPoint(got.(orb.Ring)), delta)
	case orb.MultiLineString:
		g := got.(orb.MultiLineString)
		require.Len(t, g, len(w))
		for i := range w {
			requireGeometryInDelta(t, w[i], g[i], delta)
		}
	case orb.Polygon:
		g := got.(orb.Polygon)
		require.Len(t, g, len(w))
		for i := range w {
			requireGeometryInDelta(t, w[i], g[i], delta)
		}
	case orb.MultiPolygon:
		g := got.(orb.MultiPolygon)
		require.Len(t, g, len(w))
		for i := range w {
			requireGeometryInDelta(t, w[i], g[i], delta)
		}
	case orb.Collection:
		g := got.(orb.Collection)
		require.Len(t, g, len(w))
		for i := range w {
			requireGeometryInDelta(t, w[i], g[i], delta)
		}
	default:
		t.Fatalf("unexpected geometry %T", want)
	}
}

func TestTransformGeometryPreservesStructure(t *testing.T) {
	params := NewAffineParameters(2, 0, 100, 0, -1, 50)

	got := TransformGeometry(orb.Polygon{square, hole}, params)
	want := orb.Polygon{
		{{100, 50}, {120, 50}, {120, 40}, {100, 40}, {100, 50}},
		{{104, 48}, {108, 48}, {108, 46}, {104, 48}},
	}
	require.Equal(t, want, got)

	for name, geom := range sampleGeometries() {
		t.Run(name, func(t *testing.T) {
			out := TransformGeometry(geom, params)
			require.Equal(t, GeomTypeOf(geom), GeomTypeOf(out))
			require.IsType(t, geom, out)
		})
	}
}

func TestTransformGeometryDoesNotMutateInput(t *testing.T) {
	ls := orb.LineString{{1, 2}, {3, 4}}
	_ = TransformGeometry(ls, NewAffineParameters(10, 0, 0, 0, 10, 0))
	require.Equal(t, orb.LineString{{1, 2}, {3, 4}}, ls)
}

func TestTransformGeometryIdentity(t *testing.T) {
	for name, geom := range sampleGeometries() {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, geom, TransformGeometry(geom, IdentityAffine()))
		})
	}
	require.Nil(t, TransformGeometry(nil, IdentityAffine()))
}

func TestTransformGeometryComposition(t *testing.T) {
	p1 := NewAffineParameters(0.5, 0.02, 845000, -0.03, -0.5, 6571000)
	p2 := NewAffineParameters(1.1, -0.2, -3.5, 0.2, 1.1, 12)

	for name, geom := range sampleGeometries() {
		t.Run(name, func(t *testing.T) {
			twice := TransformGeometry(TransformGeometry(geom, p1), p2)
			once := TransformGeometry(geom, p2.Compose(p1))
			requireGeometryInDelta(t, twice, once, 1e-6)
		})
	}
}

func TestTransformGeometryBound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 2}}
	out := TransformGeometry(b, NewAffineParameters(0, -1, 0, 1, 0, 0))
	poly, ok := out.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	require.Equal(t, orb.Bound{Min: orb.Point{-2, 0}, Max: orb.Point{0, 1}}, poly.Bound())
}

func TestTransformLayerKeepsAttributes(t *testing.T) {
	layer := CreateMemoryLayer("parcelles", GeomPolygon)
	layer.SRS = NewSpatialReferenceFromEPSG(2154)
	require.NoError(t, layer.AddField("numero", FieldTypeString))
	require.NoError(t, layer.AddField("surface", FieldTypeReal))
	_, err := layer.AddFeature(orb.Polygon{square}, "12", 100.0)
	require.NoError(t, err)
	_, err = layer.AddFeature(orb.Polygon{square, hole}, "13", nil)
	require.NoError(t, err)

	params := NewAffineParameters(1, 0, 5, 0, 1, 5)
	out := TransformLayer(layer, params)

	require.Equal(t, layer.Fields, out.Fields)
	require.Equal(t, 2, out.GetFeatureCount())
	for i, f := range out.Features {
		require.Equal(t, layer.Features[i].FID, f.FID)
		require.Equal(t, layer.Features[i].Values, f.Values)
		require.Equal(t, TransformGeometry(layer.Features[i].Geometry, params), f.Geometry)
	}
	require.True(t, out.SRS.Equal(layer.SRS))

	out.Features[0].Values[0] = "changed"
	require.Equal(t, "12", layer.Features[0].Values[0])
}
