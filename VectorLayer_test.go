package Georef

import (
	"context"
	"testing"
	"time"

	"github.com/GrainArc/Georef/internal/logger"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestVectorLayerAddFieldAndFeature(t *testing.T) {
	layer := CreateMemoryLayer("parcelles", GeomPolygon)
	require.NoError(t, layer.AddField("numero", FieldTypeString))
	require.Error(t, layer.AddField("numero", FieldTypeString))
	require.Error(t, layer.AddField("geom", FieldTypeString))
	require.Error(t, layer.AddField("", FieldTypeString))

	f, err := layer.AddFeature(orb.Polygon{square}, "1")
	require.NoError(t, err)
	require.Equal(t, int64(1), f.FID)
	_, err = layer.AddFeature(orb.Polygon{square})
	require.Error(t, err)

	layer.Features[0].FID = 41
	f, err = layer.AddFeature(nil, "2")
	require.NoError(t, err)
	require.Equal(t, int64(42), f.FID)

	require.Error(t, layer.AddField("surface", FieldTypeReal))
	require.Equal(t, 2, layer.GetFeatureCount())
	require.Equal(t, 1, layer.GetFieldCount())
	require.Equal(t, "numero", layer.GetFieldName(0))
	require.Equal(t, "", layer.GetFieldName(3))

	v, ok := layer.Value(f, "numero")
	require.True(t, ok)
	require.Equal(t, "2", v)
	_, ok = layer.Value(f, "surface")
	require.False(t, ok)
}

func TestVectorLayerBound(t *testing.T) {
	layer := CreateMemoryLayer("batiments", GeomUnknown)
	_, ok := layer.Bound()
	require.False(t, ok)

	_, _ = layer.AddFeature(nil)
	_, _ = layer.AddFeature(orb.MultiPolygon{})
	_, ok = layer.Bound()
	require.False(t, ok)

	_, _ = layer.AddFeature(orb.Point{-5, 3})
	_, _ = layer.AddFeature(orb.Polygon{square})
	b, ok := layer.Bound()
	require.True(t, ok)
	require.Equal(t, orb.Bound{Min: orb.Point{-5, 0}, Max: orb.Point{10, 10}}, b)
}

func TestVectorLayerCloneAndSpatialRef(t *testing.T) {
	layer := CreateMemoryLayer("parcelles", GeomPolygon)
	require.NoError(t, layer.AddField("numero", FieldTypeString))
	_, _ = layer.AddFeature(orb.Polygon{square}, "1")

	clone := layer.Clone()
	clone.Features[0].Geometry.(orb.Polygon)[0][0] = orb.Point{99, 99}
	clone.Fields[0].Name = "changed"
	require.Equal(t, orb.Point{0, 0}, layer.Features[0].Geometry.(orb.Polygon)[0][0])
	require.Equal(t, "numero", layer.Fields[0].Name)

	require.Nil(t, layer.SetSpatialRef(NewSpatialReferenceFromEPSG(4326)))
	previous := layer.SetSpatialRef(NewSpatialReferenceFromEPSG(2154))
	require.Equal(t, 4326, previous.EPSG)
	require.Equal(t, 2154, layer.SRS.EPSG)
	require.Equal(t, 2154, layer.SetSpatialRef(nil).EPSG)
	require.Nil(t, layer.SRS)
}

func TestVectorLayerLogLayerInfo(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))

	layer := CreateMemoryLayer("parcelles", GeomPolygon)
	require.NoError(t, layer.AddField("numero", FieldTypeString))
	_, _ = layer.AddFeature(orb.Polygon{square}, "1")
	layer.LogLayerInfo(ctx)

	entries := logs.FilterMessage("图层信息").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "parcelles", fields["layer"])
	require.Equal(t, int64(1), fields["features"])
	require.Equal(t, "POLYGON", fields["geometry_type"])
}

func TestGeomTypes(t *testing.T) {
	require.Equal(t, GeomMultiPolygon, ParseGeomType(" multipolygon "))
	require.Equal(t, GeomUnknown, ParseGeomType("CURVEPOLYGON"))
	require.Equal(t, "GEOMETRYCOLLECTION", GeomCollection.String())
	require.Equal(t, "GEOMETRY", GeomType(42).String())
	require.Equal(t, GeomPolygon, GeomTypeOf(orb.Ring{}))
	require.Equal(t, GeomPolygon, GeomTypeOf(orb.Bound{}))
	require.Equal(t, GeomUnknown, GeomTypeOf(nil))
}

func TestFieldTypeMapping(t *testing.T) {
	tests := []struct {
		decl  string
		want  FieldType
		width int
	}{
		{"INTEGER", FieldTypeInteger64, 0},
		{"MEDIUMINT", FieldTypeInteger, 0},
		{"REAL", FieldTypeReal, 0},
		{"DOUBLE", FieldTypeReal, 0},
		{"TEXT", FieldTypeString, 0},
		{"TEXT(80)", FieldTypeString, 80},
		{"text ( 12 )", FieldTypeString, 12},
		{"BOOLEAN", FieldTypeBoolean, 0},
		{"DATE", FieldTypeDate, 0},
		{"DATETIME", FieldTypeDateTime, 0},
		{"BLOB", FieldTypeBinary, 0},
		{"GEOMETRY", FieldTypeString, 0},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			got, width := mapGeoPackageTypeToField(tt.decl)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.width, width)

			back, _ := mapGeoPackageTypeToField(mapFieldTypeToGeoPackage(FieldDefn{Type: got, Width: width}))
			require.Equal(t, got, back)
		})
	}
}

func TestFieldValueConversion(t *testing.T) {
	when := time.Date(2025, 3, 1, 10, 20, 30, 0, time.FixedZone("CET", 3600))

	require.Equal(t, "2025-03-01", toStorageValue(FieldDefn{Type: FieldTypeDate}, when))
	require.Equal(t, "2025-03-01T09:20:30.000Z", toStorageValue(FieldDefn{Type: FieldTypeDateTime}, when))
	require.Equal(t, 1, toStorageValue(FieldDefn{Type: FieldTypeBoolean}, true))
	require.Nil(t, toStorageValue(FieldDefn{Type: FieldTypeString}, nil))

	require.Equal(t, int64(3), coerceValue(FieldDefn{Type: FieldTypeInteger64}, 3.0))
	require.Equal(t, 3.0, coerceValue(FieldDefn{Type: FieldTypeReal}, int64(3)))
	require.Equal(t, "2.5", coerceValue(FieldDefn{Type: FieldTypeString}, 2.5))
	require.Equal(t, "true", coerceValue(FieldDefn{Type: FieldTypeString}, true))

	require.Equal(t, FieldTypeReal, widenFieldType(FieldTypeInteger64, FieldTypeReal))
	require.Equal(t, FieldTypeString, widenFieldType(FieldTypeBoolean, FieldTypeReal))
	require.Equal(t, "", SchemaDifference(
		[]FieldDefn{{Name: "a", Type: FieldTypeString}},
		[]FieldDefn{{Name: "a", Type: FieldTypeString, Width: 10}}))
}
