package Georef

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/require"
)

func sampleParcelLayer(t *testing.T) *VectorLayer {
	t.Helper()
	layer := CreateMemoryLayer("parcelles", GeomPolygon)
	layer.SRS = NewSpatialReferenceFromEPSG(2154)
	require.NoError(t, layer.AddField("numero", FieldTypeString))
	require.NoError(t, layer.AddField("surface", FieldTypeReal))
	require.NoError(t, layer.AddField("contenance", FieldTypeInteger64))
	require.NoError(t, layer.AddField("bati", FieldTypeBoolean))
	require.NoError(t, layer.AddField("releve", FieldTypeDate))
	require.NoError(t, layer.AddField("maj", FieldTypeDateTime))
	require.NoError(t, layer.AddField("croquis", FieldTypeBinary))

	releve := time.Date(1932, 5, 17, 0, 0, 0, 0, time.UTC)
	maj := time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC)
	_, err := layer.AddFeature(orb.Polygon{square}, "12", 100.5, int64(1005), true, releve, maj, []byte{1, 2, 3})
	require.NoError(t, err)
	_, err = layer.AddFeature(orb.Polygon{square, hole}, "13", nil, int64(7), false, nil, nil, nil)
	require.NoError(t, err)
	_, err = layer.AddFeature(nil, "14", 3.25, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	return layer
}

func TestGeoPackageRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "A1.gpkg")
	layer := sampleParcelLayer(t)

	require.NoError(t, WriteGeoPackageLayer(ctx, path, layer))

	got, err := ReadGeoPackageLayer(ctx, path, "parcelles")
	require.NoError(t, err)

	require.Equal(t, "parcelles", got.Name)
	require.Equal(t, GeomPolygon, got.GeomType)
	require.Equal(t, DefaultGeometryColumn, got.GeometryColumn)
	require.Equal(t, DefaultFIDColumn, got.FIDColumn)
	require.Empty(t, SchemaDifference(layer.Fields, got.Fields))
	require.NotNil(t, got.SRS)
	require.Equal(t, 2154, got.SRS.EPSG)
	require.True(t, got.SRS.Equal(layer.SRS))

	require.Len(t, got.Features, 3)
	for i, f := range got.Features {
		want := layer.Features[i]
		require.Equal(t, want.FID, f.FID)
		require.Equal(t, want.Geometry, f.Geometry)
	}

	first := got.Features[0].Values
	require.Equal(t, "12", first[0])
	require.Equal(t, 100.5, first[1])
	require.Equal(t, int64(1005), first[2])
	require.Equal(t, true, first[3])
	require.True(t, time.Date(1932, 5, 17, 0, 0, 0, 0, time.UTC).Equal(first[4].(time.Time)))
	require.True(t, time.Date(2025, 3, 1, 10, 20, 30, 0, time.UTC).Equal(first[5].(time.Time)))
	require.Equal(t, []byte{1, 2, 3}, first[6])

	second := got.Features[1].Values
	require.Nil(t, second[1])
	require.Equal(t, false, second[3])
	require.Nil(t, second[4])

	require.Nil(t, got.Features[2].Geometry)
}

func TestGeoPackageHeader(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, WriteGeoPackageLayer(ctx, path, sampleParcelLayer(t)))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var appID, userVersion int
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&userVersion))
	require.Equal(t, gpkgApplicationID, appID)
	require.Equal(t, gpkgUserVersion, userVersion)

	var count int
	require.NoError(t, db.QueryRow(
		"SELECT count(*) FROM gpkg_spatial_ref_sys WHERE srs_id IN (-1, 0, 4326, 2154)").Scan(&count))
	require.Equal(t, 4, count)

	var minX, maxY float64
	var srsID int
	require.NoError(t, db.QueryRow(
		"SELECT min_x, max_y, srs_id FROM gpkg_contents WHERE table_name = 'parcelles'").Scan(&minX, &maxY, &srsID))
	require.Equal(t, 0.0, minX)
	require.Equal(t, 10.0, maxY)
	require.Equal(t, 2154, srsID)

	var geomType string
	require.NoError(t, db.QueryRow(
		"SELECT geometry_type_name FROM gpkg_geometry_columns WHERE table_name = 'parcelles'").Scan(&geomType))
	require.Equal(t, "POLYGON", geomType)
}

func TestGeoPackageOverwriteAndEmptyLayer(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, WriteGeoPackageLayer(ctx, path, sampleParcelLayer(t)))

	empty := CreateMemoryLayer("batiments", GeomMultiPolygon)
	require.NoError(t, empty.AddField("type", FieldTypeString))
	require.NoError(t, WriteGeoPackageLayer(ctx, path, empty))

	layers, err := ListGeoPackageLayers(ctx, path)
	require.NoError(t, err)
	require.Equal(t, []string{"batiments"}, layers)

	got, err := ReadGeoPackageLayer(ctx, path, "batiments")
	require.NoError(t, err)
	require.Empty(t, got.Features)
	require.Nil(t, got.SRS)
	require.Equal(t, GeomMultiPolygon, got.GeomType)
	require.Equal(t, []FieldDefn{{Name: "type", Type: FieldTypeString}}, got.Fields)
}

func TestGeoPackageLayerNameIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, WriteGeoPackageLayer(ctx, path, sampleParcelLayer(t)))

	got, err := ReadGeoPackageLayer(ctx, path, "PARCELLES")
	require.NoError(t, err)
	require.Equal(t, "parcelles", got.Name)
}

func TestGeoPackageErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := ReadGeoPackageLayer(ctx, filepath.Join(dir, "missing.gpkg"), "parcelles")
	require.ErrorIs(t, err, ErrNotFound)

	path := filepath.Join(dir, "out.gpkg")
	require.NoError(t, WriteGeoPackageLayer(ctx, path, sampleParcelLayer(t)))
	_, err = ReadGeoPackageLayer(ctx, path, "batiments")
	require.ErrorIs(t, err, ErrNotFound)

	garbage := filepath.Join(dir, "garbage.gpkg")
	require.NoError(t, os.WriteFile(garbage, []byte(strings.Repeat("this is definitely not an sqlite database file\n", 20)), 0o644))
	_, err = ReadGeoPackageLayer(ctx, garbage, "parcelles")
	require.ErrorIs(t, err, ErrFormat)
}

func TestGeoPackageGeometryRoundTrip(t *testing.T) {
	for name, geom := range sampleGeometries() {
		t.Run(name, func(t *testing.T) {
			blob, err := encodeGeoPackageGeometry(geom, 2154)
			require.NoError(t, err)
			require.Equal(t, []byte("GP"), blob[:2])
			require.Equal(t, byte(0), blob[2])
			require.Equal(t, uint32(2154), binary.LittleEndian.Uint32(blob[4:8]))

			got, srsID, err := decodeGeoPackageGeometry(blob)
			require.NoError(t, err)
			require.Equal(t, int32(2154), srsID)
			require.Equal(t, normalizeForWKB(geom), got)
		})
	}
}

func TestGeoPackageGeometryEnvelope(t *testing.T) {
	blob, err := encodeGeoPackageGeometry(orb.LineString{{1, 2}, {5, -3}}, 4326)
	require.NoError(t, err)
	require.Equal(t, byte(gpkgFlagLittleEndian|gpkgEnvelopeXY<<1), blob[3])

	env := make([]float64, 4)
	for i := range env {
		env[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[8+i*8:]))
	}
	require.Equal(t, []float64{1, 5, -3, 2}, env)
}

func TestGeoPackageGeometryBigEndian(t *testing.T) {
	body, err := wkb.Marshal(orb.Point{845000.5, 6571000.25}, binary.BigEndian)
	require.NoError(t, err)

	header := []byte{'G', 'P', 0, 0, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(header[4:], 2154)

	got, srsID, err := decodeGeoPackageGeometry(append(header, body...))
	require.NoError(t, err)
	require.Equal(t, int32(2154), srsID)
	require.Equal(t, orb.Point{845000.5, 6571000.25}, got)
}

func TestGeoPackageGeometryEmpty(t *testing.T) {
	blob, err := encodeGeoPackageGeometry(orb.MultiPolygon{}, 2154)
	require.NoError(t, err)
	require.NotZero(t, blob[3]&gpkgFlagEmpty)

	got, _, err := decodeGeoPackageGeometry(blob)
	require.NoError(t, err)
	require.Equal(t, GeomMultiPolygon, GeomTypeOf(got))

	blob, err = encodeGeoPackageGeometry(nil, 2154)
	require.NoError(t, err)
	require.Nil(t, blob)
}

func TestGeoPackageGeometryInvalid(t *testing.T) {
	for name, data := range map[string][]byte{
		"short":     {'G', 'P'},
		"magic":     {'X', 'P', 0, 1, 0, 0, 0, 0, 1},
		"envelope":  {'G', 'P', 0, 0x01 | 7<<1, 0, 0, 0, 0, 1},
		"truncated": {'G', 'P', 0, 0x01 | 1<<1, 0, 0, 0, 0, 1, 2, 3},
		"extended":  {'G', 'P', 0, 0x21, 0, 0, 0, 0, 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := decodeGeoPackageGeometry(data)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}
