package Georef

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

// gcpSources 扫描图像上的控制点（像素坐标）
var gcpSources = []orb.Point{{0, 0}, {4000, 0}, {0, 3000}, {4000, 3000}, {2000, 1500}}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writePointsFile 按QGIS格式写出由 params 生成的控制点
func writePointsFile(t *testing.T, path string, params AffineParameters) {
	t.Helper()
	var b strings.Builder
	b.WriteString("#CRS: EPSG:2154\n")
	b.WriteString("mapX,mapY,sourceX,sourceY,enable,dX,dY,residual\n")
	for _, src := range gcpSources {
		dst := params.Apply(src)
		fmt.Fprintf(&b, "%s,%s,%s,%s,1,0,0,0\n",
			formatCoord(dst[0]), formatCoord(dst[1]), formatCoord(src[0]), formatCoord(src[1]))
	}
	writePointsFileRaw(t, path, b.String())
}

// pixelParcels 像素坐标下的地块图层，numero 带分幅前缀
func pixelParcels(t *testing.T, section string) *VectorLayer {
	t.Helper()
	layer := CreateMemoryLayer("parcelles", GeomPolygon)
	require.NoError(t, layer.AddField("numero", FieldTypeString))
	require.NoError(t, layer.AddField("contenance", FieldTypeInteger64))
	_, err := layer.AddFeature(orb.Polygon{{{100, 100}, {900, 100}, {900, 700}, {100, 700}, {100, 100}}},
		section+"-1", int64(4800))
	require.NoError(t, err)
	_, err = layer.AddFeature(orb.Polygon{
		{{1000, 100}, {1800, 100}, {1800, 900}, {1000, 900}, {1000, 100}},
		{{1200, 300}, {1400, 300}, {1400, 500}, {1200, 300}},
	}, section+"-2", int64(6300))
	require.NoError(t, err)
	return layer
}

// pixelBuildings 像素坐标下的建筑图层
func pixelBuildings(t *testing.T, section string) *VectorLayer {
	t.Helper()
	layer := CreateMemoryLayer("batiments", GeomMultiPolygon)
	require.NoError(t, layer.AddField("type", FieldTypeString))
	_, err := layer.AddFeature(orb.MultiPolygon{
		{{{150, 150}, {300, 150}, {300, 260}, {150, 260}, {150, 150}}},
		{{{400, 400}, {520, 400}, {520, 500}, {400, 400}}},
	}, section+"-maison")
	require.NoError(t, err)
	return layer
}

// writeSectionInput 写出一个分幅的数字化成果（地块和建筑两个图层）
func writeSectionInput(t *testing.T, path, section string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, WriteGeoPackageLayer(ctx, path, pixelParcels(t, section)))
	require.NoError(t, AppendGeoPackageLayer(ctx, path, pixelBuildings(t, section)))
}

// sectionParams 每个分幅使用不同的仿射变换
func sectionParams(i int) AffineParameters {
	return NewAffineParameters(0.52, 0.031, 845000+float64(i)*2500, 0.029, -0.51, 6571000-float64(i)*1800)
}

// writeBatchFixture 按批量配置的目录结构写出全部输入
func writeBatchFixture(t *testing.T, cfg BatchConfig) {
	t.Helper()
	for i, section := range cfg.Sections {
		writePointsFile(t, cfg.PointsPath(section), sectionParams(i))
		writeSectionInput(t, cfg.InputPath(section), section)
	}
}

func writePointsFileRaw(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
