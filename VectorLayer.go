/*
Copyright (C) 2025 [GrainArc]

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package Georef

import (
	"context"
	"fmt"
	"strings"

	"github.com/GrainArc/Georef/internal/logger"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

type GeomType int

// 取值与WKB几何类型编码一致
const (
	GeomUnknown         GeomType = 0
	GeomPoint           GeomType = 1
	GeomLineString      GeomType = 2
	GeomPolygon         GeomType = 3
	GeomMultiPoint      GeomType = 4
	GeomMultiLineString GeomType = 5
	GeomMultiPolygon    GeomType = 6
	GeomCollection      GeomType = 7
)

const (
	DefaultGeometryColumn = "geom"
	DefaultFIDColumn      = "fid"
)

var geomTypeNames = map[GeomType]string{
	GeomUnknown:         "GEOMETRY",
	GeomPoint:           "POINT",
	GeomLineString:      "LINESTRING",
	GeomPolygon:         "POLYGON",
	GeomMultiPoint:      "MULTIPOINT",
	GeomMultiLineString: "MULTILINESTRING",
	GeomMultiPolygon:    "MULTIPOLYGON",
	GeomCollection:      "GEOMETRYCOLLECTION",
}

// String 返回GeoPackage使用的几何类型名称
func (t GeomType) String() string {
	if name, ok := geomTypeNames[t]; ok {
		return name
	}
	return "GEOMETRY"
}

// ParseGeomType 解析几何类型名称，不区分大小写，未知名称返回 GeomUnknown
func ParseGeomType(name string) GeomType {
	name = strings.ToUpper(strings.TrimSpace(name))
	for t, n := range geomTypeNames {
		if n == name {
			return t
		}
	}
	return GeomUnknown
}

// GeomTypeOf 返回orb几何对象对应的几何类型
func GeomTypeOf(g orb.Geometry) GeomType {
	switch g.(type) {
	case orb.Point:
		return GeomPoint
	case orb.LineString:
		return GeomLineString
	case orb.Polygon, orb.Ring, orb.Bound:
		return GeomPolygon
	case orb.MultiPoint:
		return GeomMultiPoint
	case orb.MultiLineString:
		return GeomMultiLineString
	case orb.MultiPolygon:
		return GeomMultiPolygon
	case orb.Collection:
		return GeomCollection
	default:
		return GeomUnknown
	}
}

// FieldDefn 字段定义
type FieldDefn struct {
	Name  string
	Type  FieldType
	Width int // 字符串宽度，0表示不限
}

// Feature 要素，Values 与图层 Fields 一一对应
type Feature struct {
	FID      int64
	Geometry orb.Geometry
	Values   []interface{}
}

// VectorLayer 内存矢量图层
type VectorLayer struct {
	Name           string
	GeomType       GeomType
	GeometryColumn string
	FIDColumn      string
	Fields         []FieldDefn
	Features       []*Feature
	SRS            *SpatialReference // nil 表示未设置坐标系
}

// CreateMemoryLayer 创建内存图层
func CreateMemoryLayer(layerName string, geomType GeomType) *VectorLayer {
	return &VectorLayer{
		Name:           layerName,
		GeomType:       geomType,
		GeometryColumn: DefaultGeometryColumn,
		FIDColumn:      DefaultFIDColumn,
	}
}

// AddField 添加字段，图层已有要素时不允许添加
func (l *VectorLayer) AddField(name string, fieldType FieldType) error {
	if name == "" {
		return fmt.Errorf("字段名为空")
	}
	if len(l.Features) > 0 {
		return fmt.Errorf("图层 %s 已有要素，无法添加字段 %s", l.Name, name)
	}
	if l.FieldIndex(name) >= 0 || strings.EqualFold(name, l.GeometryColumn) || strings.EqualFold(name, l.FIDColumn) {
		return fmt.Errorf("字段已存在: %s", name)
	}
	l.Fields = append(l.Fields, FieldDefn{Name: name, Type: fieldType})
	return nil
}

// AddFeature 添加要素，FID 按顺序自动分配
func (l *VectorLayer) AddFeature(geom orb.Geometry, values ...interface{}) (*Feature, error) {
	if len(values) != len(l.Fields) {
		return nil, fmt.Errorf("属性数量与字段数量不一致: %d != %d", len(values), len(l.Fields))
	}
	var fid int64 = 1
	if n := len(l.Features); n > 0 {
		fid = l.Features[n-1].FID + 1
	}
	f := &Feature{FID: fid, Geometry: geom, Values: values}
	l.Features = append(l.Features, f)
	return f, nil
}

// GetFeatureCount 获取要素数量
func (l *VectorLayer) GetFeatureCount() int {
	return len(l.Features)
}

// GetFieldCount 获取字段数量
func (l *VectorLayer) GetFieldCount() int {
	return len(l.Fields)
}

// GetFieldName 获取字段名称
func (l *VectorLayer) GetFieldName(index int) string {
	if index < 0 || index >= len(l.Fields) {
		return ""
	}
	return l.Fields[index].Name
}

// FieldIndex 按名称查找字段序号，不存在时返回-1
func (l *VectorLayer) FieldIndex(name string) int {
	for i, f := range l.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Value 获取要素指定字段的值
func (l *VectorLayer) Value(f *Feature, name string) (interface{}, bool) {
	i := l.FieldIndex(name)
	if i < 0 || i >= len(f.Values) {
		return nil, false
	}
	return f.Values[i], true
}

// Bound 图层范围，没有非空几何时ok为false
func (l *VectorLayer) Bound() (orb.Bound, bool) {
	var (
		bound orb.Bound
		found bool
	)
	for _, f := range l.Features {
		if f.Geometry == nil || isEmptyGeometry(f.Geometry) {
			continue
		}
		b := f.Geometry.Bound()
		if !found {
			bound, found = b, true
			continue
		}
		bound = bound.Union(b)
	}
	return bound, found
}

// CloneSchema 复制图层结构（不含要素）
func (l *VectorLayer) CloneSchema() *VectorLayer {
	out := &VectorLayer{
		Name:           l.Name,
		GeomType:       l.GeomType,
		GeometryColumn: l.GeometryColumn,
		FIDColumn:      l.FIDColumn,
		Fields:         append([]FieldDefn(nil), l.Fields...),
	}
	if l.SRS != nil {
		srs := *l.SRS
		out.SRS = &srs
	}
	return out
}

// Clone 深拷贝图层
func (l *VectorLayer) Clone() *VectorLayer {
	out := l.CloneSchema()
	out.Features = make([]*Feature, len(l.Features))
	for i, f := range l.Features {
		out.Features[i] = &Feature{
			FID:      f.FID,
			Geometry: orb.Clone(f.Geometry),
			Values:   append([]interface{}(nil), f.Values...),
		}
	}
	return out
}

// SetSpatialRef 设置图层坐标系，返回被覆盖的原坐标系
func (l *VectorLayer) SetSpatialRef(srs *SpatialReference) *SpatialReference {
	previous := l.SRS
	if srs == nil {
		l.SRS = nil
		return previous
	}
	cp := *srs
	l.SRS = &cp
	return previous
}

// LogLayerInfo 输出图层信息
func (l *VectorLayer) LogLayerInfo(ctx context.Context) {
	fields := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		fields[i] = fmt.Sprintf("%s:%s", f.Name, f.Type)
	}
	logFields := []zap.Field{
		zap.String("layer", l.Name),
		zap.Int("features", l.GetFeatureCount()),
		zap.String("geometry_type", l.GeomType.String()),
		zap.Strings("fields", fields),
		zap.Stringer("srs", l.SRS),
	}
	if b, ok := l.Bound(); ok {
		logFields = append(logFields, zap.Float64s("extent", []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}))
	}
	logger.Info(ctx, "图层信息", logFields...)
}

// isEmptyGeometry 判断几何对象是否不含任何坐标
func isEmptyGeometry(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Polygon:
		for _, r := range v {
			if len(r) > 0 {
				return false
			}
		}
		return true
	case orb.MultiPolygon:
		for _, p := range v {
			if !isEmptyGeometry(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !isEmptyGeometry(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
