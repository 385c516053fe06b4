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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GrainArc/Georef/internal/logger"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// ReadGeoJSONLayer 读取GeoJSON文件为图层
// 文件中只有一个图层，layerName 非空时必须与集合的 name 成员一致
func ReadGeoJSONLayer(ctx context.Context, path, layerName string) (*VectorLayer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Wrap(ErrNotFound, err, "文件不存在: %s", path)
		}
		return nil, Wrap(ErrFormat, err, "无法读取文件: %s", path)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, Wrap(ErrFormat, err, "GeoJSON解析失败: %s", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if n, ok := fc.ExtraMembers["name"].(string); ok && n != "" {
		name = n
	}
	if layerName != "" && !strings.EqualFold(layerName, name) {
		return nil, With(ErrNotFound, "图层不存在: %s (%s)", layerName, path)
	}

	layer := CreateMemoryLayer(name, GeomUnknown)
	if layer.SRS, err = crsFromGeoJSON(fc.ExtraMembers); err != nil {
		return nil, err
	}
	layer.Fields = inferGeoJSONFields(fc.Features)
	layer.GeomType = inferGeoJSONGeomType(fc.Features)

	for i, f := range fc.Features {
		values := make([]interface{}, len(layer.Fields))
		for j, field := range layer.Fields {
			values[j] = coerceValue(field, f.Properties[field.Name])
		}
		layer.Features = append(layer.Features, &Feature{
			FID:      geoJSONFeatureID(f.ID, int64(i+1)),
			Geometry: f.Geometry,
			Values:   values,
		})
	}

	logger.Debug(ctx, "读取GeoJSON图层",
		zap.String("path", path),
		zap.String("layer", layer.Name),
		zap.Int("features", layer.GetFeatureCount()))
	return layer, nil
}

// crsFromGeoJSON 解析旧版GeoJSON的 "crs" 成员，缺省为nil
func crsFromGeoJSON(members geojson.Properties) (*SpatialReference, error) {
	crs, ok := members["crs"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	props, _ := crs["properties"].(map[string]interface{})
	name, _ := props["name"].(string)
	if name == "" {
		return nil, nil
	}
	srs, err := ParseSpatialReference(name)
	if err != nil {
		return nil, Wrap(ErrFormat, err, "无法识别的crs: %s", name)
	}
	return srs, nil
}

// inferGeoJSONFields 根据全部要素的属性推断字段，按名称排序
func inferGeoJSONFields(features []*geojson.Feature) []FieldDefn {
	types := make(map[string]FieldType)
	seen := make(map[string]bool)
	for _, f := range features {
		for key, value := range f.Properties {
			seen[key] = true
			t, ok := inferFieldType(value)
			if !ok {
				continue
			}
			if prev, exists := types[key]; exists {
				types[key] = widenFieldType(prev, t)
			} else {
				types[key] = t
			}
		}
	}

	names := make([]string, 0, len(seen))
	for key := range seen {
		names = append(names, key)
	}
	sort.Strings(names)

	fields := make([]FieldDefn, len(names))
	for i, name := range names {
		t, ok := types[name]
		if !ok {
			t = FieldTypeString
		}
		fields[i] = FieldDefn{Name: name, Type: t}
	}
	return fields
}

// inferGeoJSONGeomType 所有要素几何类型相同时返回该类型，否则为 GEOMETRY
func inferGeoJSONGeomType(features []*geojson.Feature) GeomType {
	result := GeomUnknown
	for i, f := range features {
		if f.Geometry == nil {
			continue
		}
		t := GeomTypeOf(f.Geometry)
		if i == 0 || result == GeomUnknown {
			result = t
			continue
		}
		if t != result {
			return GeomUnknown
		}
	}
	return result
}

func geoJSONFeatureID(id interface{}, fallback int64) int64 {
	switch v := id.(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return int64(v)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// WriteGeoJSONLayer 将图层写为GeoJSON文件，坐标系写入旧版 "crs" 成员
func WriteGeoJSONLayer(ctx context.Context, path string, layer *VectorLayer) error {
	if layer == nil {
		return fmt.Errorf("图层为空")
	}

	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"name": layer.Name}
	if layer.SRS != nil && layer.SRS.EPSG > 0 {
		fc.ExtraMembers["crs"] = map[string]interface{}{
			"type":       "name",
			"properties": map[string]interface{}{"name": layer.SRS.URN()},
		}
	}

	for _, f := range layer.Features {
		gf := geojson.NewFeature(f.Geometry)
		if f.FID > 0 {
			gf.ID = f.FID
		}
		for i, field := range layer.Fields {
			if i < len(f.Values) {
				gf.Properties[field.Name] = geoJSONValue(field, f.Values[i])
			}
		}
		fc.Append(gf)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return Wrap(ErrFormat, err, "GeoJSON编码失败: %s", layer.Name)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败 %s: %w", path, err)
	}

	logger.Debug(ctx, "写入GeoJSON图层",
		zap.String("path", path),
		zap.String("layer", layer.Name),
		zap.Int("features", layer.GetFeatureCount()))
	return nil
}

// geoJSONValue 把属性值转换为JSON中的表示
func geoJSONValue(field FieldDefn, value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		if field.Type == FieldTypeDate {
			return v.Format(gpkgDateFormat)
		}
		return v.UTC().Format(gpkgDateTimeFormat)
	default:
		return value
	}
}
