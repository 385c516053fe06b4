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
	"github.com/paulmach/orb"
)

// TransformGeometry 对几何对象的每个坐标执行仿射变换，返回新的同类几何对象
// 点序、环的归属和多部件结构保持不变，输入不会被修改。
// orb.Bound 在仿射变换后不再是轴对齐矩形，因此返回其多边形的变换结果。
func TransformGeometry(geom orb.Geometry, params AffineParameters) orb.Geometry {
	switch g := geom.(type) {
	case nil:
		return nil
	case orb.Point:
		return params.Apply(g)
	case orb.MultiPoint:
		return orb.MultiPoint(transformPoints(g, params))
	case orb.LineString:
		return orb.LineString(transformPoints(g, params))
	case orb.Ring:
		return orb.Ring(transformPoints(g, params))
	case orb.MultiLineString:
		return transformMultiLineString(g, params)
	case orb.Polygon:
		return transformPolygon(g, params)
	case orb.MultiPolygon:
		return transformMultiPolygon(g, params)
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, sub := range g {
			out[i] = TransformGeometry(sub, params)
		}
		return out
	case orb.Bound:
		return transformPolygon(g.ToPolygon(), params)
	default:
		// orb.Geometry 是封闭集合，走到这里说明有新的实现类型
		panic("Georef: 不支持的几何类型")
	}
}

func transformPoints(points []orb.Point, params AffineParameters) []orb.Point {
	if points == nil {
		return nil
	}
	out := make([]orb.Point, len(points))
	for i, p := range points {
		out[i] = params.Apply(p)
	}
	return out
}

func transformMultiLineString(mls orb.MultiLineString, params AffineParameters) orb.MultiLineString {
	if mls == nil {
		return nil
	}
	out := make(orb.MultiLineString, len(mls))
	for i, ls := range mls {
		out[i] = orb.LineString(transformPoints(ls, params))
	}
	return out
}

func transformPolygon(poly orb.Polygon, params AffineParameters) orb.Polygon {
	if poly == nil {
		return nil
	}
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		out[i] = orb.Ring(transformPoints(ring, params))
	}
	return out
}

func transformMultiPolygon(mp orb.MultiPolygon, params AffineParameters) orb.MultiPolygon {
	if mp == nil {
		return nil
	}
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = transformPolygon(poly, params)
	}
	return out
}

// TransformFeature 变换要素几何，属性原样复制
func TransformFeature(f *Feature, params AffineParameters) *Feature {
	return &Feature{
		FID:      f.FID,
		Geometry: TransformGeometry(f.Geometry, params),
		Values:   append([]interface{}(nil), f.Values...),
	}
}

// TransformLayer 返回变换后的新图层，结构、坐标系和属性保持不变
func TransformLayer(layer *VectorLayer, params AffineParameters) *VectorLayer {
	out := layer.CloneSchema()
	out.Features = make([]*Feature, len(layer.Features))
	for i, f := range layer.Features {
		out.Features[i] = TransformFeature(f, params)
	}
	return out
}
