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
	"bytes"
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoPackage二进制几何头
// magic(2) | version(1) | flags(1) | srs_id(4) | envelope | WKB
const (
	gpkgHeaderSize = 8

	gpkgFlagLittleEndian = 0x01
	gpkgFlagEnvelopeMask = 0x0E
	gpkgFlagEmpty        = 0x10
	gpkgFlagExtended     = 0x20

	gpkgEnvelopeXY = 1
)

// 各envelope类型对应的字节数
var gpkgEnvelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// normalizeForWKB 把WKB中没有对应类型的几何转换为多边形
func normalizeForWKB(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case orb.Ring:
		return orb.Polygon{v}
	case orb.Bound:
		return v.ToPolygon()
	case orb.Collection:
		out := make(orb.Collection, len(v))
		for i, sub := range v {
			out[i] = normalizeForWKB(sub)
		}
		return out
	default:
		return g
	}
}

// encodeGeoPackageGeometry 编码为GeoPackage几何BLOB，nil几何返回nil
func encodeGeoPackageGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	g = normalizeForWKB(g)

	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, Wrap(ErrFormat, err, "WKB编码失败")
	}

	flags := byte(gpkgFlagLittleEndian)
	empty := isEmptyGeometry(g)
	if empty {
		flags |= gpkgFlagEmpty
	} else {
		flags |= gpkgEnvelopeXY << 1
	}

	buf := bytes.NewBuffer(make([]byte, 0, gpkgHeaderSize+32+len(body)))
	buf.Write([]byte{'G', 'P', 0, flags})
	binary.Write(buf, binary.LittleEndian, srsID)
	if !empty {
		b := g.Bound()
		binary.Write(buf, binary.LittleEndian, [4]float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]})
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// decodeGeoPackageGeometry 解码GeoPackage几何BLOB，返回几何和srs_id
func decodeGeoPackageGeometry(data []byte) (orb.Geometry, int32, error) {
	if len(data) < gpkgHeaderSize || data[0] != 'G' || data[1] != 'P' {
		return nil, 0, With(ErrFormat, "不是GeoPackage几何数据")
	}
	flags := data[3]
	if flags&gpkgFlagExtended != 0 {
		return nil, 0, With(ErrFormat, "不支持扩展GeoPackage几何")
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&gpkgFlagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(data[4:8]))

	envelopeSize, ok := gpkgEnvelopeSizes[(flags&gpkgFlagEnvelopeMask)>>1]
	if !ok {
		return nil, 0, With(ErrFormat, "无效的envelope类型: %d", (flags&gpkgFlagEnvelopeMask)>>1)
	}
	offset := gpkgHeaderSize + envelopeSize
	if len(data) <= offset {
		return nil, 0, With(ErrFormat, "GeoPackage几何数据长度不足: %d", len(data))
	}

	g, err := wkb.Unmarshal(data[offset:])
	if err != nil {
		return nil, 0, Wrap(ErrFormat, err, "WKB解码失败")
	}
	// 空点在WKB中以NaN坐标表示
	if p, ok := g.(orb.Point); ok && flags&gpkgFlagEmpty != 0 && math.IsNaN(p[0]) {
		return nil, srsID, nil
	}
	return g, srsID, nil
}
