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
	"fmt"
	"strconv"
	"strings"
)

type SpatialReferenceType int

const (
	SRSTypeGeographic SpatialReferenceType = iota // 地理坐标系
	SRSTypeProjected                              // 投影坐标系
)

// UndefinedDefinition GeoPackage中未知坐标系定义的占位值
const UndefinedDefinition = "undefined"

// SpatialReference 空间参考系统结构
type SpatialReference struct {
	EPSG         int                  // EPSG代码
	Name         string               // 坐标系名称
	Type         SpatialReferenceType // 坐标系类型
	Organization string               // 定义机构，默认EPSG
	Description  string               // 描述信息
	WKT          string               // WKT定义，未知时为空
}

const (
	wktGRS80 = `SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]]`
	wktWGS84 = `SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]]`
	wktPrime = `PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]]`
	wktDeg   = `UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]]`
	wktMetre = `UNIT["metre",1,AUTHORITY["EPSG","9001"]]`

	wktGeogWGS84 = `GEOGCS["WGS 84",DATUM["WGS_1984",` + wktWGS84 + `,AUTHORITY["EPSG","6326"]],` +
		wktPrime + `,` + wktDeg + `,AXIS["Latitude",NORTH],AXIS["Longitude",EAST],AUTHORITY["EPSG","4326"]]`
	wktGeogRGF93 = `GEOGCS["RGF93 v1",DATUM["Reseau_Geodesique_Francais_1993_v1",` + wktGRS80 +
		`,AUTHORITY["EPSG","6171"]],` + wktPrime + `,` + wktDeg + `,AUTHORITY["EPSG","4171"]]`
)

// 预定义坐标系
var (
	// WGS84 地理坐标系
	SRS_WGS84 = &SpatialReference{
		EPSG:         4326,
		Name:         "WGS 84",
		Type:         SRSTypeGeographic,
		Organization: "EPSG",
		Description:  "WGS 84 地理坐标系",
		WKT:          wktGeogWGS84,
	}
	// RGF93 法国大地坐标系
	SRS_RGF93 = &SpatialReference{
		EPSG:         4171,
		Name:         "RGF93 v1",
		Type:         SRSTypeGeographic,
		Organization: "EPSG",
		Description:  "RGF93 地理坐标系",
		WKT:          wktGeogRGF93,
	}
	// Lambert-93 法国本土官方投影
	SRS_Lambert93 = &SpatialReference{
		EPSG:         2154,
		Name:         "RGF93 v1 / Lambert-93",
		Type:         SRSTypeProjected,
		Organization: "EPSG",
		Description:  "RGF93 Lambert-93 投影坐标系",
		WKT: `PROJCS["RGF93 v1 / Lambert-93",` + wktGeogRGF93 +
			`,PROJECTION["Lambert_Conformal_Conic_2SP"],PARAMETER["latitude_of_origin",46.5],` +
			`PARAMETER["central_meridian",3],PARAMETER["standard_parallel_1",49],` +
			`PARAMETER["standard_parallel_2",44],PARAMETER["false_easting",700000],` +
			`PARAMETER["false_northing",6600000],` + wktMetre +
			`,AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","2154"]]`,
	}
	// Web墨卡托
	SRS_WebMercator = &SpatialReference{
		EPSG:         3857,
		Name:         "WGS 84 / Pseudo-Mercator",
		Type:         SRSTypeProjected,
		Organization: "EPSG",
		Description:  "Web墨卡托投影",
		WKT: `PROJCS["WGS 84 / Pseudo-Mercator",` + wktGeogWGS84 +
			`,PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],` +
			`PARAMETER["false_easting",0],PARAMETER["false_northing",0],` + wktMetre +
			`,AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","3857"]]`,
	}
)

// conicConformalZone 生成 RGF93 / CCxx 九带圆锥投影 (EPSG 3942-3950)
// zone: 纬度带 42-50
func conicConformalZone(zone int) *SpatialReference {
	name := fmt.Sprintf("RGF93 v1 / CC%d", zone)
	code := 3900 + zone
	wkt := fmt.Sprintf(`PROJCS["%s",%s,PROJECTION["Lambert_Conformal_Conic_2SP"],`+
		`PARAMETER["latitude_of_origin",%d],PARAMETER["central_meridian",3],`+
		`PARAMETER["standard_parallel_1",%g],PARAMETER["standard_parallel_2",%g],`+
		`PARAMETER["false_easting",1700000],PARAMETER["false_northing",%d],%s,`+
		`AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","%d"]]`,
		name, wktGeogRGF93, zone, float64(zone)-0.75, float64(zone)+0.75,
		(zone-41)*1000000+200000, wktMetre, code)
	return &SpatialReference{
		EPSG:         code,
		Name:         name,
		Type:         SRSTypeProjected,
		Organization: "EPSG",
		Description:  fmt.Sprintf("RGF93 CC%d 圆锥投影 (纬度%d°)", zone, zone),
		WKT:          wkt,
	}
}

// knownSpatialReferences EPSG代码到预定义坐标系的映射
var knownSpatialReferences = func() map[int]*SpatialReference {
	m := map[int]*SpatialReference{
		SRS_WGS84.EPSG:       SRS_WGS84,
		SRS_RGF93.EPSG:       SRS_RGF93,
		SRS_Lambert93.EPSG:   SRS_Lambert93,
		SRS_WebMercator.EPSG: SRS_WebMercator,
	}
	for zone := 42; zone <= 50; zone++ {
		srs := conicConformalZone(zone)
		m[srs.EPSG] = srs
	}
	return m
}()

// LookupSpatialReference 查找预定义坐标系
func LookupSpatialReference(epsg int) (*SpatialReference, bool) {
	srs, ok := knownSpatialReferences[epsg]
	if !ok {
		return nil, false
	}
	cp := *srs
	return &cp, true
}

// NewSpatialReferenceFromEPSG 根据EPSG代码创建空间参考
// 预定义坐标系带有完整WKT，其余代码的WKT为空，写入GeoPackage时使用 "undefined"
func NewSpatialReferenceFromEPSG(epsg int) *SpatialReference {
	if srs, ok := LookupSpatialReference(epsg); ok {
		return srs
	}
	return &SpatialReference{
		EPSG:         epsg,
		Name:         fmt.Sprintf("EPSG:%d", epsg),
		Type:         SRSTypeProjected,
		Organization: "EPSG",
		Description:  fmt.Sprintf("EPSG代码: %d", epsg),
	}
}

// ParseSpatialReference 解析坐标系标识
// 支持 "2154"、"EPSG:2154"、"urn:ogc:def:crs:EPSG::2154" 等写法
func ParseSpatialReference(id string) (*SpatialReference, error) {
	s := strings.TrimSpace(id)
	if s == "" {
		return nil, With(ErrFormat, "坐标系标识为空")
	}
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:"):
		parts := strings.Split(s, ":")
		last := parts[len(parts)-1]
		if strings.EqualFold(parts[4], "OGC") && strings.EqualFold(last, "CRS84") {
			return NewSpatialReferenceFromEPSG(4326), nil
		}
		if !strings.EqualFold(parts[4], "EPSG") {
			return nil, With(ErrFormat, "不支持的坐标系标识: %s", id)
		}
		s = last
	case strings.HasPrefix(upper, "EPSG:"):
		s = s[len("EPSG:"):]
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return nil, With(ErrFormat, "无效的EPSG代码: %s", id)
	}
	return NewSpatialReferenceFromEPSG(code), nil
}

// Definition 返回写入GeoPackage的坐标系定义
func (srs *SpatialReference) Definition() string {
	if srs.WKT == "" {
		return UndefinedDefinition
	}
	return srs.WKT
}

// Equal 判断两个坐标系是否相同，均有EPSG代码时只比较代码
func (srs *SpatialReference) Equal(other *SpatialReference) bool {
	if srs == nil || other == nil {
		return srs == nil && other == nil
	}
	if srs.EPSG > 0 && other.EPSG > 0 {
		return srs.EPSG == other.EPSG
	}
	return srs.Name == other.Name && srs.WKT == other.WKT
}

// URN 返回OGC URN形式的标识，用于GeoJSON的crs成员
func (srs *SpatialReference) URN() string {
	return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", srs.EPSG)
}

// String 返回坐标系的字符串表示
func (srs *SpatialReference) String() string {
	if srs == nil {
		return "未定义"
	}
	typeStr := "地理坐标系"
	if srs.Type == SRSTypeProjected {
		typeStr = "投影坐标系"
	}
	return fmt.Sprintf("%s (EPSG:%d) - %s", srs.Name, srs.EPSG, typeStr)
}
