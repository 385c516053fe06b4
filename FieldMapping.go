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
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type FieldType int

const (
	FieldTypeInteger FieldType = iota
	FieldTypeInteger64
	FieldTypeReal
	FieldTypeString
	FieldTypeDate
	FieldTypeDateTime
	FieldTypeBinary
	FieldTypeBoolean
)

const (
	gpkgDateFormat     = "2006-01-02"
	gpkgDateTimeFormat = "2006-01-02T15:04:05.000Z"
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeInteger:
		return "Integer"
	case FieldTypeInteger64:
		return "Integer64"
	case FieldTypeReal:
		return "Real"
	case FieldTypeString:
		return "String"
	case FieldTypeDate:
		return "Date"
	case FieldTypeDateTime:
		return "DateTime"
	case FieldTypeBinary:
		return "Binary"
	case FieldTypeBoolean:
		return "Boolean"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// declTypePattern 匹配 "TEXT(80)" 这类带长度的声明类型
var declTypePattern = regexp.MustCompile(`^([A-Za-z ]+?)\s*(?:\(\s*(\d+)\s*\))?$`)

// parseDeclaredType 解析SQLite列声明类型，返回基础类型（大写）和长度
func parseDeclaredType(decl string) (baseType string, width int) {
	decl = strings.TrimSpace(decl)
	matches := declTypePattern.FindStringSubmatch(decl)
	if matches == nil {
		return strings.ToUpper(decl), 0
	}
	baseType = strings.ToUpper(strings.TrimSpace(matches[1]))
	if matches[2] != "" {
		width, _ = strconv.Atoi(matches[2])
	}
	return baseType, width
}

// mapGeoPackageTypeToField 将GeoPackage列类型映射为字段类型
// 返回: 字段类型, 宽度
func mapGeoPackageTypeToField(decl string) (FieldType, int) {
	baseType, width := parseDeclaredType(decl)

	switch baseType {
	case "INTEGER", "INT", "BIGINT":
		return FieldTypeInteger64, 0
	case "MEDIUMINT", "SMALLINT", "TINYINT":
		return FieldTypeInteger, 0
	case "BOOLEAN":
		return FieldTypeBoolean, 0
	case "REAL", "DOUBLE", "FLOAT", "DOUBLE PRECISION", "NUMERIC":
		return FieldTypeReal, 0
	case "TEXT", "VARCHAR", "CHAR":
		return FieldTypeString, width
	case "BLOB":
		return FieldTypeBinary, 0
	case "DATE":
		return FieldTypeDate, 0
	case "DATETIME", "TIMESTAMP":
		return FieldTypeDateTime, 0
	default:
		// 未知类型按字符串处理
		return FieldTypeString, width
	}
}

// mapFieldTypeToGeoPackage 将字段类型映射为GeoPackage列声明类型
func mapFieldTypeToGeoPackage(field FieldDefn) string {
	switch field.Type {
	case FieldTypeInteger:
		return "MEDIUMINT"
	case FieldTypeInteger64:
		return "INTEGER"
	case FieldTypeReal:
		return "REAL"
	case FieldTypeDate:
		return "DATE"
	case FieldTypeDateTime:
		return "DATETIME"
	case FieldTypeBinary:
		return "BLOB"
	case FieldTypeBoolean:
		return "BOOLEAN"
	default:
		if field.Width > 0 {
			return fmt.Sprintf("TEXT(%d)", field.Width)
		}
		return "TEXT"
	}
}

// inferFieldType 根据属性值推断字段类型，值为nil时ok为false
func inferFieldType(value interface{}) (FieldType, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case bool:
		return FieldTypeBoolean, true
	case int, int32, int64:
		return FieldTypeInteger64, true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return FieldTypeInteger64, true
		}
		return FieldTypeReal, true
	case float32:
		return FieldTypeReal, true
	case time.Time:
		return FieldTypeDateTime, true
	case []byte:
		return FieldTypeBinary, true
	default:
		return FieldTypeString, true
	}
}

// widenFieldType 合并两次推断的结果，整数与浮点合并为浮点，其余冲突退化为字符串
func widenFieldType(a, b FieldType) FieldType {
	if a == b {
		return a
	}
	isNumber := func(t FieldType) bool {
		return t == FieldTypeInteger || t == FieldTypeInteger64 || t == FieldTypeReal
	}
	if isNumber(a) && isNumber(b) {
		if a == FieldTypeReal || b == FieldTypeReal {
			return FieldTypeReal
		}
		return FieldTypeInteger64
	}
	return FieldTypeString
}

// toStorageValue 把属性值转换为写入SQLite的值
func toStorageValue(field FieldDefn, value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		if field.Type == FieldTypeDate {
			return v.Format(gpkgDateFormat)
		}
		return v.UTC().Format(gpkgDateTimeFormat)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return v
	}
}

// coerceValue 把松散类型的值（例如GeoJSON中的数字）转换为字段类型对应的Go类型
func coerceValue(field FieldDefn, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	switch field.Type {
	case FieldTypeInteger, FieldTypeInteger64:
		if f, ok := value.(float64); ok {
			return int64(f)
		}
	case FieldTypeReal:
		switch v := value.(type) {
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	case FieldTypeString:
		switch v := value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		default:
			return fmt.Sprint(v)
		}
	}
	return value
}

// SchemaDifference 描述两个图层字段结构的差异，结构一致时返回空字符串
func SchemaDifference(a, b []FieldDefn) string {
	if len(a) != len(b) {
		return fmt.Sprintf("字段数量不同: %d != %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return fmt.Sprintf("第%d个字段名称不同: %s != %s", i+1, a[i].Name, b[i].Name)
		}
		if a[i].Type != b[i].Type {
			return fmt.Sprintf("字段 %s 类型不同: %s != %s", a[i].Name, a[i].Type, b[i].Type)
		}
	}
	return ""
}
