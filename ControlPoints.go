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
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

const (
	gcpCommentPrefix = "#"
	gcpHeaderToken   = "mapX"
	gcpMinFields     = 4
)

// ControlPointSet 控制点集合
// Source 为像素坐标，Destination 为地理坐标，两者按记录顺序一一对应
type ControlPointSet struct {
	Source      []orb.Point
	Destination []orb.Point
	Lines       []int // 每个控制点在文件中的行号（从1开始）
}

// Len 返回控制点数量
func (s *ControlPointSet) Len() int {
	return len(s.Source)
}

// Add 追加一对控制点
func (s *ControlPointSet) Add(source, destination orb.Point) {
	s.Source = append(s.Source, source)
	s.Destination = append(s.Destination, destination)
	s.Lines = append(s.Lines, 0)
}

// ReadControlPoints 读取QGIS地理配准器导出的 .points 控制点文件
// 每条记录为 mapX,mapY,sourceX,sourceY[,...]，注释行、表头行和空行被跳过
func ReadControlPoints(path string) (*ControlPointSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Wrap(ErrNotFound, err, "控制点文件不存在: %s", path)
		}
		return nil, Wrap(ErrFormat, err, "无法打开控制点文件: %s", path)
	}
	defer f.Close()

	return ParseControlPoints(f, path)
}

// ParseControlPoints 从reader解析控制点，name用于错误信息
func ParseControlPoints(r io.Reader, name string) (*ControlPointSet, error) {
	set := &ControlPointSet{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.HasPrefix(line, gcpCommentPrefix) || strings.HasPrefix(line, gcpHeaderToken) ||
			strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) < gcpMinFields {
			return nil, With(ErrFormat, "%s 第%d行: 字段数量不足，需要至少%d个，实际%d个",
				name, lineNo, gcpMinFields, len(parts))
		}

		var values [gcpMinFields]float64
		for i := 0; i < gcpMinFields; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
			if err != nil {
				return nil, Wrap(ErrFormat, err, "%s 第%d行: 第%d个字段不是数值", name, lineNo, i+1)
			}
			values[i] = v
		}

		set.Destination = append(set.Destination, orb.Point{values[0], values[1]})
		set.Source = append(set.Source, orb.Point{values[2], values[3]})
		set.Lines = append(set.Lines, lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, Wrap(ErrFormat, err, "读取控制点失败: %s", name)
	}

	return set, nil
}
