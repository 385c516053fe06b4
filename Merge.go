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

	"github.com/GrainArc/Georef/internal/logger"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// ConcatLayers 按顺序拼接多个结构相同的图层
// 字段结构和坐标系以第一个图层为准，FID 按输出顺序重新编号
func ConcatLayers(name string, layers ...*VectorLayer) (*VectorLayer, error) {
	if len(layers) == 0 {
		return nil, With(ErrNotFound, "没有需要合并的图层")
	}
	first := layers[0]

	out := first.CloneSchema()
	out.Name = name
	var fid int64
	for i, layer := range layers {
		if i > 0 {
			if diff := SchemaDifference(first.Fields, layer.Fields); diff != "" {
				return nil, With(ErrSchemaMismatch, "图层 %s 与 %s 字段结构不一致: %s", layer.Name, first.Name, diff)
			}
			if !sameSRS(first.SRS, layer.SRS) {
				return nil, With(ErrSchemaMismatch, "图层 %s 与 %s 坐标系不一致: %s != %s", layer.Name, first.Name, layer.SRS, first.SRS)
			}
			if layer.GeomType != out.GeomType {
				out.GeomType = GeomUnknown
			}
		}
		for _, f := range layer.Features {
			fid++
			out.Features = append(out.Features, &Feature{
				FID:      fid,
				Geometry: orb.Clone(f.Geometry),
				Values:   append([]interface{}(nil), f.Values...),
			})
		}
	}
	return out, nil
}

// sameSRS 两者都未设置坐标系也视为一致
func sameSRS(a, b *SpatialReference) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

// MergeLayers 读取多个文件中的同名图层，合并后写入 outputPath（格式与第一个输入相同）
func MergeLayers(ctx context.Context, paths []string, layerName, outputPath string) (*VectorLayer, error) {
	if len(paths) == 0 {
		return nil, With(ErrNotFound, "没有输入文件")
	}
	ctx = logger.WithFields(ctx, zap.String("layer", layerName))

	layers := make([]*VectorLayer, 0, len(paths))
	for _, path := range paths {
		layer, err := ReadGeospatialFile(ctx, path, layerName)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
		}
		layers = append(layers, layer)
	}

	merged, err := ConcatLayers(layers[0].Name, layers...)
	if err != nil {
		return nil, err
	}

	inputType, _ := determineFileType(paths[0])
	writer, err := NewFileGeoWriter(outputPath, true)
	if err != nil {
		return nil, err
	}
	if writer.FileType != inputType {
		return nil, With(ErrFormat, "输出格式必须与输入相同: %s -> %s", paths[0], outputPath)
	}
	if err := writer.WriteLayer(ctx, merged); err != nil {
		return nil, err
	}

	logger.Info(ctx, "合并完成",
		zap.String("output", outputPath),
		zap.Int("inputs", len(paths)),
		zap.Int("features", merged.GetFeatureCount()))
	return merged, nil
}
