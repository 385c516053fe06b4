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
	"go.uber.org/zap"
)

// GeoreferenceOptions 单图层配准参数
type GeoreferenceOptions struct {
	SourcePath string            // 数字化成果（像素坐标）
	LayerName  string            // 需要配准的图层
	PointsPath string            // 控制点文件
	OutputPath string            // 输出文件，格式与输入相同
	SRS        *SpatialReference // 目标坐标系
}

// GeoreferenceResult 单图层配准结果
type GeoreferenceResult struct {
	OutputPath   string
	LayerName    string
	FeatureCount int
	Fit          *AffineFit
}

// GeoreferenceVector 用控制点拟合仿射变换，对图层全部几何进行变换，
// 设置目标坐标系后写入输出文件
func GeoreferenceVector(ctx context.Context, opts GeoreferenceOptions) (*GeoreferenceResult, error) {
	if opts.SRS == nil {
		return nil, fmt.Errorf("未指定目标坐标系")
	}
	ctx = logger.WithFields(ctx,
		zap.String("layer", opts.LayerName),
		zap.String("path", opts.SourcePath))

	points, err := ReadControlPoints(opts.PointsPath)
	if err != nil {
		return nil, err
	}
	fit, err := FitAffine(points)
	if err != nil {
		return nil, fmt.Errorf("控制点拟合失败 %s: %w", opts.PointsPath, err)
	}
	logger.Debug(ctx, "仿射参数",
		zap.Stringer("params", fit.Parameters),
		zap.Int("points", fit.PointCount),
		zap.Int("rank", fit.Rank),
		zap.Float64("rmse", fit.RMSE))

	source, err := ReadGeospatialFile(ctx, opts.SourcePath, opts.LayerName)
	if err != nil {
		return nil, err
	}
	if source.SRS != nil && !source.SRS.Equal(opts.SRS) {
		logger.Warn(ctx, "覆盖图层原有坐标系",
			zap.Stringer("from", source.SRS),
			zap.Stringer("to", opts.SRS))
	}

	target := TransformLayer(source, fit.Parameters)
	target.SetSpatialRef(opts.SRS)

	writer, err := NewFileGeoWriter(opts.OutputPath, true)
	if err != nil {
		return nil, err
	}
	if writer.FileType != mustFileType(opts.SourcePath) {
		return nil, With(ErrFormat, "输出格式必须与输入相同: %s -> %s", opts.SourcePath, opts.OutputPath)
	}
	if err := writer.WriteLayer(ctx, target); err != nil {
		return nil, err
	}

	logger.Info(ctx, "配准完成",
		zap.String("output", opts.OutputPath),
		zap.Int("features", target.GetFeatureCount()),
		zap.Float64("rmse", fit.RMSE))

	return &GeoreferenceResult{
		OutputPath:   opts.OutputPath,
		LayerName:    target.Name,
		FeatureCount: target.GetFeatureCount(),
		Fit:          fit,
	}, nil
}

// mustFileType 返回已通过读取校验的文件类型
func mustFileType(path string) string {
	t, _ := determineFileType(path)
	return t
}
