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
	"os"
	"path/filepath"
	"time"

	"github.com/GrainArc/Georef/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultEPSG           = 2154
	DefaultParcelsLayer   = "parcelles"
	DefaultBuildingsLayer = "batiments"
)

// DefaultSections 默认分幅
var DefaultSections = []string{"A1", "A2", "B1", "B2", "C1", "C2", "D1", "D2"}

// BatchConfig 批量配准配置
type BatchConfig struct {
	GCPDir         string   // 控制点目录，<SECTION>.jpg.points
	InputDir       string   // 数字化成果目录，<SECTION>.gpkg
	OutputDir      string   // 输出目录，不存在时创建
	EPSG           int      // 目标坐标系
	Sections       []string // 按顺序处理的分幅
	ParcelsLayer   string
	BuildingsLayer string
	Workers        int // 大于1时分幅并行处理
}

// DefaultBatchConfig 默认配置
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		GCPDir:         "gcp",
		InputDir:       filepath.Join("vecteurs", "in"),
		OutputDir:      filepath.Join("vecteurs", "out"),
		EPSG:           DefaultEPSG,
		Sections:       append([]string(nil), DefaultSections...),
		ParcelsLayer:   DefaultParcelsLayer,
		BuildingsLayer: DefaultBuildingsLayer,
		Workers:        1,
	}
}

// Layers 每个分幅依次处理的图层
func (c BatchConfig) Layers() []string {
	return []string{c.ParcelsLayer, c.BuildingsLayer}
}

func (c BatchConfig) PointsPath(section string) string {
	return filepath.Join(c.GCPDir, section+".jpg.points")
}

func (c BatchConfig) InputPath(section string) string {
	return filepath.Join(c.InputDir, section+".gpkg")
}

func (c BatchConfig) OutputPath(section, layer string) string {
	return filepath.Join(c.OutputDir, fmt.Sprintf("epsg_%d_%s_%s.gpkg", c.EPSG, section, layer))
}

func (c BatchConfig) MergedPath(layer string) string {
	return filepath.Join(c.OutputDir, fmt.Sprintf("epsg_%d_%s_merged.gpkg", c.EPSG, layer))
}

// Validate 检查配置完整性
func (c BatchConfig) Validate() error {
	switch {
	case c.EPSG <= 0:
		return fmt.Errorf("无效的EPSG代码: %d", c.EPSG)
	case len(c.Sections) == 0:
		return fmt.Errorf("未配置分幅")
	case c.ParcelsLayer == "" || c.BuildingsLayer == "":
		return fmt.Errorf("未配置图层名称")
	case c.OutputDir == "":
		return fmt.Errorf("未配置输出目录")
	}
	return nil
}

// MergeOutput 合并结果
type MergeOutput struct {
	LayerName    string
	OutputPath   string
	FeatureCount int
}

// BatchResult 批量配准结果
type BatchResult struct {
	RunID    string
	Sections map[string][]*GeoreferenceResult // 分幅 -> 按图层顺序的结果
	Merged   []MergeOutput                    // 按图层顺序
	Duration time.Duration
}

// RunBatch 对每个分幅依次配准地块和建筑图层，然后按图层合并全部分幅
// 任一步骤失败即中止并返回带有分幅和图层信息的错误，已生成的文件保留
func RunBatch(ctx context.Context, cfg BatchConfig) (*BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	runID := uuid.New().String()
	ctx = logger.WithFields(ctx, zap.String("run_id", runID))

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("无法创建输出目录 %s: %w", cfg.OutputDir, err)
	}

	srs := NewSpatialReferenceFromEPSG(cfg.EPSG)
	logger.Info(ctx, "开始批量配准",
		zap.Int("epsg", cfg.EPSG),
		zap.Strings("sections", cfg.Sections),
		zap.Strings("layers", cfg.Layers()),
		zap.Int("workers", cfg.Workers))

	results := make([][]*GeoreferenceResult, len(cfg.Sections))
	if cfg.Workers > 1 {
		pool := NewWorkerPool(cfg.Workers)
		g, gctx := errgroup.WithContext(ctx)
		for i, section := range cfg.Sections {
			g.Go(func() error {
				return pool.Execute(gctx, func(ctx context.Context) error {
					res, err := processSection(ctx, cfg, section, srs)
					results[i] = res
					return err
				})
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, section := range cfg.Sections {
			res, err := processSection(ctx, cfg, section, srs)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
	}

	result := &BatchResult{
		RunID:    runID,
		Sections: make(map[string][]*GeoreferenceResult, len(cfg.Sections)),
	}
	for i, section := range cfg.Sections {
		result.Sections[section] = results[i]
	}

	for _, layerName := range cfg.Layers() {
		inputs := make([]string, len(cfg.Sections))
		for i, section := range cfg.Sections {
			inputs[i] = cfg.OutputPath(section, layerName)
		}
		outputPath := cfg.MergedPath(layerName)
		merged, err := MergeLayers(ctx, inputs, layerName, outputPath)
		if err != nil {
			return nil, fmt.Errorf("合并图层 %s 失败: %w", layerName, err)
		}
		result.Merged = append(result.Merged, MergeOutput{
			LayerName:    layerName,
			OutputPath:   outputPath,
			FeatureCount: merged.GetFeatureCount(),
		})
	}

	result.Duration = time.Since(start)
	logger.Info(ctx, "批量配准完成",
		zap.Int("sections", len(cfg.Sections)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// processSection 配准一个分幅的全部图层
func processSection(ctx context.Context, cfg BatchConfig, section string, srs *SpatialReference) ([]*GeoreferenceResult, error) {
	ctx = logger.WithFields(ctx, zap.String("section", section))
	out := make([]*GeoreferenceResult, 0, len(cfg.Layers()))
	for _, layerName := range cfg.Layers() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := GeoreferenceVector(ctx, GeoreferenceOptions{
			SourcePath: cfg.InputPath(section),
			LayerName:  layerName,
			PointsPath: cfg.PointsPath(section),
			OutputPath: cfg.OutputPath(section, layerName),
			SRS:        srs,
		})
		if err != nil {
			return out, fmt.Errorf("分幅 %s 图层 %s: %w", section, layerName, err)
		}
		out = append(out, res)
	}
	return out, nil
}
