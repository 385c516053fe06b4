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
	"strings"
)

const (
	FileTypeGeoPackage = "gpkg"
	FileTypeGeoJSON    = "geojson"
)

// FileGeoReader 文件地理数据读取器
type FileGeoReader struct {
	FilePath string
	FileType string // "gpkg", "geojson"
}

// NewFileGeoReader 创建新的文件地理数据读取器
func NewFileGeoReader(filePath string) (*FileGeoReader, error) {
	// 检查文件是否存在
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Wrap(ErrNotFound, err, "文件不存在: %s", filePath)
		}
		return nil, Wrap(ErrFormat, err, "无法访问文件: %s", filePath)
	}

	fileType, err := determineFileType(filePath)
	if err != nil {
		return nil, err
	}

	return &FileGeoReader{
		FilePath: filePath,
		FileType: fileType,
	}, nil
}

// determineFileType 根据扩展名确定文件类型
func determineFileType(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".gpkg":
		return FileTypeGeoPackage, nil
	case ".geojson", ".json":
		return FileTypeGeoJSON, nil
	default:
		return "", With(ErrFormat, "不支持的文件类型: %s", ext)
	}
}

// ReadLayer 读取图层，layerName 为空时读取第一个图层
func (r *FileGeoReader) ReadLayer(ctx context.Context, layerName ...string) (*VectorLayer, error) {
	name := ""
	if len(layerName) > 0 {
		name = layerName[0]
	}

	switch r.FileType {
	case FileTypeGeoPackage:
		if name == "" {
			layers, err := r.ListLayers(ctx)
			if err != nil {
				return nil, err
			}
			if len(layers) == 0 {
				return nil, With(ErrNotFound, "文件中没有矢量图层: %s", r.FilePath)
			}
			name = layers[0]
		}
		return ReadGeoPackageLayer(ctx, r.FilePath, name)
	case FileTypeGeoJSON:
		return ReadGeoJSONLayer(ctx, r.FilePath, name)
	default:
		return nil, With(ErrFormat, "不支持的文件类型: %s", r.FileType)
	}
}

// ListLayers 列出文件中的图层
func (r *FileGeoReader) ListLayers(ctx context.Context) ([]string, error) {
	switch r.FileType {
	case FileTypeGeoPackage:
		return ListGeoPackageLayers(ctx, r.FilePath)
	case FileTypeGeoJSON:
		layer, err := ReadGeoJSONLayer(ctx, r.FilePath, "")
		if err != nil {
			return nil, err
		}
		return []string{layer.Name}, nil
	default:
		return nil, With(ErrFormat, "不支持的文件类型: %s", r.FileType)
	}
}

// GetLayerInfo 获取图层信息
func (r *FileGeoReader) GetLayerInfo(ctx context.Context, layerName ...string) (map[string]interface{}, error) {
	layer, err := r.ReadLayer(ctx, layerName...)
	if err != nil {
		return nil, err
	}

	fields := make([]map[string]interface{}, len(layer.Fields))
	for i, f := range layer.Fields {
		fields[i] = map[string]interface{}{
			"name":  f.Name,
			"type":  f.Type.String(),
			"width": f.Width,
		}
	}

	info := map[string]interface{}{
		"file":          r.FilePath,
		"layer_name":    layer.Name,
		"feature_count": layer.GetFeatureCount(),
		"geometry_type": layer.GeomType.String(),
		"fields":        fields,
		"srs":           layer.SRS.String(),
	}
	if b, ok := layer.Bound(); ok {
		info["extent"] = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return info, nil
}

// FileGeoWriter 文件地理数据写入器
// Overwrite 为false时GeoPackage以追加图层方式写入，GeoJSON拒绝写入已存在的文件
type FileGeoWriter struct {
	FilePath  string
	FileType  string // "gpkg", "geojson"
	Overwrite bool   // 是否覆盖已存在的文件
}

// NewFileGeoWriter 创建新的文件地理数据写入器
func NewFileGeoWriter(filePath string, overwrite bool) (*FileGeoWriter, error) {
	fileType, err := determineFileType(filePath)
	if err != nil {
		return nil, err
	}

	return &FileGeoWriter{
		FilePath:  filePath,
		FileType:  fileType,
		Overwrite: overwrite,
	}, nil
}

// WriteLayer 写入图层，layerName 非空时以该名称写出
func (w *FileGeoWriter) WriteLayer(ctx context.Context, sourceLayer *VectorLayer, layerName ...string) error {
	if sourceLayer == nil {
		return fmt.Errorf("源图层为空")
	}
	_, statErr := os.Stat(w.FilePath)
	exists := statErr == nil

	layer := sourceLayer
	if len(layerName) > 0 && layerName[0] != "" && layerName[0] != sourceLayer.Name {
		renamed := *sourceLayer
		renamed.Name = layerName[0]
		layer = &renamed
	}

	if dir := filepath.Dir(w.FilePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("无法创建目录 %s: %w", dir, err)
		}
	}

	switch w.FileType {
	case FileTypeGeoPackage:
		// 不覆盖时把图层追加到已有的GeoPackage中
		if exists && !w.Overwrite {
			return AppendGeoPackageLayer(ctx, w.FilePath, layer)
		}
		return WriteGeoPackageLayer(ctx, w.FilePath, layer)
	case FileTypeGeoJSON:
		if exists && !w.Overwrite {
			return fmt.Errorf("文件已存在: %s", w.FilePath)
		}
		return WriteGeoJSONLayer(ctx, w.FilePath, layer)
	default:
		return With(ErrFormat, "不支持的文件类型: %s", w.FileType)
	}
}

// ReadGeospatialFile 读取地理空间文件（自动识别类型）
func ReadGeospatialFile(ctx context.Context, filePath string, layerName ...string) (*VectorLayer, error) {
	reader, err := NewFileGeoReader(filePath)
	if err != nil {
		return nil, err
	}
	return reader.ReadLayer(ctx, layerName...)
}

// WriteGeospatialFile 写入地理空间文件（自动识别类型）
func WriteGeospatialFile(ctx context.Context, sourceLayer *VectorLayer, filePath string, layerName string, overwrite bool) error {
	writer, err := NewFileGeoWriter(filePath, overwrite)
	if err != nil {
		return err
	}
	return writer.WriteLayer(ctx, sourceLayer, layerName)
}

// ConvertFile 文件格式转换
func ConvertFile(ctx context.Context, sourceFilePath string, targetFilePath string, sourceLayerName string, targetLayerName string, overwrite bool) error {
	sourceLayer, err := ReadGeospatialFile(ctx, sourceFilePath, sourceLayerName)
	if err != nil {
		return fmt.Errorf("读取源文件失败: %w", err)
	}
	if targetLayerName == "" {
		targetLayerName = sourceLayer.Name
	}
	if err := WriteGeospatialFile(ctx, sourceLayer, targetFilePath, targetLayerName, overwrite); err != nil {
		return fmt.Errorf("写入目标文件失败: %w", err)
	}
	return nil
}
