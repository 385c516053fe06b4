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

package config

import (
	"fmt"

	"github.com/GrainArc/Georef"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config 批量配准配置，YAML文件中的值可被 GEOREF_* 环境变量覆盖
type Config struct {
	// Environment 运行环境 (development, production)
	Environment string `env:"GEOREF_ENVIRONMENT" env-default:"development" yaml:"environment"`

	Paths struct {
		// GCPDir 控制点文件目录，文件名为 <分幅>.jpg.points
		GCPDir string `env:"GEOREF_GCP_DIR" env-default:"gcp" yaml:"gcpDir"`
		// InputDir 数字化成果目录，文件名为 <分幅>.gpkg
		InputDir string `env:"GEOREF_INPUT_DIR" env-default:"vecteurs/in" yaml:"inputDir"`
		// OutputDir 输出目录
		OutputDir string `env:"GEOREF_OUTPUT_DIR" env-default:"vecteurs/out" yaml:"outputDir"`
	} `yaml:"paths"`

	// EPSG 目标坐标系
	EPSG int `env:"GEOREF_EPSG" env-default:"2154" yaml:"epsg"`

	// Sections 按顺序处理的分幅
	Sections []string `env:"GEOREF_SECTIONS" env-default:"A1,A2,B1,B2,C1,C2,D1,D2" yaml:"sections"`

	Layers struct {
		Parcels   string `env:"GEOREF_PARCELS_LAYER" env-default:"parcelles" yaml:"parcels"`
		Buildings string `env:"GEOREF_BUILDINGS_LAYER" env-default:"batiments" yaml:"buildings"`
	} `yaml:"layers"`

	// Workers 并行处理的分幅数，1为顺序处理
	Workers int `env:"GEOREF_WORKERS" env-default:"1" yaml:"workers"`
}

// Load 读取YAML配置文件，configPath 为空时只读取环境变量
func Load(configPath string) (*Config, error) {
	var cfg Config
	var err error
	if configPath == "" {
		err = cleanenv.ReadEnv(&cfg)
	} else {
		err = cleanenv.ReadConfig(configPath, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return &cfg, nil
}

// BatchConfig 转换为批量配准参数
func (c *Config) BatchConfig() Georef.BatchConfig {
	return Georef.BatchConfig{
		GCPDir:         c.Paths.GCPDir,
		InputDir:       c.Paths.InputDir,
		OutputDir:      c.Paths.OutputDir,
		EPSG:           c.EPSG,
		Sections:       append([]string(nil), c.Sections...),
		ParcelsLayer:   c.Layers.Parcels,
		BuildingsLayer: c.Layers.Buildings,
		Workers:        c.Workers,
	}
}
