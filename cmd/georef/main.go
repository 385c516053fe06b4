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

// Package main provides the georef CLI: batch georeferencing of digitized
// cadastral sections, single layer georeferencing, merging and inspection.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/GrainArc/Georef/internal/config"
	"github.com/GrainArc/Georef/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "config.yml"

// loadConfig 读取配置文件，未显式指定且默认文件不存在时只读取环境变量
func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	path, _ := cmd.Flags().GetString("config")
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	*cfg = *loaded
	logger.Setup(cfg.Environment)
	return nil
}

func main() {
	// 读取配置前的错误同样需要输出
	logger.Setup(logger.DevelopmentEnvironment)
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:           "georef",
		Short:         "Georeference digitized vector layers with ground control points",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Config File Path")

	rootCmd.AddCommand(
		runCommand(cfg),
		georefCommand(),
		mergeCommand(),
		fitCommand(),
		infoCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "captured panic, exiting...", zap.Any("panic", p))
			_ = logger.Sync()

			panic(p)
		}
	}()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error(ctx, "command failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1) //nolint: gocritic
	}
}
