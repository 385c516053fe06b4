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

package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/GrainArc/Georef"
	"github.com/GrainArc/Georef/internal/config"
	"github.com/GrainArc/Georef/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runCommand(cfg *config.Config) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Georeference every configured section and merge the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			batch := cfg.BatchConfig()
			if cmd.Flags().Changed("workers") {
				batch.Workers = workers
			}

			result, err := Georef.RunBatch(cmd.Context(), batch)
			if err != nil {
				return err
			}
			for _, m := range result.Merged {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", m.LayerName, m.FeatureCount, m.OutputPath)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Number of sections processed in parallel")

	return cmd
}

func georefCommand() *cobra.Command {
	var (
		opts Georef.GeoreferenceOptions
		srs  string
	)

	cmd := &cobra.Command{
		Use:   "georef",
		Short: "Georeference a single layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := Georef.ParseSpatialReference(srs)
			if err != nil {
				return err
			}
			opts.SRS = target

			result, err := Georef.GeoreferenceVector(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", result.LayerName, result.FeatureCount, result.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.SourcePath, "input", "i", "", "Source dataset (.gpkg, .geojson)")
	cmd.Flags().StringVarP(&opts.LayerName, "layer", "l", "", "Layer name")
	cmd.Flags().StringVarP(&opts.PointsPath, "points", "p", "", "Control point file")
	cmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Output dataset")
	cmd.Flags().StringVar(&srs, "srs", "EPSG:2154", "Target coordinate reference system")
	for _, name := range []string{"input", "layer", "points", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func mergeCommand() *cobra.Command {
	var layerName, output string

	cmd := &cobra.Command{
		Use:   "merge [flags] INPUT...",
		Short: "Merge the same layer of several datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := Georef.MergeLayers(cmd.Context(), args, layerName, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", merged.Name, merged.GetFeatureCount(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&layerName, "layer", "l", "", "Layer name")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output dataset")
	_ = cmd.MarkFlagRequired("layer")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func fitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fit POINTS",
		Short: "Print the affine transform fitted from a control point file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := Georef.ReadControlPoints(args[0])
			if err != nil {
				return err
			}
			fit, err := Georef.FitAffine(points)
			if err != nil {
				return err
			}
			logger.Debug(cmd.Context(), "仿射参数",
				zap.Int("rank", fit.Rank),
				zap.Float64("condition", fit.ConditionNumber()))
			printFit(cmd.OutOrStdout(), points, fit)
			return nil
		},
	}
}

func printFit(w io.Writer, points *Georef.ControlPointSet, fit *Georef.AffineFit) {
	p := fit.Parameters
	fmt.Fprintf(w, "a=%.10g b=%.10g c=%.10g\n", p.A, p.B, p.C)
	fmt.Fprintf(w, "d=%.10g e=%.10g f=%.10g\n", p.D, p.E, p.F)
	fmt.Fprintf(w, "points=%d rank=%d rmse=%.6g max=%.6g\n", fit.PointCount, fit.Rank, fit.RMSE, fit.MaxResidual())
	for i, r := range fit.Residuals {
		fmt.Fprintf(w, "line %d\t%.6g\n", points.Lines[i], r)
	}
}

func infoCommand() *cobra.Command {
	var layerName string

	cmd := &cobra.Command{
		Use:   "info DATASET",
		Short: "Describe a layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := Georef.NewFileGeoReader(args[0])
			if err != nil {
				return err
			}
			info, err := reader.GetLayerInfo(cmd.Context(), layerName)
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(info))
			for k := range info {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", k, info[k])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&layerName, "layer", "l", "", "Layer name (first layer when empty)")

	return cmd
}
