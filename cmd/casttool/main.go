// casttool is a CLI utility for inspecting Cast scenes and converting them
// to glTF.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/cast-importer/internal/config"
	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/internal/export"
	"github.com/Faultbox/cast-importer/internal/importer"
	"github.com/Faultbox/cast-importer/internal/logger"
	"github.com/Faultbox/cast-importer/pkg/cast"
)

var errNoSkeleton = errors.New("file has no skeleton")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "convert", "c":
		cmdConvert(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`casttool - Cast scene importer

Usage:
  casttool <command> [options] <args>

Commands:
  info <file.yaml>                   Show models, meshes and animations
  convert [options] <file.yaml>      Reconstruct the scene and write glTF
  config [options] [path]            Write the effective config file

Options (before positional arguments):
  -config <path>       Config file (default ./casttool.yaml)
  -scale-unit <unit>   meters, inches, centimeters
  -scale <n>           Scale multiplier
  -recalc-normals      Recompute normals from faces
  -lightmap-uvs        Generate a lightmap UV layer
  -optimize <mode>     none, polygonOrder, vertexOrder, everything
  -rig <type>          generic, humanoid, legacy
  -skeleton <file>     Bind every animation to this file's skeleton
  -o <file>            Output file
  -format <fmt>        glb or gltf
  -workers <n>         Parallel workers (0 = all CPUs)
  -debug               Enable debug logging

Examples:
  casttool info hero.yaml
  casttool convert -scale-unit centimeters hero.yaml
  casttool convert -skeleton rig.yaml -format gltf -o walk.gltf walk.yaml
  casttool config -rig legacy ./casttool.yaml`)
}

func cmdInfo(args []string) {
	rest, err := config.ParseFlags(args)
	if err != nil || len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: casttool info <file.yaml>")
		os.Exit(1)
	}

	f, err := cast.Load(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	models := f.Models()
	anims := f.Animations()

	fmt.Printf("File:       %s\n", rest[0])
	fmt.Printf("Roots:      %d\n", len(f.Roots))
	fmt.Printf("Models:     %d\n", len(models))
	fmt.Printf("Animations: %d\n", len(anims))

	for _, m := range models {
		var verts, faces, uvLayers int
		for _, mesh := range m.Meshes {
			verts += mesh.VertexCount()
			faces += mesh.FaceCount()
			uvLayers = max(uvLayers, mesh.UVLayerCount())
		}
		fmt.Println()
		fmt.Printf("Model %q\n", m.Name)
		fmt.Printf("  Bones:        %d\n", len(m.Bones()))
		fmt.Printf("  Meshes:       %d\n", len(m.Meshes))
		fmt.Printf("  Vertices:     %d\n", verts)
		fmt.Printf("  Faces:        %d\n", faces)
		fmt.Printf("  UV layers:    %d\n", uvLayers)
		fmt.Printf("  Blend shapes: %d\n", len(m.BlendShapes))
	}

	if len(anims) > 0 {
		fmt.Println()
		fmt.Println("Animations:")
	}
	for _, a := range anims {
		fmt.Printf("  %-20s %6.2f fps  %3d curves  %2d notifications  loop=%v\n",
			a.Name, a.Framerate, len(a.Curves), len(a.Notifications), a.Looping)
	}
}

func cmdConvert(args []string) {
	rest, err := config.ParseFlags(args)
	if err != nil || len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: casttool convert [options] <file.yaml>")
		os.Exit(1)
	}
	input := rest[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := convert(cfg, input); err != nil {
		logger.Error("Conversion failed", zap.String("input", input), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// convert imports input and writes it in the configured format. Items that
// fail still leave the rest of the scene exported, but the combined errors
// are returned.
func convert(cfg *config.Config, input string) error {
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	settings.SourceName = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	if path := cfg.Import.ExternalSkeleton; path != "" {
		skel, err := loadSkeleton(path, settings.TotalScale())
		if err != nil {
			return fmt.Errorf("loading skeleton %s: %w", path, err)
		}
		settings.ExternalSkeleton = skel
		logger.Info("External skeleton loaded", zap.String("path", path), zap.Int("bones", skel.Len()))
	}

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}
	output := cfg.Export.Output
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "." + format.String()
	}

	f, err := cast.Load(input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	im := importer.New(settings,
		importer.WithLogger(logger.Log),
		importer.WithWorkers(cfg.Import.Workers),
		importer.WithProgress(func(p importer.Progress) {
			logger.Debug("Imported",
				zap.String("stage", p.Stage),
				zap.String("name", p.Name),
				zap.Int("done", p.Done),
				zap.Int("total", p.Total))
		}),
	)

	res, importErr := im.Import(ctx, f)
	if res == nil {
		return importErr
	}
	for _, w := range res.Warnings {
		logger.Warn("Import warning", zap.Error(w))
	}

	if err := export.Save(res, output, format); err != nil {
		return multierr.Append(importErr, fmt.Errorf("writing %s: %w", output, err))
	}

	logger.Info("Exported",
		zap.String("output", output),
		zap.Stringer("format", format),
		zap.Int("models", len(res.Models)),
		zap.Int("clips", len(res.Clips)),
		zap.Int("warnings", len(res.Warnings)))
	return importErr
}

// loadSkeleton builds the first skeleton found in a Cast file.
func loadSkeleton(path string, scale float32) (*skeleton.Skeleton, error) {
	f, err := cast.Load(path)
	if err != nil {
		return nil, err
	}
	for _, m := range f.Models() {
		if m.Skeleton != nil {
			return skeleton.Build(m.Bones(), scale)
		}
	}
	return nil, errNoSkeleton
}

func cmdConfig(args []string) {
	rest, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: casttool config [options] [path]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var path string
	if len(rest) > 0 {
		path = rest[0]
		err = cfg.SaveTo(path)
	} else {
		path, err = cfg.Save()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", path)
}
