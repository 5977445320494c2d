// vrmtool is a CLI utility for inspecting and slimming VRM avatars.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Faultbox/vrmslim/internal/config"
	"github.com/Faultbox/vrmslim/internal/logger"
	"github.com/Faultbox/vrmslim/pkg/reduce"
	"github.com/Faultbox/vrmslim/pkg/vrm"
)

var printer = message.NewPrinter(language.English)

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
	case "usage":
		cmdUsage(args)
	case "reduce":
		cmdReduce(args)
	case "image", "img":
		cmdImage(args)
	case "watch":
		cmdWatch(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`vrmtool - VRM avatar inspection and reduction utility

Usage:
  vrmtool <command> [options]

Commands:
  info <file.vrm>                  Show element counts
  usage <file.vrm>                 Explain why each texture, image, accessor and bufferView is kept
  reduce [options] <in> <out>      Slim an avatar and write the result
  image [-data-url] <file> <index> [out]
                                   Export an embedded image
  watch [options] <in> <out>       Re-run reduce whenever <in> changes

Reduce options:
  -config <path>      Config file (.yaml or .toml)
  -max-side <px>      Maximum texture width/height
  -ratio <r>          Mesh target ratio in (0, 1]
  -keep-bones         Do not prune unused bones
  -keep-thumbnail     Keep the VRM thumbnail
  -keep-blendshapes   Keep blendshape groups
  -dry-run            Report without writing <out>
  -debug              Enable debug logging

Examples:
  vrmtool info avatar.vrm
  vrmtool reduce -max-side 512 -ratio 0.3 avatar.vrm avatar.slim.vrm
  vrmtool image avatar.vrm 0 face.png`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func loadAsset(path string) *vrm.Asset {
	a, err := vrm.LoadFile(path)
	if err != nil {
		fatal(err)
	}
	return a
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vrmtool info <file.vrm>")
		os.Exit(1)
	}

	a := loadAsset(args[0])
	fmt.Printf("File:    %s\n", args[0])
	if v := a.Doc.VRM; v != nil && v.Meta != nil {
		fmt.Printf("Title:   %s\n", v.Meta.Title)
		fmt.Printf("Author:  %s\n", v.Meta.Author)
	}
	if a.Doc.Asset.Generator != "" {
		fmt.Printf("Export:  %s\n", a.Doc.Asset.Generator)
	}
	fmt.Println()
	printStats(a.Stats())
}

func printStats(s vrm.Stats) {
	rows := []struct {
		name  string
		value int
	}{
		{"Nodes", s.Nodes},
		{"Meshes", s.Meshes},
		{"Primitives", s.Primitives},
		{"Triangles", s.Triangles},
		{"Vertices", s.Vertices},
		{"Morph targets", s.MorphTargets},
		{"Blendshapes", s.BlendShapes},
		{"Materials", s.Materials},
		{"Textures", s.Textures},
		{"Images", s.Images},
		{"Accessors", s.Accessors},
		{"BufferViews", s.BufferViews},
		{"Buffer bytes", s.BufferBytes},
	}
	for _, r := range rows {
		printer.Printf("  %-14s %12d\n", r.name, r.value)
	}
}

func cmdUsage(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vrmtool usage <file.vrm>")
		os.Exit(1)
	}

	a := loadAsset(args[0])
	u := vrm.BuildUsage(a.Doc)

	sections := []struct {
		name  string
		total int
		used  map[int][]string
	}{
		{"textures", len(a.Doc.Textures), u.Textures},
		{"images", len(a.Doc.Images), u.Images},
		{"accessors", len(a.Doc.Accessors), u.Accessors},
		{"bufferViews", len(a.Doc.BufferViews), u.BufferViews},
	}
	for _, s := range sections {
		fmt.Printf("%s (%d of %d used):\n", s.name, len(s.used), s.total)
		for i := 0; i < s.total; i++ {
			reasons, ok := s.used[i]
			if !ok {
				fmt.Printf("  [%d] unused\n", i)
				continue
			}
			fmt.Printf("  [%d] %s\n", i, strings.Join(reasons, ", "))
		}
	}
	if unref := u.Unreferenced(); len(unref) > 0 {
		fmt.Printf("images not referenced by any texture: %v\n", unref)
	}
	if len(u.Opaque) > 0 {
		fmt.Printf("every texture and image kept, unmodeled references in: %s\n", strings.Join(u.Opaque, ", "))
	}
}

func cmdImage(args []string) {
	fs := flag.NewFlagSet("image", flag.ExitOnError)
	dataURL := fs.Bool("data-url", false, "Print the image as a data URL instead of writing a file")
	fs.Parse(args)

	if fs.NArg() < 2 || (!*dataURL && fs.NArg() < 3) {
		fmt.Fprintln(os.Stderr, "Usage: vrmtool image [-data-url] <file.vrm> <index> [out]")
		os.Exit(1)
	}

	a := loadAsset(fs.Arg(0))
	var index int
	if _, err := fmt.Sscanf(fs.Arg(1), "%d", &index); err != nil {
		fatal(fmt.Errorf("image index %q: %w", fs.Arg(1), err))
	}

	if *dataURL {
		url, err := a.GetImageAsDataURL(index)
		if err != nil {
			fatal(err)
		}
		fmt.Println(url)
		return
	}

	data, err := a.GetImageBytes(index)
	if err != nil {
		fatal(err)
	}
	mime, err := a.GetImageMimeType(index)
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(fs.Arg(2), data, 0644); err != nil {
		fatal(err)
	}
	printer.Printf("Wrote %s (%s, %d bytes)\n", fs.Arg(2), mime, len(data))
}

// reduceCommand is the state shared by reduce and watch.
type reduceCommand struct {
	cfg    *config.Config
	dryRun bool
	log    *zap.Logger
}

func parseReduceFlags(name string, args []string) (*reduceCommand, []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	dryRun := fs.Bool("dry-run", false, "Report without writing the output file")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Usage: vrmtool %s [options] <in.vrm> <out.vrm>\n", name)
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fatal(err)
	}
	logger.Init(cfg.LoggerOptions())
	return &reduceCommand{cfg: cfg, dryRun: *dryRun, log: logger.Named(name)}, fs.Args()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cmdReduce(args []string) {
	rc, rest := parseReduceFlags("reduce", args)
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := rc.run(ctx, rest[0], rest[1])
	if err != nil {
		fatal(err)
	}
	printReport(report)
}

// run reduces in and writes out. With dryRun the reduction happens on a
// clone and nothing is written.
func (rc *reduceCommand) run(ctx context.Context, in, out string) (*reduce.Report, error) {
	a, err := vrm.LoadFile(in)
	if err != nil {
		return nil, err
	}
	if rc.dryRun {
		if a, err = a.Clone(); err != nil {
			return nil, err
		}
	}

	resizer, err := rc.cfg.Resizer()
	if err != nil {
		return nil, err
	}
	p := reduce.New(rc.cfg.ReduceOptions(), reduce.WithLogger(rc.log), reduce.WithResizer(resizer))
	report, err := p.Reduce(ctx, a)
	if err != nil {
		return nil, err
	}
	if rc.dryRun {
		return report, nil
	}
	if err := a.SaveFile(out); err != nil {
		return nil, err
	}
	rc.log.Info("saved", zap.String("path", out), zap.Int("bytes", report.After.BufferBytes))
	return report, nil
}

func printReport(r *reduce.Report) {
	fmt.Println("Steps:", strings.Join(r.Steps, ", "))
	fmt.Println()
	rows := []struct {
		name          string
		before, after int
	}{
		{"Nodes", r.Before.Nodes, r.After.Nodes},
		{"Triangles", r.Before.Triangles, r.After.Triangles},
		{"Vertices", r.Before.Vertices, r.After.Vertices},
		{"Morph targets", r.Before.MorphTargets, r.After.MorphTargets},
		{"Images", r.Before.Images, r.After.Images},
		{"Accessors", r.Before.Accessors, r.After.Accessors},
		{"BufferViews", r.Before.BufferViews, r.After.BufferViews},
		{"Buffer bytes", r.Before.BufferBytes, r.After.BufferBytes},
	}
	printer.Printf("  %-14s %12s %12s\n", "", "before", "after")
	for _, row := range rows {
		printer.Printf("  %-14s %12d %12d\n", row.name, row.before, row.after)
	}
	fmt.Println()
	printer.Printf("Removed %d nodes, %d blendshapes, %d morph targets; resized %d images; %d edge collapses in %v\n",
		r.RemovedNodes, r.RemovedBlendShapes, r.RemovedMorphTargets, r.ResizedImages, r.Collapses,
		r.Duration.Round(time.Millisecond))

	if len(r.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(r.Warnings))
		for _, w := range slices.Compact(slices.Clone(r.Warnings)) {
			fmt.Printf("  - %s\n", w)
		}
	}
}
