package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/process"
	"github.com/aristath/nodemanager/internal/transfer"
)

// Placeholders substituted in TilingParams.Args.
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// TilingParams configures the conversion of source textures into tiled ones.
type TilingParams struct {
	Tool string
	// Args follow Tool; {input} and {output} are replaced per file.
	Args      []string
	Extension string
	// RawSegment is the directory name swapped for TiledSegment to find the
	// output directory.
	RawSegment   string
	TiledSegment string
	// Verbose streams the tool output into the item log while it runs.
	Verbose      bool
	UpdateTarget bool
}

// DefaultTilingParams returns parameters for OpenImageIO's maketx.
func DefaultTilingParams() TilingParams {
	return TilingParams{
		Tool:         "maketx",
		Args:         []string{"-v", "-u", "--oiio", "--monochrome-detect", InputPlaceholder, "-o", OutputPlaceholder},
		Extension:    ".tx",
		RawSegment:   "raw",
		TiledSegment: "tiled",
		UpdateTarget: true,
	}
}

func (p TilingParams) validate() error {
	if p.Tool == "" {
		return errors.New("tiling needs a tool")
	}
	if !strings.HasPrefix(p.Extension, ".") {
		return fmt.Errorf("invalid tiled extension %q", p.Extension)
	}
	if p.RawSegment == "" || p.TiledSegment == "" {
		return errors.New("tiling needs raw and tiled directory names")
	}
	return nil
}

// command returns the tool invocation converting input into output.
func (p TilingParams) command(input, output string) []string {
	args := []string{p.Tool}
	for _, arg := range p.Args {
		arg = strings.ReplaceAll(arg, InputPlaceholder, input)
		arg = strings.ReplaceAll(arg, OutputPlaceholder, output)
		args = append(args, arg)
	}
	return args
}

// TiledDirectory returns where tiled files for dir go: the last raw segment
// of dir is swapped for the tiled one, or a tiled sub-directory is used.
func TiledDirectory(dir, rawSegment, tiledSegment string) string {
	if swapped, ok := swapSegment(dir, rawSegment, tiledSegment); ok {
		return swapped
	}
	return filepath.Join(dir, tiledSegment)
}

// RawDirectory is the inverse of TiledDirectory.
func RawDirectory(dir, rawSegment, tiledSegment string) string {
	if swapped, ok := swapSegment(dir, tiledSegment, rawSegment); ok && isDir(swapped) {
		return swapped
	}
	if filepath.Base(dir) == tiledSegment {
		return filepath.Dir(dir)
	}
	return dir
}

func swapSegment(dir, from, to string) (string, bool) {
	segments := strings.Split(filepath.ToSlash(dir), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if strings.EqualFold(segments[i], from) {
			segments[i] = to
			return filepath.FromSlash(strings.Join(segments, "/")), true
		}
	}
	return "", false
}

// TiledFilename swaps the extension of filename for ext. Tags are kept.
func TiledFilename(filename, ext string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

// GenerateTiled converts every file of a target's sequence with an external
// tool and points the target at the result.
type GenerateTiled struct {
	base
	params   TilingParams
	runner   *process.Runner
	breaker  *gobreaker.CircuitBreaker
	inFlight *InFlight
}

// NewTilingFactory returns a Factory building GenerateTiled tasks.
func NewTilingFactory(params TilingParams, env *Env) (Factory, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	return func(target host.Target, sink Sink) (Task, error) {
		return &GenerateTiled{
			base:     base{name: "Generate Tiled", target: target, sink: sink},
			params:   params,
			runner:   env.Runner,
			breaker:  env.Breakers.Get(params.Tool),
			inFlight: env.InFlight,
		}, nil
	}, nil
}

func (g *GenerateTiled) Process(ctx context.Context) (bool, error) {
	dir, err := g.target.Directory()
	if err != nil {
		return false, err
	}
	filename, err := g.target.Filename()
	if err != nil {
		return false, err
	}
	outDir := TiledDirectory(dir, g.params.RawSegment, g.params.TiledSegment)

	inputs, ok := existingFiles(ctx, dir, filename)
	if !ok {
		return false, nil
	}
	if len(inputs) == 0 {
		return false, fmt.Errorf("%s: %w", filepath.Join(dir, filename), ErrNotFound)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return false, fmt.Errorf("creating output directory: %w", err)
	}

	for _, input := range inputs {
		if ctx.Err() != nil {
			return false, nil
		}

		output := filepath.Join(outDir, TiledFilename(filepath.Base(input), g.params.Extension))
		upToDate, err := transfer.UpToDate(input, output)
		if err != nil {
			return false, err
		}
		if upToDate {
			g.sink.Infof("Skipped %s, %s is up to date", input, output)
			continue
		}

		if !g.inFlight.TryAdd(input) {
			g.sink.Infof("Skipped %s, it is being converted by another item", input)
			continue
		}
		err = g.convert(ctx, input, output)
		g.inFlight.Remove(input)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
	}

	if g.params.UpdateTarget {
		path := filepath.Join(outDir, TiledFilename(filename, g.params.Extension))
		if err := g.target.SetFilePath(path); err != nil {
			return false, err
		}
		g.sink.Infof("Set file path to %s", path)
	}
	return true, nil
}

func (g *GenerateTiled) convert(ctx context.Context, input, output string) error {
	args := g.params.command(input, output)
	g.sink.Infof("Converting %s", input)
	g.sink.Debugf("Running %s", strings.Join(args, " "))

	_, err := g.breaker.Execute(func() (any, error) {
		_, err := g.runner.Run(ctx, args, g.params.Verbose, g.sink)
		return nil, err
	})
	if err == nil {
		g.sink.Infof("Wrote %s", output)
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s disabled after repeated failures: %w", ErrExternalToolFailure, g.params.Tool, err)
	}
	return fmt.Errorf("%w: %w", ErrExternalToolFailure, err)
}
