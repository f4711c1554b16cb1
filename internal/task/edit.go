package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/sequence"
)

// SetDirectory points a target at another directory, keeping its file name.
type SetDirectory struct {
	base
	dir string
}

// NewSetDirectoryFactory returns a Factory building SetDirectory tasks.
func NewSetDirectoryFactory(dir string) (Factory, error) {
	if dir == "" {
		return nil, errors.New("set directory needs a directory")
	}

	return func(target host.Target, sink Sink) (Task, error) {
		return &SetDirectory{
			base: base{name: "Set Directory", target: target, sink: sink},
			dir:  dir,
		}, nil
	}, nil
}

func (s *SetDirectory) Process(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	if err := s.target.SetDirectory(s.dir); err != nil {
		return false, err
	}
	s.sink.Infof("Set directory to %s", s.dir)
	return true, nil
}

// FindReplaceParams configures FindReplace.
type FindReplaceParams struct {
	Find    string
	Replace string
	// Regex treats Find as a regular expression and allows $1 style
	// references in Replace.
	Regex      bool
	IgnoreCase bool
}

func (p FindReplaceParams) compile() (*regexp.Regexp, error) {
	if p.Find == "" {
		return nil, errors.New("find and replace needs a search string")
	}

	expr := p.Find
	if !p.Regex {
		expr = regexp.QuoteMeta(expr)
	}
	if p.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid search expression: %w", err)
	}
	return re, nil
}

// FindReplace rewrites a target's file path with a text substitution.
type FindReplace struct {
	base
	params FindReplaceParams
	re     *regexp.Regexp
}

// NewFindReplaceFactory returns a Factory building FindReplace tasks.
func NewFindReplaceFactory(params FindReplaceParams) (Factory, error) {
	re, err := params.compile()
	if err != nil {
		return nil, err
	}

	return func(target host.Target, sink Sink) (Task, error) {
		return &FindReplace{
			base:   base{name: "Find and Replace", target: target, sink: sink},
			params: params,
			re:     re,
		}, nil
	}, nil
}

func (f *FindReplace) Process(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	path, err := f.target.FilePath()
	if err != nil {
		return false, err
	}

	var replaced string
	if f.params.Regex {
		replaced = f.re.ReplaceAllString(path, f.params.Replace)
	} else {
		replaced = f.re.ReplaceAllLiteralString(path, f.params.Replace)
	}
	if replaced == path {
		f.sink.Infof("Nothing to replace in %s", path)
		return true, nil
	}

	if err := f.target.SetFilePath(replaced); err != nil {
		return false, err
	}
	f.sink.Infof("Set file path to %s", replaced)
	return true, nil
}

// SwitchVariant points a target at the raw or the tiled version of its file.
type SwitchVariant struct {
	base
	toTiled bool
	params  TilingParams
}

// NewSwitchFactory returns a Factory building SwitchVariant tasks.
func NewSwitchFactory(toTiled bool, params TilingParams) (Factory, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	name := "Switch to Raw"
	if toTiled {
		name = "Switch to Tiled"
	}
	return func(target host.Target, sink Sink) (Task, error) {
		return &SwitchVariant{
			base:    base{name: name, target: target, sink: sink},
			toTiled: toTiled,
			params:  params,
		}, nil
	}, nil
}

func (s *SwitchVariant) Process(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	dir, err := s.target.Directory()
	if err != nil {
		return false, err
	}
	filename, err := s.target.Filename()
	if err != nil {
		return false, err
	}

	var path string
	if s.toTiled {
		path, err = s.tiledPath(dir, filename)
	} else {
		path, err = s.rawPath(dir, filename)
	}
	if err != nil {
		return false, err
	}

	if err := s.target.SetFilePath(path); err != nil {
		return false, err
	}
	s.sink.Infof("Set file path to %s", path)
	return true, nil
}

func (s *SwitchVariant) tiledPath(dir, filename string) (string, error) {
	if strings.EqualFold(filepath.Ext(filename), s.params.Extension) {
		return filepath.Join(dir, filename), nil
	}

	tiledDir := TiledDirectory(dir, s.params.RawSegment, s.params.TiledSegment)
	tiledName := TiledFilename(filename, s.params.Extension)
	if sequence.FirstExisting(tiledDir, tiledName) == "" {
		return "", fmt.Errorf("%s: %w", filepath.Join(tiledDir, tiledName), ErrNotFound)
	}
	return filepath.Join(tiledDir, tiledName), nil
}

// rawPath looks for a file sharing the target's stem in the raw directory.
// The raw extension is unknown, so the first non tiled match wins.
func (s *SwitchVariant) rawPath(dir, filename string) (string, error) {
	if !strings.EqualFold(filepath.Ext(filename), s.params.Extension) {
		return filepath.Join(dir, filename), nil
	}

	rawDir := RawDirectory(dir, s.params.RawSegment, s.params.TiledSegment)
	stemTemplate := strings.TrimSuffix(filename, filepath.Ext(filename))
	stem := sequence.FromTemplate(stemTemplate)

	entries, err := os.ReadDir(rawDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading %s: %w", rawDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == "" || strings.EqualFold(ext, s.params.Extension) {
			continue
		}
		if stem.Match(strings.TrimSuffix(entry.Name(), ext)) {
			return filepath.Join(rawDir, stemTemplate+ext), nil
		}
	}
	return "", fmt.Errorf("raw file for %s in %s: %w", filename, rawDir, ErrNotFound)
}
