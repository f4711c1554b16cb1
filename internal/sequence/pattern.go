// Package sequence resolves templated file names (UDIM, frame and UV tile tags)
// to the concrete files they describe on disk.
package sequence

import (
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
)

// Tag is a placeholder inside a file name that stands for a varying number.
type Tag string

const (
	TagUDIM   Tag = "<udim>"
	TagFrame  Tag = "<f>"
	TagUVTile Tag = "<uvtile>"
)

// Tags is the full tag vocabulary, in matching order.
var Tags = []Tag{TagUDIM, TagFrame, TagUVTile}

// digitRun replaces every tag in the compiled expression.
const digitRun = `\d+`

// Pattern is a compiled file name template.
type Pattern struct {
	template string
	tags     []Tag
	re       *regexp.Regexp
}

// FromTemplate compiles filename into a Pattern.
//
// The whole name is escaped first and the tags are then located in their escaped
// form, so dots and separators in the name stay literal.
func FromTemplate(filename string) Pattern {
	expr := regexp.QuoteMeta(filename)

	var found []Tag
	for _, tag := range Tags {
		escaped := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(regexp.QuoteMeta(string(tag))))
		if !escaped.MatchString(expr) {
			continue
		}
		found = append(found, tag)
		expr = escaped.ReplaceAllLiteralString(expr, digitRun)
	}

	return Pattern{
		template: filename,
		tags:     found,
		re:       regexp.MustCompile(`^` + expr + `$`),
	}
}

// IsSequence reports whether filename contains any recognized tag.
func IsSequence(filename string) bool {
	lower := strings.ToLower(filename)
	for _, tag := range Tags {
		if strings.Contains(lower, string(tag)) {
			return true
		}
	}
	return false
}

// IsSequence reports whether the template contained at least one tag.
func (p Pattern) IsSequence() bool { return len(p.tags) > 0 }

// Tags returns the tags found in the template, in vocabulary order.
func (p Pattern) Tags() []Tag {
	if len(p.tags) == 0 {
		return nil
	}
	out := make([]Tag, len(p.tags))
	copy(out, p.tags)
	return out
}

// Match reports whether a bare file name belongs to the sequence.
func (p Pattern) Match(name string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(name)
}

// Regexp returns the compiled expression.
func (p Pattern) Regexp() *regexp.Regexp { return p.re }

// String returns the original template.
func (p Pattern) String() string { return p.template }

// Resolve yields the concrete paths for filename inside directory.
//
// A plain file name yields directory/filename whether it exists or not. A
// sequence lists directory once, on first iteration, and yields the matching
// entries in listing order. The returned sequence can be ranged over once.
func Resolve(directory, filename string) iter.Seq[string] {
	var used atomic.Bool

	return func(yield func(string) bool) {
		if used.Swap(true) {
			return
		}

		if !IsSequence(filename) {
			yield(filepath.Join(directory, filename))
			return
		}

		pattern := FromTemplate(filename)
		entries, err := os.ReadDir(directory)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if entry.IsDir() || !pattern.Match(entry.Name()) {
				continue
			}
			if !yield(filepath.Join(directory, entry.Name())) {
				return
			}
		}
	}
}

// FirstExisting returns the first resolved path that names an existing regular
// file, or "" when there is none.
func FirstExisting(directory, filename string) string {
	for path := range Resolve(directory, filename) {
		if isFile(path) {
			return path
		}
	}
	return ""
}

// Existing collects the resolved paths that name existing regular files.
func Existing(directory, filename string) []string {
	var out []string
	for path := range Resolve(directory, filename) {
		if isFile(path) {
			out = append(out, path)
		}
	}
	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
