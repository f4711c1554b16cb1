// Package host defines how tasks read and write attributes of the entities they
// operate on.
package host

import (
	"errors"
	"fmt"
	"path/filepath"
)

// DefaultPathAttribute is the attribute holding a file node's texture path.
const DefaultPathAttribute = "fileTextureName"

// Value is an attribute value.
type Value = any

var (
	ErrNoAttribute = errors.New("attribute does not exist")
	ErrWrongType   = errors.New("attribute has the wrong type")
)

// Entity is a scene object with named attributes.
type Entity interface {
	Name() string
	GetAttribute(name string) (Value, error)
	SetAttribute(name string, value Value) error
}

// Target is an entity together with the attribute that stores its file path.
type Target struct {
	Entity        Entity
	PathAttribute string
}

// NewTarget creates a Target. An empty attribute selects DefaultPathAttribute.
func NewTarget(entity Entity, attribute string) Target {
	if attribute == "" {
		attribute = DefaultPathAttribute
	}
	return Target{Entity: entity, PathAttribute: attribute}
}

// Name returns the entity name.
func (t Target) Name() string { return t.Entity.Name() }

// FilePath returns the stored path, which may contain sequence tags.
func (t Target) FilePath() (string, error) {
	value, err := t.Entity.GetAttribute(t.PathAttribute)
	if err != nil {
		return "", fmt.Errorf("reading %s.%s: %w", t.Entity.Name(), t.PathAttribute, err)
	}
	path, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("reading %s.%s: %w: %T", t.Entity.Name(), t.PathAttribute, ErrWrongType, value)
	}
	return path, nil
}

// Directory returns the directory part of the stored path.
func (t Target) Directory() (string, error) {
	path, err := t.FilePath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

// Filename returns the last element of the stored path.
func (t Target) Filename() (string, error) {
	path, err := t.FilePath()
	if err != nil {
		return "", err
	}
	return filepath.Base(path), nil
}

// SetFilePath replaces the stored path.
func (t Target) SetFilePath(path string) error {
	if err := t.Entity.SetAttribute(t.PathAttribute, filepath.ToSlash(path)); err != nil {
		return fmt.Errorf("writing %s.%s: %w", t.Entity.Name(), t.PathAttribute, err)
	}
	return nil
}

// SetDirectory moves the stored path to directory, keeping the file name.
func (t Target) SetDirectory(directory string) error {
	filename, err := t.Filename()
	if err != nil {
		return err
	}
	return t.SetFilePath(filepath.Join(directory, filename))
}
