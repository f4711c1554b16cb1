// Package scene stores host entities in a JSON or YAML file so the engine can
// run outside of a 3D application.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/nodemanager/internal/host"
)

// ErrUnknownFormat is returned for files that are neither JSON nor YAML.
var ErrUnknownFormat = errors.New("unknown scene format")

// Node is the serialized form of an entity.
type Node struct {
	Name       string                `json:"name" yaml:"name"`
	Type       string                `json:"type,omitempty" yaml:"type,omitempty"`
	Attributes map[string]host.Value `json:"attributes" yaml:"attributes"`
}

type document struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Scene is a loaded set of entities.
type Scene struct {
	types    map[string]string
	entities []*host.MemoryEntity
}

// New creates a scene from nodes.
func New(nodes []Node) *Scene {
	s := &Scene{types: make(map[string]string, len(nodes))}
	for _, node := range nodes {
		s.types[node.Name] = node.Type
		s.entities = append(s.entities, host.NewMemoryEntity(node.Name, node.Attributes))
	}
	return s
}

// Load reads a scene file. The format is picked from the extension.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene: %w", err)
	}

	var doc document
	switch format(path) {
	case "json":
		err = json.Unmarshal(data, &doc)
	case "yaml":
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing scene %s: %w", path, err)
	}

	seen := make(map[string]bool, len(doc.Nodes))
	for _, node := range doc.Nodes {
		if node.Name == "" {
			return nil, fmt.Errorf("parsing scene %s: node without a name", path)
		}
		if seen[node.Name] {
			return nil, fmt.Errorf("parsing scene %s: duplicate node %q", path, node.Name)
		}
		seen[node.Name] = true
	}

	return New(doc.Nodes), nil
}

// Save writes the scene, in the format given by the extension.
func (s *Scene) Save(path string) error {
	doc := document{Nodes: s.Nodes()}

	var (
		data []byte
		err  error
	)
	switch format(path) {
	case "json":
		data, err = json.MarshalIndent(doc, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(doc)
	default:
		return fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return fmt.Errorf("encoding scene: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating scene directory: %w", err)
		}
	}
	// Write to a temp file and rename so a crash never leaves half a scene.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing scene: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing scene: %w", err)
	}
	return nil
}

// Nodes returns the current state of every entity.
func (s *Scene) Nodes() []Node {
	nodes := make([]Node, 0, len(s.entities))
	for _, entity := range s.entities {
		nodes = append(nodes, Node{
			Name:       entity.Name(),
			Type:       s.types[entity.Name()],
			Attributes: entity.Attributes(),
		})
	}
	return nodes
}

// Select returns the entities with the given names, in scene order. No names
// selects everything.
func (s *Scene) Select(names ...string) []host.Entity {
	var out []host.Entity
	for _, entity := range s.entities {
		if len(names) == 0 || slices.Contains(names, entity.Name()) {
			out = append(out, entity)
		}
	}
	return out
}

// Modified reports whether any entity was written since loading.
func (s *Scene) Modified() bool {
	for _, entity := range s.entities {
		if entity.Modified() {
			return true
		}
	}
	return false
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}
