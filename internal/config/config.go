package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Path variables substituted in universe documents.
const (
	VarWorld = "$WORLD"
	VarLocal = "$LOCAL"
)

// Universe is the top-level configuration naming a set of worlds.
type Universe struct {
	Name    string  `yaml:"name"`
	Version string  `yaml:"version"`
	Worlds  []World `yaml:"worlds"`
}

// World is a universe instance holding environments and shared queue/output directories.
type World struct {
	ID        int           `yaml:"id"`
	WorldDir  string        `yaml:"world_dir"`
	JobDir    string        `yaml:"job_dir"`
	OutputDir string        `yaml:"output_dir"`
	BaseFiles string        `yaml:"base_files"`
	Envs      []Environment `yaml:"envs"`

	missing []string
}

// Environment is one simulation case inside a world.
type Environment struct {
	ID       int     `yaml:"id"`
	Name     string  `yaml:"name"`
	Mods     []Entry `yaml:"mods"`
	EnvFiles string  `yaml:"env_files,omitempty"`

	missing []string
}

var (
	worldKeys = []string{"id", "world_dir", "job_dir", "output_dir", "base_files", "envs"}
	envKeys   = []string{"id", "name"}
)

// BaseSnapshotDir is the world-local copy of the base case files.
func (w *World) BaseSnapshotDir() string {
	return filepath.Join(w.WorldDir, "base_files")
}

// EnvDir returns the case directory of env.
func (w *World) EnvDir(env *Environment) string {
	return filepath.Join(w.WorldDir, env.Name)
}

// Env returns the environment with the given id.
func (w *World) Env(id int) (*Environment, error) {
	for i := range w.Envs {
		if w.Envs[i].ID == id {
			return &w.Envs[i], nil
		}
	}
	return nil, &LookupError{Kind: "environment", ID: id}
}

// Validate reports required world and environment keys missing from the document,
// and duplicate environment ids.
func (w *World) Validate() error {
	var problems []string
	for _, k := range w.missing {
		problems = append(problems, fmt.Sprintf("required parameter %s not in config", k))
	}

	seen := make(map[int]bool)
	for i := range w.Envs {
		env := &w.Envs[i]
		for _, k := range env.missing {
			problems = append(problems, fmt.Sprintf("required environment parameter %s not in config (env #%d)", k, i))
		}
		if seen[env.ID] {
			problems = append(problems, fmt.Sprintf("duplicate environment id %d", env.ID))
		}
		seen[env.ID] = true
	}

	if len(problems) > 0 {
		return &ValidationError{Source: fmt.Sprintf("world %d", w.ID), Problems: problems}
	}
	return nil
}

// World returns the world with the given id.
func (u *Universe) World(id int) (*World, error) {
	for i := range u.Worlds {
		if u.Worlds[i].ID == id {
			return &u.Worlds[i], nil
		}
	}
	return nil, &LookupError{Kind: "world", ID: id}
}

// LoadOptions tunes universe loading.
type LoadOptions struct {
	// Local is the initial binding of $LOCAL and $WORLD. Defaults to the working directory.
	Local string
}

// LoadUniverse reads a universe document, substitutes path variables and decodes it.
func LoadUniverse(path string, opts LoadOptions) (*Universe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if opts.Local == "" {
		if opts.Local, err = os.Getwd(); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
	}

	u, err := ParseUniverse(b, opts.Local)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return u, nil
}

// ParseUniverse decodes a universe document with $LOCAL (and initially $WORLD) bound to local.
func ParseUniverse(data []byte, local string) (*Universe, error) {
	root, err := substitutedRoot(data, local)
	if err != nil {
		return nil, err
	}

	worldsNode := mappingValue(root, "worlds")
	if worldsNode == nil || worldsNode.Kind != yaml.SequenceNode {
		return nil, &ConfigError{Path: "<universe>", Err: errors.New("universe configuration file missing world list")}
	}

	var u Universe
	if err := root.Decode(&u); err != nil {
		return nil, &ConfigError{Path: "<universe>", Err: err}
	}

	seen := make(map[int]bool)
	for i, wn := range worldsNode.Content {
		w := &u.Worlds[i]
		w.missing = missingKeys(wn, worldKeys...)
		if envsNode := mappingValue(wn, "envs"); envsNode != nil && envsNode.Kind == yaml.SequenceNode {
			for j, en := range envsNode.Content {
				w.Envs[j].missing = missingKeys(en, envKeys...)
			}
		}
		if seen[w.ID] {
			return nil, &ConfigError{Path: "<universe>", Err: fmt.Errorf("duplicate world id %d", w.ID)}
		}
		seen[w.ID] = true
	}

	return &u, nil
}

// substitutedRoot parses data and runs the variable pass over its top-level mapping.
func substitutedRoot(data []byte, local string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: "<universe>", Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ConfigError{Path: "<universe>", Err: errors.New("empty document")}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Path: "<universe>", Err: errors.New("top level must be a mapping")}
	}

	newSubstituter(local).walk(root)
	return root, nil
}

// substituter performs the single depth-first variable pass. $WORLD is rebound when a
// mapping holding world_dir is entered and is never restored afterwards.
type substituter struct {
	world string
	local string
}

func newSubstituter(local string) *substituter {
	return &substituter{world: local, local: local}
}

func (s *substituter) walk(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			s.walk(c)
		}
	case yaml.MappingNode:
		if wd := mappingValue(n, "world_dir"); wd != nil && wd.Kind == yaml.ScalarNode {
			s.world = wd.Value
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			s.walk(n.Content[i+1])
		}
	case yaml.ScalarNode:
		if n.ShortTag() == "!!str" {
			n.Value = s.replace(n.Value)
		}
	}
}

// replace substitutes $WORLD before $LOCAL, since a world_dir may itself use $LOCAL.
func (s *substituter) replace(v string) string {
	v = strings.ReplaceAll(v, VarWorld, s.world)
	return strings.ReplaceAll(v, VarLocal, s.local)
}
