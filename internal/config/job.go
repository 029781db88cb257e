package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Job is a declarative unit of work dropped into a world's job-queue directory.
type Job struct {
	ID     int       `yaml:"id"`
	Name   string    `yaml:"name"`
	Hash   string    `yaml:"hash"`
	Params SimParams `yaml:"params"`
	Mods   []Entry   `yaml:"mods,omitempty"`
	Post   []Entry   `yaml:"post,omitempty"`
	Clean  []Entry   `yaml:"clean,omitempty"`
}

// SimParams selects the solver and how it is run.
type SimParams struct {
	Solver string `yaml:"solver"`
	// NP is the requested process count. process_count is accepted as an alias.
	NP           int    `yaml:"np"`
	ProcessCount int    `yaml:"process_count,omitempty"`
	Args         string `yaml:"args"`
	Decompose    bool   `yaml:"decompose"`
	Reconstruct  bool   `yaml:"reconstruct"`
}

// ArgList splits the solver argument string on whitespace.
func (p SimParams) ArgList() []string {
	return strings.Fields(p.Args)
}

var (
	jobKeys    = []string{"id", "name", "hash", "params"}
	paramsKeys = []string{"solver", "args", "decompose", "reconstruct"}
)

// LoadJob reads and validates a job document.
func LoadJob(path string) (*Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return ParseJob(b, filepath.Base(path))
}

// ParseJob decodes and validates a job document. source names the document in errors.
func ParseJob(data []byte, source string) (*Job, error) {
	return parseJob(data, source, false)
}

// ParseJobDraft is ParseJob for documents not yet submitted: a missing hash is
// filled with NewHash.
func ParseJobDraft(data []byte, source string) (*Job, error) {
	return parseJob(data, source, true)
}

func parseJob(data []byte, source string, fillHash bool) (*Job, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: source, Err: err}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &ConfigError{Path: source, Err: errors.New("loaded job config is not a mapping")}
	}
	root := doc.Content[0]
	if fillHash {
		switch h := mappingValue(root, "hash"); {
		case h == nil:
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "hash"},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: NewHash()},
			)
		case h.Kind == yaml.ScalarNode && h.Value == "":
			h.Tag, h.Value = "!!str", NewHash()
		}
	}

	var problems []string
	for _, k := range missingKeys(root, jobKeys...) {
		problems = append(problems, fmt.Sprintf("required parameter %s not in config", k))
	}
	if pn := mappingValue(root, "params"); pn != nil {
		for _, k := range missingKeys(pn, paramsKeys...) {
			problems = append(problems, fmt.Sprintf("required simulation parameter params/%s not in config", k))
		}
		if mappingValue(pn, "np") == nil && mappingValue(pn, "process_count") == nil {
			problems = append(problems, "required simulation parameter params/np not in config")
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Source: "job " + source, Problems: problems}
	}

	var job Job
	if err := root.Decode(&job); err != nil {
		return nil, &ConfigError{Path: source, Err: err}
	}
	if job.Params.NP == 0 {
		job.Params.NP = job.Params.ProcessCount
	}
	if job.Params.NP < 1 {
		return nil, &ValidationError{Source: "job " + source, Problems: []string{"params/np must be at least 1"}}
	}
	if job.Hash == "" {
		return nil, &ValidationError{Source: "job " + source, Problems: []string{"hash must not be empty"}}
	}

	return &job, nil
}

// NewHash returns a short random identifier for naming a job's output artifacts.
func NewHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// JobFileName builds the queue file name <prefix>.<id>.<hash>.yml.
func JobFileName(prefix string, id int, hash string) string {
	if hash == "" {
		return fmt.Sprintf("%s.%d.yml", prefix, id)
	}
	return fmt.Sprintf("%s.%d.%s.yml", prefix, id, hash)
}

// WriteJob submits job to the queue directory dir and returns the document path.
// An empty hash is filled with NewHash. The document is written under a hidden
// temporary name and renamed into place, so pollers never observe a partial file.
func WriteJob(dir, prefix string, job *Job) (string, error) {
	if job.Hash == "" {
		job.Hash = NewHash()
	}

	b, err := yaml.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	name := JobFileName(prefix, job.ID, job.Hash)
	path := filepath.Join(dir, name)

	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", fmt.Errorf("failed to write job config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to publish job config file: %w", err)
	}

	return path, nil
}
