package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jgoldverg/grover-tftp/internal"
	"gopkg.in/yaml.v3"
)

// planDocument is a batch of gets and puts against one server.
type planDocument struct {
	Version         int        `json:"version" yaml:"version" toml:"version"`
	Server          string     `json:"server" yaml:"server" toml:"server"`
	Mode            string     `json:"mode" yaml:"mode" toml:"mode"`
	TimeoutMs       *int       `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	MaxRetries      *int       `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	ContinueOnError bool       `json:"continue_on_error" yaml:"continue_on_error" toml:"continue_on_error"`
	Steps           []planStep `json:"steps" yaml:"steps" toml:"steps"`
}

// planStep names either one file (remote/local) or several files kept
// under the same name on both sides (files, with dir as the local side).
type planStep struct {
	Op     string     `json:"op" yaml:"op" toml:"op"`
	Remote string     `json:"remote" yaml:"remote" toml:"remote"`
	Local  string     `json:"local" yaml:"local" toml:"local"`
	Files  stringList `json:"files" yaml:"files" toml:"files"`
	Dir    string     `json:"dir" yaml:"dir" toml:"dir"`
}

type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var value string
		if err := node.Decode(&value); err != nil {
			return err
		}
		s.setScalar(value)
		return nil
	case yaml.SequenceNode:
		var result []string
		for _, child := range node.Content {
			var item string
			if err := child.Decode(&item); err != nil {
				return err
			}
			result = appendTrimmed(result, item)
		}
		*s = result
		return nil
	default:
		return fmt.Errorf("unsupported YAML type for string list")
	}
}

func (s *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		s.setScalar(value)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	var result []string
	for _, item := range list {
		result = appendTrimmed(result, item)
	}
	*s = result
	return nil
}

func (s *stringList) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		s.setScalar(v)
		return nil
	case []any:
		var result []string
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("string list item %d is %T, not a string", i, item)
			}
			result = appendTrimmed(result, str)
		}
		*s = result
		return nil
	default:
		return fmt.Errorf("unsupported TOML type %T for string list", v)
	}
}

func (s *stringList) setScalar(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		*s = nil
		return
	}
	*s = []string{value}
}

func appendTrimmed(list []string, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return list
	}
	return append(list, item)
}

func loadTransferPlanDocument(path string) (*planDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	format := strings.ToLower(filepath.Ext(path))
	switch format {
	case ".yaml", ".yml", ".json", ".toml":
	default:
		format = ".yaml"
	}
	doc, err := decodePlanDocument(data, format)
	if err != nil {
		return nil, err
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Version != 1 {
		return nil, fmt.Errorf("unsupported plan version %d", doc.Version)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodePlanDocument(data []byte, format string) (*planDocument, error) {
	var doc planDocument
	switch format {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse plan file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse plan file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("parse plan file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown plan format %q", format)
	}
	return &doc, nil
}

func (doc *planDocument) validate() error {
	if len(doc.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, st := range doc.Steps {
		op := strings.ToLower(strings.TrimSpace(st.Op))
		if op != opGet && op != opPut {
			return fmt.Errorf("steps[%d]: op must be get or put, got %q", i, st.Op)
		}
		if len(st.Files) > 0 {
			if st.Remote != "" || st.Local != "" {
				return fmt.Errorf("steps[%d]: files cannot be combined with remote/local", i)
			}
			continue
		}
		if op == opGet && strings.TrimSpace(st.Remote) == "" {
			return fmt.Errorf("steps[%d]: get needs remote or files", i)
		}
		if op == opPut && strings.TrimSpace(st.Local) == "" {
			return fmt.Errorf("steps[%d]: put needs local or files", i)
		}
	}
	return nil
}

// toSteps expands the document into one transferStep per file.
func (doc *planDocument) toSteps() []transferStep {
	var steps []transferStep
	for _, st := range doc.Steps {
		op := strings.ToLower(strings.TrimSpace(st.Op))
		if len(st.Files) == 0 {
			steps = append(steps, transferStep{
				Op:     op,
				Remote: strings.TrimSpace(st.Remote),
				Local:  strings.TrimSpace(st.Local),
			}.withDefaults())
			continue
		}
		for _, name := range st.Files {
			local := filepath.FromSlash(name)
			if op == opPut {
				name = filepath.ToSlash(name)
			}
			if st.Dir != "" {
				local = filepath.Join(st.Dir, local)
			}
			steps = append(steps, transferStep{Op: op, Remote: name, Local: local})
		}
	}
	return steps
}

// applyTo overrides the client settings the plan sets.
func (doc *planDocument) applyTo(cfg *internal.ClientConfig) {
	if s := strings.TrimSpace(doc.Server); s != "" {
		cfg.Server = s
	}
	if m := strings.TrimSpace(doc.Mode); m != "" {
		cfg.Mode = m
	}
	if doc.TimeoutMs != nil {
		cfg.TimeoutMs = *doc.TimeoutMs
	}
	if doc.MaxRetries != nil {
		cfg.MaxRetries = *doc.MaxRetries
	}
}
