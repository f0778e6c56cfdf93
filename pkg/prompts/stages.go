// Package prompts holds the stage catalogue: the instructions, sampling
// temperature and declared inputs for every agent stage.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/models"
)

//go:embed stages.yaml
var defaultCatalogue []byte

// Input is one key a stage declares in its input schema.
type Input struct {
	Key      string `yaml:"key"`
	Required bool   `yaml:"required"`
}

// Stage describes how to ask the model to perform one stage.
type Stage struct {
	ID           models.Stage `yaml:"id"`
	Temperature  float64      `yaml:"temperature"`
	System       string       `yaml:"system"`
	Instructions string       `yaml:"instructions"`
	Inputs       []Input      `yaml:"inputs"`
}

// Catalogue maps stage ids to their definitions.
type Catalogue struct {
	stages map[models.Stage]*Stage
}

type catalogueFile struct {
	Stages []*Stage `yaml:"stages"`
}

// Default returns the catalogue compiled into the binary.
func Default() (*Catalogue, error) {
	return Parse(defaultCatalogue)
}

// Parse decodes a YAML catalogue. Every known stage must be defined exactly once.
func Parse(data []byte) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse stage catalogue: %w", err)
	}

	c := &Catalogue{stages: make(map[models.Stage]*Stage, len(file.Stages))}
	for _, s := range file.Stages {
		if !s.ID.Valid() {
			return nil, fmt.Errorf("unknown stage %q in catalogue", s.ID)
		}
		if _, dup := c.stages[s.ID]; dup {
			return nil, fmt.Errorf("stage %q defined twice", s.ID)
		}
		if strings.TrimSpace(s.Instructions) == "" {
			return nil, fmt.Errorf("stage %q has no instructions", s.ID)
		}
		c.stages[s.ID] = s
	}

	for _, id := range models.AllStages {
		if _, ok := c.stages[id]; !ok {
			return nil, fmt.Errorf("stage %q missing from catalogue", id)
		}
	}
	return c, nil
}

// Stage returns the definition for id.
func (c *Catalogue) Stage(id models.Stage) (*Stage, error) {
	s, ok := c.stages[id]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", id)
	}
	return s, nil
}

// BuildPrompt renders the user prompt for input. Required keys that are
// missing or nil produce a *apperrors.ValidationError; keys the stage does
// not declare are ignored.
func (s *Stage) BuildPrompt(input map[string]any) (string, error) {
	for _, in := range s.Inputs {
		if !in.Required {
			continue
		}
		if v, ok := input[in.Key]; !ok || v == nil {
			return "", apperrors.NewValidationError(in.Key, fmt.Sprintf("required by stage %s", s.ID))
		}
	}

	var prompt strings.Builder
	prompt.WriteString(strings.TrimSpace(s.Instructions))
	prompt.WriteString("\n\n# Input\n")

	keys := make([]string, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		if v, ok := input[in.Key]; ok && v != nil {
			keys = append(keys, in.Key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		encoded, err := json.MarshalIndent(input[key], "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode input %s: %w", key, err)
		}
		fmt.Fprintf(&prompt, "\n## %s\n```json\n%s\n```\n", key, encoded)
	}

	prompt.WriteString("\nAnswer with exactly one JSON object in a ```json fenced block.\n")
	return prompt.String(), nil
}
