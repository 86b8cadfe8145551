package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunRequest describes a workflow to start. Requests are usually written
// as small YAML files and handed to the run command.
type RunRequest struct {
	// ID names the workflow. Left empty, a fresh id is generated.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Prompt is the instruction the automation engines work from.
	Prompt string `json:"prompt" yaml:"prompt"`

	// Engine selects the automation engine. Left empty, the configured
	// default applies.
	Engine string `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// Validate checks the request for problems that would fail the run later.
func (r *RunRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return NewConfigurationError("run request prompt required")
	}
	if r.ID != "" {
		if err := ValidateWorkflowID(r.ID); err != nil {
			return err
		}
	}
	return nil
}

// LoadRunRequest loads a run request from a YAML file.
func LoadRunRequest(path string) (*RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run request file: %w", err)
	}
	return ParseRunRequest(data)
}

// ParseRunRequest parses a run request from YAML.
func ParseRunRequest(data []byte) (*RunRequest, error) {
	var request RunRequest
	if err := yaml.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run request: %w", err)
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return &request, nil
}
