package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted queue flow with assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Online is the initial connectivity. Defaults to true.
	Online *bool `yaml:"online,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted action.
type Step struct {
	Action string `yaml:"action"`

	// ID names the report for enqueue, retry and discard.
	ID string `yaml:"id,omitempty"`

	// Type and Description fill the report for enqueue.
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Reason and Count configure fail_next.
	Reason string `yaml:"reason,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Expect optionally checks the outcome of flush.
	Expect *FlushExpect `yaml:"expect,omitempty"`
}

// FlushExpect checks a flush result.
type FlushExpect struct {
	Synced int `yaml:"synced"`
	Failed int `yaml:"failed"`
}

// Step actions.
const (
	StepEnqueue  = "enqueue"
	StepOnline   = "online"
	StepOffline  = "offline"
	StepFlush    = "flush"
	StepFailNext = "fail_next"
	StepRestart  = "restart"
	StepRetry    = "retry"
	StepDiscard  = "discard"
)

// Failure reasons accepted by fail_next.
const (
	ReasonNetwork  = "network"
	ReasonRejected = "rejected"
	ReasonUnknown  = "unknown"
)

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// IDs is the expected delivery order (submitted_order).
	IDs []string `yaml:"ids,omitempty"`

	// ID selects an entry (status, submit_count).
	ID string `yaml:"id,omitempty"`

	// Status is the expected entry status (status).
	Status string `yaml:"status,omitempty"`

	// Count is the expected number (submit_count, queue_len).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertSubmittedOrder = "submitted_order"
	AssertStatus         = "status"
	AssertSubmitCount    = "submit_count"
	AssertQueueLen       = "queue_len"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch step.Action {
	case StepEnqueue:
		if step.ID == "" || step.Type == "" {
			return fmt.Errorf("steps[%d]: id and type are required for enqueue", i)
		}
	case StepRetry, StepDiscard:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", i, step.Action)
		}
	case StepFailNext:
		switch step.Reason {
		case ReasonNetwork, ReasonRejected, ReasonUnknown:
		default:
			return fmt.Errorf("steps[%d]: unknown fail_next reason %q", i, step.Reason)
		}
		if step.Count < 0 {
			return fmt.Errorf("steps[%d]: count must be non-negative", i)
		}
	case StepOnline, StepOffline, StepFlush, StepRestart:
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}
	if step.Expect != nil && step.Action != StepFlush {
		return fmt.Errorf("steps[%d]: expect is only valid for flush", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertSubmittedOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for submitted_order", index)
		}
	case AssertStatus:
		if a.ID == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: id and status are required for status", index)
		}
	case AssertSubmitCount, AssertQueueLen:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
