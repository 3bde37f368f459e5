package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/testutil"
)

// Scenario is one scripted conversation with the database.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is CUE source declaring the tables and collections that
	// steps may target. Optional when every step targets the database or
	// a keyspace.
	Catalog string `yaml:"catalog,omitempty"`

	// Client scripts the database answers. Unscripted statements succeed
	// with no rows.
	Client []ClientRule `yaml:"client,omitempty"`

	// Steps are the commands to run, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the statements issued across all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ClientRule scripts the answers for statements containing Match.
type ClientRule struct {
	Match string `yaml:"match"`

	// Op restricts the rule to read, write or schema statements.
	Op string `yaml:"op,omitempty"`

	// ValuesContain further restricts the rule to statements whose bind
	// values, printed, contain this text.
	ValuesContain string `yaml:"values_contain,omitempty"`

	// Responses are consumed in order; the last one repeats.
	Responses []ClientResponse `yaml:"responses"`
}

// ClientResponse is one scripted answer. Error, when set, is a driver
// error kind such as WRITE_TIMEOUT and the other fields are ignored.
type ClientResponse struct {
	Rows      []map[string]any `yaml:"rows,omitempty"`
	Applied   *bool            `yaml:"applied,omitempty"`
	PageState string           `yaml:"page_state,omitempty"`
	Error     string           `yaml:"error,omitempty"`
	Message   string           `yaml:"message,omitempty"`
}

// Step runs one command against one target.
type Step struct {
	Target string `yaml:"target"`

	// Command is the command document, JSON or YAML.
	Command yaml.Node `yaml:"command"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes what a step must produce. Unset fields are not checked.
type Expect struct {
	// Rejected is the error code the command must be rejected with
	// before anything is sent to the database.
	Rejected string `yaml:"rejected,omitempty"`

	// Errors are the item error codes of the response, in order.
	Errors []string `yaml:"errors,omitempty"`

	// Status is matched key by key against the response status.
	Status map[string]any `yaml:"status,omitempty"`

	// Documents is the number of documents a read returns.
	Documents *int `yaml:"documents,omitempty"`
}

// Assertion validates the statement trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Fragment is the CQL text looked for (statement_contains, statement_count).
	Fragment string `yaml:"fragment,omitempty"`

	// Op restricts statement_contains to read, write or schema statements.
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of matching statements (statement_count).
	Count int `yaml:"count,omitempty"`

	// Fragments must appear in this order (statement_order).
	Fragments []string `yaml:"fragments,omitempty"`
}

// Assertion type constants.
const (
	AssertStatementContains = "statement_contains"
	AssertStatementOrder    = "statement_order"
	AssertStatementCount    = "statement_count"
)

var ops = map[string]bool{
	string(testutil.OpRead):   true,
	string(testutil.OpWrite):  true,
	string(testutil.OpSchema): true,
}

var errorKinds = map[driver.ErrorKind]bool{
	driver.KindTimeout:       true,
	driver.KindReadTimeout:   true,
	driver.KindWriteTimeout:  true,
	driver.KindUnavailable:   true,
	driver.KindOverloaded:    true,
	driver.KindAlreadyExists: true,
	driver.KindInvalidQuery:  true,
	driver.KindSyntax:        true,
	driver.KindUnauthorized:  true,
	driver.KindConfig:        true,
	driver.KindServer:        true,
	driver.KindUnknown:       true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every .yaml and .yml file directly under dir, sorted by
// file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
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

	for i, rule := range s.Client {
		if err := validateRule(i, &rule); err != nil {
			return err
		}
	}

	for i, step := range s.Steps {
		if step.Command.Kind == 0 {
			return fmt.Errorf("steps[%d]: command is required", i)
		}
		if step.Command.Kind != yaml.MappingNode {
			return fmt.Errorf("steps[%d]: command must be a mapping", i)
		}
		if strings.Count(step.Target, ".") > 1 {
			return fmt.Errorf("steps[%d]: target %q must be empty, keyspace or keyspace.name", i, step.Target)
		}
		if step.Expect != nil && step.Expect.Rejected != "" &&
			(len(step.Expect.Errors) > 0 || step.Expect.Status != nil || step.Expect.Documents != nil) {
			return fmt.Errorf("steps[%d].expect: rejected cannot be combined with response expectations", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(index int, r *ClientRule) error {
	if r.Op != "" && !ops[r.Op] {
		return fmt.Errorf("client[%d]: unknown op %q", index, r.Op)
	}
	if len(r.Responses) == 0 {
		return fmt.Errorf("client[%d]: responses list is required and must be non-empty", index)
	}
	for j, resp := range r.Responses {
		if resp.Error != "" && !errorKinds[driver.ErrorKind(resp.Error)] {
			return fmt.Errorf("client[%d].responses[%d]: unknown error kind %q", index, j, resp.Error)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatementContains:
		if a.Fragment == "" {
			return fmt.Errorf("assertions[%d]: fragment is required for statement_contains", index)
		}
		if a.Op != "" && !ops[a.Op] {
			return fmt.Errorf("assertions[%d]: unknown op %q", index, a.Op)
		}
	case AssertStatementOrder:
		if len(a.Fragments) == 0 {
			return fmt.Errorf("assertions[%d]: fragments list is required for statement_order", index)
		}
	case AssertStatementCount:
		if a.Fragment == "" {
			return fmt.Errorf("assertions[%d]: fragment is required for statement_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for statement_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
