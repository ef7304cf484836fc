package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/matthewvogt/contactsd/internal/contact"
	"github.com/matthewvogt/contactsd/internal/reconcile"
)

// Store sides addressed by steps and assertions.
const (
	SidePrivileged    = "privileged"
	SideNonprivileged = "nonprivileged"
	SideState         = "state"
)

// Scenario defines a reconciliation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Import enables the nonprivileged → privileged direction.
	Import bool `yaml:"import,omitempty"`

	// MaxSaveRetries overrides the export recreate bound when set.
	MaxSaveRetries *int `yaml:"max_save_retries,omitempty"`

	// NicknameRule selects the self-record nickname rule by name.
	NicknameRule string `yaml:"nickname_rule,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of its fields.
type Step struct {
	Save   *SaveStep  `yaml:"save,omitempty"`
	Remove *RefStep   `yaml:"remove,omitempty"`
	Fail   *FaultStep `yaml:"fail,omitempty"`
	Sync   *SyncStep  `yaml:"sync,omitempty"`
}

// Kind returns the name of the step's populated field.
func (s Step) Kind() string {
	switch {
	case s.Save != nil:
		return "save"
	case s.Remove != nil:
		return "remove"
	case s.Fail != nil:
		return "fail"
	case s.Sync != nil:
		return "sync"
	default:
		return ""
	}
}

func (s Step) kinds() int {
	n := 0
	for _, set := range []bool{s.Save != nil, s.Remove != nil, s.Fail != nil, s.Sync != nil} {
		if set {
			n++
		}
	}
	return n
}

// SaveStep creates the ref's record on a side, or replaces its details
// when the ref is already known there.
type SaveStep struct {
	Side    string       `yaml:"side"`
	Ref     string       `yaml:"ref"`
	Details []DetailSpec `yaml:"details"`
}

// DetailSpec is a detail in scenario form.
type DetailSpec struct {
	Type   string            `yaml:"type"`
	Fields map[string]string `yaml:"fields,omitempty"`
	URI    string            `yaml:"uri,omitempty"`
	Linked []string          `yaml:"linked,omitempty"`
}

// Detail builds the contact detail.
func (d DetailSpec) Detail() (contact.Detail, error) {
	t, err := contact.ParseDetailType(d.Type)
	if err != nil {
		return contact.Detail{}, err
	}
	detail := contact.NewDetail(t)
	for k, v := range d.Fields {
		detail.Set(k, v)
	}
	detail.URI = d.URI
	detail.LinkedURIs = d.Linked
	return detail, nil
}

// RefStep addresses one ref on one side.
type RefStep struct {
	Side string `yaml:"side"`
	Ref  string `yaml:"ref"`
}

// Fault errors.
const (
	FaultGeneric  = "fault"
	FaultNotExist = "not_exist"
	FaultLocked   = "locked"
)

// FaultStep makes the next Times calls of Op on Store fail.
type FaultStep struct {
	Store string `yaml:"store"`
	Op    string `yaml:"op"`
	Error string `yaml:"error"`
	Times int    `yaml:"times,omitempty"`
}

// Err builds the injected error. Batch kinds fail index 0 of the batch.
func (f FaultStep) Err() error {
	switch f.Error {
	case FaultNotExist:
		return &contact.BatchError{Op: f.Op, Errors: map[int]error{0: contact.ErrNotExist}}
	case FaultLocked:
		return &contact.BatchError{Op: f.Op, Errors: map[int]error{0: contact.ErrLocked}}
	default:
		return errors.New("injected fault")
	}
}

// SyncStep runs one pass.
type SyncStep struct {
	Expect *SyncExpect `yaml:"expect,omitempty"`
}

// SyncExpect is a subset match against the pass report. Count maps use the
// report's counter names (added, modified, removed, presence, self,
// recreated, skipped).
type SyncExpect struct {
	State     string         `yaml:"state,omitempty"`
	AbortedIn string         `yaml:"aborted_in,omitempty"`
	Import    map[string]int `yaml:"import,omitempty"`
	Export    map[string]int `yaml:"export,omitempty"`
	Pairs     *int           `yaml:"pairs,omitempty"`
	Writes    *int           `yaml:"writes,omitempty"`
}

// Assertion validates final store contents.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Side   string `yaml:"side,omitempty"`
	Ref    string `yaml:"ref,omitempty"`
	Count  int    `yaml:"count,omitempty"`
	Detail string `yaml:"detail,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Value  string `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordCount   = "record_count"
	AssertPairCount     = "pair_count"
	AssertRecordDetail  = "record_detail"
	AssertDetailAbsent  = "detail_absent"
	AssertRecordMissing = "record_missing"
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

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
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
	if _, err := reconcile.ParseNicknameRule(s.NicknameRule); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if step.kinds() != 1 {
		return fmt.Errorf("steps[%d]: exactly one of save, remove, fail, sync is required", i)
	}
	switch {
	case step.Save != nil:
		if err := validateRef(step.Save.Side, step.Save.Ref); err != nil {
			return fmt.Errorf("steps[%d].save: %w", i, err)
		}
		for j, d := range step.Save.Details {
			if _, err := d.Detail(); err != nil {
				return fmt.Errorf("steps[%d].save.details[%d]: %w", i, j, err)
			}
		}
	case step.Remove != nil:
		if err := validateRef(step.Remove.Side, step.Remove.Ref); err != nil {
			return fmt.Errorf("steps[%d].remove: %w", i, err)
		}
		if step.Remove.Ref == selfRef {
			return fmt.Errorf("steps[%d].remove: the self record cannot be removed", i)
		}
	case step.Fail != nil:
		f := step.Fail
		switch f.Store {
		case SidePrivileged, SideNonprivileged, SideState:
		default:
			return fmt.Errorf("steps[%d].fail: unknown store %q", i, f.Store)
		}
		if f.Op == "" {
			return fmt.Errorf("steps[%d].fail: op is required", i)
		}
		switch f.Error {
		case FaultGeneric, FaultNotExist, FaultLocked:
		default:
			return fmt.Errorf("steps[%d].fail: unknown error %q", i, f.Error)
		}
		if f.Times < 0 {
			return fmt.Errorf("steps[%d].fail: times must be non-negative", i)
		}
	}
	return nil
}

func validateRef(side, ref string) error {
	if side != SidePrivileged && side != SideNonprivileged {
		return fmt.Errorf("unknown side %q", side)
	}
	if ref == "" {
		return fmt.Errorf("ref is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPairCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
		return nil
	case AssertRecordCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRecordDetail:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for record_detail", index)
		}
		fallthrough
	case AssertDetailAbsent:
		if _, err := contact.ParseDetailType(a.Detail); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		fallthrough
	case AssertRecordMissing:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Side != SidePrivileged && a.Side != SideNonprivileged {
		return fmt.Errorf("assertions[%d]: unknown side %q", index, a.Side)
	}
	return nil
}
