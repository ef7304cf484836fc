package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
import: true
max_save_retries: 2
steps:
  - save:
      side: nonprivileged
      ref: bob
      details:
        - type: name
          fields: { first: Bob }
        - type: avatar
          uri: "file:///tmp/bob.png"
  - fail: { store: state, op: PutOOB, error: fault, times: 2 }
  - sync:
      expect:
        import: { added: 1 }
assertions:
  - type: pair_count
    count: 2
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.True(t, scenario.Import)
	require.NotNil(t, scenario.MaxSaveRetries)
	assert.Equal(t, 2, *scenario.MaxSaveRetries)
	require.Len(t, scenario.Steps, 3)
	assert.Equal(t, "save", scenario.Steps[0].Kind())
	assert.Equal(t, "fail", scenario.Steps[1].Kind())
	assert.Equal(t, "sync", scenario.Steps[2].Kind())
	assert.Equal(t, 2, scenario.Steps[1].Fail.Times)
	assert.Equal(t, map[string]int{"added": 1}, scenario.Steps[2].Sync.Expect.Import)

	d, err := scenario.Steps[0].Save.Details[1].Detail()
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/bob.png", d.URI)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps:\n  - sync: {}\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps:\n  - sync: {}\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nassertion: []\nsteps:\n  - sync: {}\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "two kinds in one step",
			yaml:    "name: n\ndescription: d\nsteps:\n  - sync: {}\n    remove: { side: privileged, ref: a }\n",
			wantErr: "exactly one of",
		},
		{
			name:    "empty step",
			yaml:    "name: n\ndescription: d\nsteps:\n  - {}\n",
			wantErr: "exactly one of",
		},
		{
			name:    "unknown side",
			yaml:    "name: n\ndescription: d\nsteps:\n  - save: { side: state, ref: a }\n",
			wantErr: `unknown side "state"`,
		},
		{
			name:    "missing ref",
			yaml:    "name: n\ndescription: d\nsteps:\n  - remove: { side: privileged }\n",
			wantErr: "ref is required",
		},
		{
			name:    "removing self",
			yaml:    "name: n\ndescription: d\nsteps:\n  - remove: { side: privileged, ref: self }\n",
			wantErr: "self record cannot be removed",
		},
		{
			name:    "bad detail type",
			yaml:    "name: n\ndescription: d\nsteps:\n  - save: { side: privileged, ref: a, details: [{ type: shoe-size }] }\n",
			wantErr: "steps[0].save.details[0]",
		},
		{
			name:    "unknown fault store",
			yaml:    "name: n\ndescription: d\nsteps:\n  - fail: { store: cache, op: Save, error: fault }\n",
			wantErr: `unknown store "cache"`,
		},
		{
			name:    "unknown fault error",
			yaml:    "name: n\ndescription: d\nsteps:\n  - fail: { store: state, op: Save, error: gremlins }\n",
			wantErr: `unknown error "gremlins"`,
		},
		{
			name:    "fault without op",
			yaml:    "name: n\ndescription: d\nsteps:\n  - fail: { store: state, error: fault }\n",
			wantErr: "op is required",
		},
		{
			name:    "unknown nickname rule",
			yaml:    "name: n\ndescription: d\nnickname_rule: shout\nsteps:\n  - sync: {}\n",
			wantErr: "unknown nickname rule",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps:\n  - sync: {}\nassertions:\n  - type: vibes\n",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "record_detail without field",
			yaml:    "name: n\ndescription: d\nsteps:\n  - sync: {}\nassertions:\n  - { type: record_detail, side: privileged, ref: a, detail: name }\n",
			wantErr: "field is required",
		},
		{
			name:    "detail_absent with bad detail",
			yaml:    "name: n\ndescription: d\nsteps:\n  - sync: {}\nassertions:\n  - { type: detail_absent, side: privileged, ref: a, detail: shoe-size }\n",
			wantErr: "assertions[0]",
		},
		{
			name:    "record_missing without side",
			yaml:    "name: n\ndescription: d\nsteps:\n  - sync: {}\nassertions:\n  - { type: record_missing, ref: a }\n",
			wantErr: `unknown side ""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFaultStep_Err(t *testing.T) {
	generic := FaultStep{Op: "Save", Error: FaultGeneric}.Err()
	assert.EqualError(t, generic, "injected fault")

	missing := FaultStep{Op: "Save", Error: FaultNotExist}.Err()
	assert.Contains(t, missing.Error(), "Save")
}
