package main

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMigrator struct {
	calls   []string
	steps   int
	forced  int
	failOn  string
	version uint
}

func (m *recordingMigrator) record(name string) error {
	m.calls = append(m.calls, name)
	if m.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (m *recordingMigrator) Up() error   { return m.record("up") }
func (m *recordingMigrator) Down() error { return m.record("down") }

func (m *recordingMigrator) Steps(n int) error {
	m.steps = n
	return m.record("steps")
}

func (m *recordingMigrator) Force(v int) error {
	m.forced = v
	return m.record("force")
}

func (m *recordingMigrator) Version() (uint, bool, error) {
	m.calls = append(m.calls, "version")
	return m.version, false, nil
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		check     func(t *testing.T, m *recordingMigrator)
	}{
		{name: "up", args: []string{"-up"}, wantCalls: []string{"up", "version"}},
		{name: "down", args: []string{"-down"}, wantCalls: []string{"down", "version"}},
		{
			name:      "steps down",
			args:      []string{"-steps", "-2"},
			wantCalls: []string{"steps", "version"},
			check:     func(t *testing.T, m *recordingMigrator) { assert.Equal(t, -2, m.steps) },
		},
		{
			name:      "force zero",
			args:      []string{"-force", "0"},
			wantCalls: []string{"force", "version"},
			check:     func(t *testing.T, m *recordingMigrator) { assert.Equal(t, 0, m.forced) },
		},
		{name: "version only", args: []string{"-version"}, wantCalls: []string{"version"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := parseAction(tt.args, io.Discard)
			require.NoError(t, err)

			m := &recordingMigrator{version: 1}
			require.NoError(t, act.execute(m, zerolog.Nop()))
			assert.Equal(t, tt.wantCalls, m.calls)
			if tt.check != nil {
				tt.check(t, m)
			}
		})
	}
}

func TestParseAction_Errors(t *testing.T) {
	_, err := parseAction(nil, io.Discard)
	assert.ErrorIs(t, err, errNoAction)

	_, err = parseAction([]string{"-up", "-version"}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only one action")

	_, err = parseAction([]string{"-unknown"}, io.Discard)
	assert.Error(t, err)
}

func TestAction_ExecuteWrapsFailure(t *testing.T) {
	act, err := parseAction([]string{"-up"}, io.Discard)
	require.NoError(t, err)

	m := &recordingMigrator{failOn: "up"}
	err = act.execute(m, zerolog.Nop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate up: up failed")
	assert.Equal(t, []string{"up"}, m.calls)
}

func TestAction_Source(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "configured dir", args: []string{"-up"}, want: "migrations"},
		{name: "embedded", args: []string{"-up", "-embedded"}, want: ""},
		{name: "path wins", args: []string{"-up", "-embedded", "-path", "/srv/sql"}, want: "/srv/sql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := parseAction(tt.args, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.want, act.source("migrations"))
		})
	}
}
