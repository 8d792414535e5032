package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/matbench/internal/command"
	"github.com/signalnine/matbench/internal/config"
	"github.com/signalnine/matbench/internal/env"
)

const profileConfig = `profile: default
ci_presets:
  light:
    profile: light
  metal:
    profile: metal
`

func profileOf(t *testing.T, s *config.Store) any {
	t.Helper()
	v, err := s.Get("profile")
	require.NoError(t, err)
	return v
}

func TestDetectApplyLightProfile(t *testing.T) {
	tests := []struct {
		job  string
		want string
	}{
		{"", "default"},
		{"light", "light"},
		{"e2e-light", "light"},
		{"lightning", "default"},
		{"e2e-light-extra", "default"},
	}
	for _, tt := range tests {
		s := open(t, writeConfig(t, profileConfig), config.Options{Env: env.Env{JobNameSafe: tt.job}})
		require.NoError(t, s.DetectApplyLightProfile("light", ""))
		assert.Equal(t, tt.want, profileOf(t, s), "job %q", tt.job)
	}
}

func TestDetectApplyMetalProfile(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		want   string
	}{
		{"baremetal", &fakeRunner{res: &command.Result{Stdout: "BareMetal"}}, "metal"},
		{"none", &fakeRunner{res: &command.Result{Stdout: "None\n"}}, "metal"},
		{"cloud", &fakeRunner{res: &command.Result{Stdout: "AWS"}}, "default"},
		{"query fails", &fakeRunner{res: &command.Result{Stderr: "forbidden", ExitCode: 1}, err: errors.New("exit status 1")}, "default"},
	}
	for _, tt := range tests {
		s := open(t, writeConfig(t, profileConfig), config.Options{Runner: tt.runner})
		require.NoError(t, s.DetectApplyMetalProfile(context.Background(), "metal"), tt.name)
		assert.Equal(t, tt.want, profileOf(t, s), tt.name)
		assert.Equal(t, config.PlatformQuery, tt.runner.args, tt.name)
	}
}
