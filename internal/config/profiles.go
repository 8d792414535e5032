package config

import (
	"context"
	"strings"
)

// PlatformQuery asks the cluster for its infrastructure platform type.
var PlatformQuery = []string{"oc", "get", "infrastructure/cluster", "-ojsonpath={.status.platformStatus.type}"}

// DetectApplyLightProfile applies profile when JOB_NAME_SAFE is suffix or
// ends with "-suffix". suffix defaults to "light".
func (s *Store) DetectApplyLightProfile(profile, suffix string) error {
	if suffix == "" {
		suffix = "light"
	}
	job := s.opts.Env.JobNameSafe
	if job == "" {
		s.logger.Info("detect_apply_light_profile: JOB_NAME_SAFE not set, assuming not running in a CI environment")
		return nil
	}
	if job != suffix && !strings.HasSuffix(job, "-"+suffix) {
		return nil
	}
	s.logger.Info("light test detected, applying profile", "job", job, "suffix", suffix, "profile", profile)
	return s.ApplyPreset(profile)
}

// DetectApplyMetalProfile applies profile when the cluster reports a
// BareMetal or None platform. A failing query skips the check.
func (s *Store) DetectApplyMetalProfile(ctx context.Context, profile string) error {
	res, err := s.opts.Runner.Run(ctx, PlatformQuery[0], PlatformQuery[1:]...)
	if err != nil {
		var stderr string
		if res != nil {
			stderr = strings.TrimSpace(res.Stderr)
		}
		s.logger.Warn("failed to get the platform type", "error", err, "stderr", stderr)
		s.logger.Warn("ignoring the metal profile check")
		return nil
	}

	platform := strings.TrimSpace(res.Stdout)
	s.logger.Info("detect_apply_metal_profile", "platform", platform)
	if platform != "BareMetal" && platform != "None" {
		s.logger.Info("detect_apply_metal_profile: assuming not running in a bare-metal environment")
		return nil
	}
	s.logger.Info("bare-metal environment detected, applying profile", "profile", profile)
	return s.ApplyPreset(profile)
}
