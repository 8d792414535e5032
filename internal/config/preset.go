package config

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	PresetsKey      = "ci_presets"
	PresetNamesPath = PresetsKey + ".names"
	ExtendsKey      = "extends"
	PRArgPrefix     = "PR_POSITIONAL_ARG_"
)

// ApplyPreset applies the preset stored at ci_presets["name"]. Presets
// listed under its extends key are applied first, depth-first, then its own
// keys in declared order. The command arguments are dumped once at the end.
func (s *Store) ApplyPreset(name string) error {
	if err := s.applyPreset(name, nil); err != nil {
		return err
	}
	s.DumpCommandArgs(context.Background())
	return nil
}

func (s *Store) applyPreset(name string, chain []string) error {
	if slices.Contains(chain, name) {
		return fmt.Errorf("preset cycle: %s -> %s", strings.Join(chain, " -> "), name)
	}
	chain = append(chain, name)

	preset := s.nodeAt(segment{key: PresetsKey}, segment{key: name})
	if preset == nil || preset.Tag == "!!null" {
		s.logger.Error("preset does not exist", "preset", name, "file", s.path)
		return &PresetNotFoundError{Name: name}
	}
	if preset.Kind != yaml.MappingNode {
		return fmt.Errorf("preset %q is not a mapping", name)
	}
	if len(preset.Content) == 0 {
		s.logger.Error("preset is empty", "preset", name, "file", s.path)
		return &PresetNotFoundError{Name: name}
	}
	s.logger.Info("applying preset", "preset", name)

	if err := s.recordPreset(name); err != nil {
		return err
	}

	if extends, i := mappingValue(preset, ExtendsKey); i >= 0 {
		parents, err := presetNames(extends)
		if err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
		for _, parent := range parents {
			if err := s.applyPreset(parent, chain); err != nil {
				return err
			}
		}
	}

	for i := 0; i+1 < len(preset.Content); i += 2 {
		key, value := preset.Content[i].Value, preset.Content[i+1]
		if key == ExtendsKey {
			continue
		}
		msg := fmt.Sprintf("preset[%s] %s --> %v", name, key, display(value))
		s.logger.Info(msg)
		if err := s.appendArtifact(PresetsAppliedFilename, msg); err != nil {
			s.logger.Warn("could not record the applied preset", "error", err)
		}
		if err := s.set(key, value, setOptions{}); err != nil {
			return fmt.Errorf("applying preset %q: %w", name, err)
		}
	}
	return nil
}

// recordPreset adds name to ci_presets.names, creating the list if needed.
func (s *Store) recordPreset(name string) error {
	var names []string
	if n, _ := s.node(PresetNamesPath); n != nil && n.Tag != "!!null" {
		if err := n.Decode(&names); err != nil {
			return fmt.Errorf("decoding %s: %w", PresetNamesPath, err)
		}
	}
	if slices.Contains(names, name) {
		return nil
	}
	return s.set(PresetNamesPath, append(names, name), setOptions{create: true})
}

// presetNames accepts a list of names or a single name.
func presetNames(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", ExtendsKey, err)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("%s must be a list of preset names", ExtendsKey)
	}
}

// ApplyPresetsFromPRArgs applies the presets named by the
// PR_POSITIONAL_ARG_<n> keys, n > 0, in increasing n. Each value is a
// whitespace-separated list of preset names.
func (s *Store) ApplyPresetsFromPRArgs() error {
	type prArg struct {
		n   int
		key string
	}
	var args []prArg
	for _, key := range s.Keys() {
		suffix, ok := strings.CutPrefix(key, PRArgPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			s.logger.Warn("ignoring malformed PR argument key", "key", key)
			continue
		}
		if n == 0 {
			continue
		}
		args = append(args, prArg{n: n, key: key})
	}
	sort.Slice(args, func(i, j int) bool { return args[i].n < args[j].n })

	for _, arg := range args {
		v, err := s.Get(arg.key)
		if err != nil {
			return err
		}
		for _, preset := range strings.Fields(fmt.Sprint(v)) {
			if err := s.ApplyPreset(preset); err != nil {
				return err
			}
		}
	}
	return nil
}
