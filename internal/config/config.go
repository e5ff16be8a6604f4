// Package config layers conversion options from their three external
// sources: an HCL profile, a JSON config file, and the effective-config
// snapshot saved next to every converted model. Precedence is handled by the
// caller (defaults, then profile, then config file, then explicit CLI
// flags); this package only applies one source at a time.
package config

import (
	"context"
	"fmt"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg/oj"

	"github.com/martinhoang/urdf2mjcf/api"
	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
)

// ApplyJSON overlays a JSON config file onto opts. Keys may use dashes or
// underscores; unknown keys and wrongly typed values are skipped with a
// warning so an old or hand-edited config never aborts a run.
func ApplyJSON(ctx context.Context, fsys billy.Filesystem, opts *api.Options, path string) error {
	log := ctxlog.FromContext(ctx)

	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	parsed, err := oj.Parse(data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	values, ok := parsed.(map[string]any)
	if !ok {
		return fmt.Errorf("parse config %s: top level must be an object", path)
	}

	for key, value := range values {
		known, applied := setOption(opts, strings.ReplaceAll(key, "-", "_"), value)
		switch {
		case !known:
			log.Warn("unknown config key, skipped", "key", key)
		case !applied:
			log.Warn("config value has the wrong type, skipped", "key", key)
		}
	}
	log.Info("loaded configuration", "path", path)
	return nil
}

// SaveEffective writes the effective options as pretty-printed JSON so a
// later `urdf2mjcf config.json` invocation reproduces the run. The
// config-file and profile paths themselves are never persisted.
func SaveEffective(fsys billy.Filesystem, path string, opts api.Options) error {
	data, err := oj.Marshal(&opts, 4)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := util.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// setOption assigns one normalized config key. The first return reports
// whether the key is known at all, the second whether the value had a usable
// type.
func setOption(opts *api.Options, key string, value any) (known bool, applied bool) {
	switch key {
	case "input":
		return true, setString(&opts.Input, value)
	case "baseline":
		return true, setString(&opts.Baseline, value)
	case "output":
		return true, setString(&opts.Output, value)
	case "add_floor":
		return true, setBool(&opts.AddFloor, value)
	case "floating_base":
		return true, setBool(&opts.FloatingBase, value)
	case "height_above_floor":
		return true, setFloat(&opts.HeightAboveFloor, value)
	case "no_actuators":
		return true, setBool(&opts.NoActuators, value)
	case "armature":
		if value == nil {
			opts.Armature = nil
			return true, true
		}
		v, ok := toFloat(value)
		if !ok {
			return true, false
		}
		opts.Armature = &v
		return true, true
	case "default_actuator_gains":
		v, ok := toFloats(value)
		if !ok {
			return true, false
		}
		opts.ActuatorGains = v
		return true, true
	case "damping_multiplier":
		return true, setFloat(&opts.DampingMultiplier, value)
	case "gravity_compensation":
		return true, setBool(&opts.GravityCompensation, value)
	case "add_ros2_control":
		return true, setBool(&opts.AddRos2Control, value)
	case "add_ros_plugins":
		return true, setBool(&opts.AddRosPlugins, value)
	case "add_clock_publisher":
		return true, setBool(&opts.AddClockPublisher, value)
	case "add_mimic_joints":
		return true, setBool(&opts.AddMimicJoints, value)
	case "ros2_control_config":
		return true, setString(&opts.Ros2ControlConfig, value)
	case "ros2_control_instance":
		return true, setString(&opts.Instance, value)
	case "compiler_options":
		v, ok := toStrings(value)
		if !ok {
			return true, false
		}
		opts.CompilerOptions = v
		return true, true
	case "integrator":
		return true, setString(&opts.Integrator, value)
	case "solver":
		return true, setString(&opts.Solver, value)
	case "force_actuator_tags":
		return true, setBool(&opts.ForceActuatorTags, value)
	case "save_preprocessed":
		return true, setBool(&opts.SavePreprocessed, value)
	case "ledger":
		return true, setString(&opts.Ledger, value)
	case "log_level":
		return true, setString(&opts.LogLevel, value)
	}
	return false, false
}

func setString(dst *string, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	*dst = s
	return true
}

func setBool(dst *bool, value any) bool {
	b, ok := value.(bool)
	if !ok {
		return false
	}
	*dst = b
	return true
}

func setFloat(dst *float64, value any) bool {
	v, ok := toFloat(value)
	if !ok {
		return false
	}
	*dst = v
	return true
}

// toFloat accepts both number shapes the JSON parser produces.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toFloats(value any) ([]float64, bool) {
	items, ok := value.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		v, ok := toFloat(item)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func toStrings(value any) ([]string, bool) {
	items, ok := value.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
