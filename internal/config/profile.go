package config

import (
	"context"
	"fmt"
	"os"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/martinhoang/urdf2mjcf/api"
	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
)

// profileFile is the decode target for a conversion profile. Every attribute
// is optional; only the ones present in the file are applied.
type profileFile struct {
	Defaults *profileDefaults `hcl:"defaults,block"`
}

type profileDefaults struct {
	Baseline            *string   `hcl:"baseline,optional"`
	Output              *string   `hcl:"output,optional"`
	AddFloor            *bool     `hcl:"add_floor,optional"`
	FloatingBase        *bool     `hcl:"floating_base,optional"`
	HeightAboveFloor    *float64  `hcl:"height_above_floor,optional"`
	NoActuators         *bool     `hcl:"no_actuators,optional"`
	Armature            *float64  `hcl:"armature,optional"`
	Gains               []float64 `hcl:"gains,optional"`
	DampingMultiplier   *float64  `hcl:"damping_multiplier,optional"`
	GravityCompensation *bool     `hcl:"gravity_compensation,optional"`
	AddRos2Control      *bool     `hcl:"add_ros2_control,optional"`
	AddRosPlugins       *bool     `hcl:"add_ros_plugins,optional"`
	ClockPublisher      *bool     `hcl:"clock_publisher,optional"`
	MimicJoints         *bool     `hcl:"mimic_joints,optional"`
	Ros2ControlConfig   *string   `hcl:"ros2_control_config,optional"`
	Instance            *string   `hcl:"ros2_control_instance,optional"`
	CompilerOptions     []string  `hcl:"compiler_options,optional"`
	Integrator          *string   `hcl:"integrator,optional"`
	Solver              *string   `hcl:"solver,optional"`
	ForceActuatorTags   *bool     `hcl:"force_actuator_tags,optional"`
	SavePreprocessed    *bool     `hcl:"save_preprocessed,optional"`
	Ledger              *string   `hcl:"ledger,optional"`
	LogLevel            *string   `hcl:"log_level,optional"`
}

// ApplyProfile overlays an HCL conversion profile onto opts. Profiles sit
// below the JSON config file in precedence and describe per-site defaults
// (paths, default gains, simulator options). Expressions may call env(NAME).
func ApplyProfile(ctx context.Context, fsys billy.Filesystem, opts *api.Options, path string) error {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read profile %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse profile %s: %w", path, diags)
	}

	var parsed profileFile
	if diags := gohcl.DecodeBody(file.Body, profileEvalContext(), &parsed); diags.HasErrors() {
		return fmt.Errorf("failed to decode profile %s: %w", path, diags)
	}

	d := parsed.Defaults
	if d == nil {
		ctxlog.FromContext(ctx).Warn("profile has no defaults block, nothing applied", "path", path)
		return nil
	}

	applyString(&opts.Baseline, d.Baseline)
	applyString(&opts.Output, d.Output)
	applyBool(&opts.AddFloor, d.AddFloor)
	applyBool(&opts.FloatingBase, d.FloatingBase)
	applyFloat(&opts.HeightAboveFloor, d.HeightAboveFloor)
	applyBool(&opts.NoActuators, d.NoActuators)
	if d.Armature != nil {
		v := *d.Armature
		opts.Armature = &v
	}
	if d.Gains != nil {
		opts.ActuatorGains = d.Gains
	}
	applyFloat(&opts.DampingMultiplier, d.DampingMultiplier)
	applyBool(&opts.GravityCompensation, d.GravityCompensation)
	applyBool(&opts.AddRos2Control, d.AddRos2Control)
	applyBool(&opts.AddRosPlugins, d.AddRosPlugins)
	applyBool(&opts.AddClockPublisher, d.ClockPublisher)
	applyBool(&opts.AddMimicJoints, d.MimicJoints)
	applyString(&opts.Ros2ControlConfig, d.Ros2ControlConfig)
	applyString(&opts.Instance, d.Instance)
	if d.CompilerOptions != nil {
		opts.CompilerOptions = d.CompilerOptions
	}
	applyString(&opts.Integrator, d.Integrator)
	applyString(&opts.Solver, d.Solver)
	applyBool(&opts.ForceActuatorTags, d.ForceActuatorTags)
	applyBool(&opts.SavePreprocessed, d.SavePreprocessed)
	applyString(&opts.Ledger, d.Ledger)
	applyString(&opts.LogLevel, d.LogLevel)

	ctxlog.FromContext(ctx).Info("applied conversion profile", "path", path)
	return nil
}

func profileEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// envFunc exposes environment lookups to profile expressions. Unset
// variables evaluate to the empty string.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func applyFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
