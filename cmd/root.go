// Package cmd wires the urdf2mjcf command line: the root convert command,
// the URDF inspector, and the run-history viewer. Option precedence is
// defaults < profile < config file < explicit flags, with the positional
// input argument winning over everything.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/martinhoang/urdf2mjcf/api"
	"github.com/martinhoang/urdf2mjcf/internal/config"
	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/pipeline"
	"github.com/martinhoang/urdf2mjcf/internal/runlog"
)

// flagOpts receives the raw flag values. RunE rebuilds the effective options
// from the layered sources and then re-applies only the flags the user
// actually set, so a config file never silently overrides the command line.
var (
	flagOpts         = api.DefaultOptions()
	armatureValue    float64
	noClockPublisher bool
	noMimicJoints    bool
)

var rootCmd = &cobra.Command{
	Use:   "urdf2mjcf [input.urdf | config.json]",
	Short: "Convert a URDF robot description into a post-processed MuJoCo MJCF model",
	Long: `urdf2mjcf applies the <mujoco> extension blocks of a URDF robot
description to a baseline MJCF document: annotation fragments mutate matched
elements, plugins and actuators are synthesized from the ros2_control
declarations, and the converted model is written together with the effective
configuration for reproducible re-runs.

Passing a config.json saved by an earlier run repeats that run.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		input := ""
		if len(args) > 0 {
			input = args[0]
		}
		configFile := flagOpts.ConfigFile
		if strings.HasSuffix(input, ".json") {
			configFile = input
			input = ""
		}

		opts := api.DefaultOptions()
		ctx := cmd.Context()
		if flagOpts.Profile != "" {
			if err := config.ApplyProfile(ctx, osfs.New("/"), &opts, absPath(flagOpts.Profile)); err != nil {
				return err
			}
		}
		if configFile != "" {
			if err := config.ApplyJSON(ctx, osfs.New("/"), &opts, absPath(configFile)); err != nil {
				return err
			}
		}
		overlayChangedFlags(&opts, cmd)
		if input != "" {
			opts.Input = input
		}

		if opts.Input == "" {
			return fmt.Errorf("an input URDF must be given on the command line or in the config file")
		}
		if ext := filepath.Ext(opts.Input); ext != ".urdf" {
			return fmt.Errorf("input must be a .urdf file, got %q (expand xacro sources first)", ext)
		}
		if opts.Baseline == "" {
			return fmt.Errorf("--baseline is required: the MJCF document produced by the MuJoCo import step")
		}

		logger := newLogger(opts.LogLevel, cmd.ErrOrStderr())
		ctx = ctxlog.WithLogger(ctx, logger)

		conv := &pipeline.Converter{FS: osfs.New("/"), Opts: opts}
		result, err := conv.Convert(ctx)
		if err != nil {
			return err
		}

		recordRun(ctx, opts, result)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Converted %s\n", opts.Input)
		fmt.Fprintf(out, "  output:    %s\n", result.OutputPath)
		if result.ConfigPath != "" {
			fmt.Fprintf(out, "  config:    %s\n", result.ConfigPath)
		}
		if result.PreprocessedPath != "" {
			fmt.Fprintf(out, "  urdf:      %s\n", result.PreprocessedPath)
		}
		fmt.Fprintf(out, "  actuators: %d  fragments: %d  warnings: %d\n",
			result.Actuators, result.Fragments, result.Warnings)
		fmt.Fprintf(out, "\nRun this to simulate the model:\n\n  simulate %s\n", result.OutputPath)
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagOpts.ConfigFile, "config-file", "", "JSON config file to load options from")
	f.StringVar(&flagOpts.Profile, "profile", "", "HCL conversion profile applied below the config file")
	f.StringVar(&flagOpts.Baseline, "baseline", "", "Baseline MJCF document produced by the MuJoCo import step")
	f.StringVarP(&flagOpts.Output, "output", "o", "", "Directory for the converted model (default: next to the input)")
	f.BoolVar(&flagOpts.AddFloor, "add-floor", false, "Add a checkerboard ground plane to the world")
	f.BoolVar(&flagOpts.FloatingBase, "floating-base", false, "Give the base link a free joint")
	f.Float64Var(&flagOpts.HeightAboveFloor, "height-above-floor", 0, "Base link height when it has no position of its own")
	f.BoolVar(&flagOpts.NoActuators, "no-actuators", false, "Skip actuator synthesis entirely")
	f.Float64Var(&armatureValue, "armature", 0, "Armature value applied to every joint")
	f.Float64SliceVar(&flagOpts.ActuatorGains, "default-actuator-gains", flagOpts.ActuatorGains,
		"kp,kv gains for position and velocity actuators")
	f.Float64Var(&flagOpts.DampingMultiplier, "damping-multiplier", flagOpts.DampingMultiplier,
		"Multiply every joint damping value by this factor")
	f.BoolVar(&flagOpts.GravityCompensation, "gravity-compensation", false, "Set gravcomp=1 on every body")
	f.BoolVar(&flagOpts.AddRos2Control, "add-ros2-control", false, "Add the ros2_control plugin")
	f.BoolVar(&flagOpts.AddRosPlugins, "add-ros-plugins", false, "Add actuator command plugins for ROS")
	f.BoolVar(&noClockPublisher, "no-clock-publisher", false, "Do not add the clock publisher plugin")
	f.BoolVar(&noMimicJoints, "no-mimic-joints", false, "Do not add mimic joint plugins")
	f.StringVar(&flagOpts.Ros2ControlConfig, "ros2-control-config", "", "Controller configuration file for the ros2_control plugin")
	f.StringVar(&flagOpts.Instance, "ros2-control-instance", flagOpts.Instance, "Name of the ros2_control plugin instance")
	f.StringArrayVar(&flagOpts.CompilerOptions, "compiler-options", nil, "KEY=VALUE compiler attribute overrides (repeatable)")
	f.StringVar(&flagOpts.Integrator, "integrator", "", "Simulation integrator (Euler, RK4, implicitfast)")
	f.StringVar(&flagOpts.Solver, "solver", "", "Simulation solver (PGS, CG, Newton)")
	f.BoolVar(&flagOpts.ForceActuatorTags, "force-actuator-tags", false, "Always suffix actuator names with the interface kind")
	f.BoolVar(&flagOpts.SavePreprocessed, "save-preprocessed", false, "Save the normalized URDF next to the output")
	f.StringVar(&flagOpts.Ledger, "ledger", "", "Run ledger database (default <outdir>/urdf2mjcf.db)")
	f.StringVar(&flagOpts.LogLevel, "log-level", flagOpts.LogLevel, "Log level: debug, info, warn or error")
}

// overlayChangedFlags copies only explicitly set flags onto opts.
func overlayChangedFlags(opts *api.Options, cmd *cobra.Command) {
	apply := map[string]func(){
		"baseline":               func() { opts.Baseline = flagOpts.Baseline },
		"output":                 func() { opts.Output = flagOpts.Output },
		"add-floor":              func() { opts.AddFloor = flagOpts.AddFloor },
		"floating-base":          func() { opts.FloatingBase = flagOpts.FloatingBase },
		"height-above-floor":     func() { opts.HeightAboveFloor = flagOpts.HeightAboveFloor },
		"no-actuators":           func() { opts.NoActuators = flagOpts.NoActuators },
		"armature":               func() { v := armatureValue; opts.Armature = &v },
		"default-actuator-gains": func() { opts.ActuatorGains = flagOpts.ActuatorGains },
		"damping-multiplier":     func() { opts.DampingMultiplier = flagOpts.DampingMultiplier },
		"gravity-compensation":   func() { opts.GravityCompensation = flagOpts.GravityCompensation },
		"add-ros2-control":       func() { opts.AddRos2Control = flagOpts.AddRos2Control },
		"add-ros-plugins":        func() { opts.AddRosPlugins = flagOpts.AddRosPlugins },
		"no-clock-publisher":     func() { opts.AddClockPublisher = !noClockPublisher },
		"no-mimic-joints":        func() { opts.AddMimicJoints = !noMimicJoints },
		"ros2-control-config":    func() { opts.Ros2ControlConfig = flagOpts.Ros2ControlConfig },
		"ros2-control-instance":  func() { opts.Instance = flagOpts.Instance },
		"compiler-options":       func() { opts.CompilerOptions = flagOpts.CompilerOptions },
		"integrator":             func() { opts.Integrator = flagOpts.Integrator },
		"solver":                 func() { opts.Solver = flagOpts.Solver },
		"force-actuator-tags":    func() { opts.ForceActuatorTags = flagOpts.ForceActuatorTags },
		"save-preprocessed":      func() { opts.SavePreprocessed = flagOpts.SavePreprocessed },
		"ledger":                 func() { opts.Ledger = flagOpts.Ledger },
		"log-level":              func() { opts.LogLevel = flagOpts.LogLevel },
	}
	for name, set := range apply {
		if cmd.Flags().Changed(name) {
			set()
		}
	}
}

// recordRun appends the conversion to the run ledger. Ledger problems are
// warnings only; the conversion itself already succeeded.
func recordRun(ctx context.Context, opts api.Options, result *pipeline.Result) {
	log := ctxlog.FromContext(ctx)
	path := opts.Ledger
	if path == "" {
		path = filepath.Join(filepath.Dir(result.OutputPath), "urdf2mjcf.db")
	}
	ledger, err := runlog.Open(absPath(path))
	if err != nil {
		log.Warn("could not open run ledger", "path", path, "error", err)
		return
	}
	defer func() { _ = ledger.Close() }()

	encoded, err := oj.Marshal(&opts)
	if err != nil {
		encoded = []byte("{}")
	}
	if err := ledger.Record(ctx, runlog.Run{
		Input:     opts.Input,
		Baseline:  opts.Baseline,
		Output:    result.OutputPath,
		Actuators: result.Actuators,
		Fragments: result.Fragments,
		Warnings:  int(result.Warnings),
		Options:   string(encoded),
	}); err != nil {
		log.Warn("could not record run in ledger", "path", path, "error", err)
	}
}

// newLogger builds a text logger at the given level. Unknown levels fall
// back to info.
func newLogger(levelStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
