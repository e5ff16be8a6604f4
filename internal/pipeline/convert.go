// Package pipeline drives a full conversion run: extract the annotation
// views from the URDF description, mutate a parsed copy of the baseline MJCF
// document step by step, dispatch the annotation fragments, and write the
// converted model plus its effective config.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"

	"github.com/martinhoang/urdf2mjcf/api"
	"github.com/martinhoang/urdf2mjcf/internal/actuator"
	"github.com/martinhoang/urdf2mjcf/internal/config"
	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/mjcf"
	"github.com/martinhoang/urdf2mjcf/internal/patch"
	"github.com/martinhoang/urdf2mjcf/internal/urdf"
)

// Converter runs conversions over a filesystem. The filesystem is the only
// I/O boundary: everything between reading the inputs and writing the
// outputs operates on in-memory trees.
type Converter struct {
	FS   billy.Filesystem
	Opts api.Options
}

// Result summarizes one conversion for the CLI and the run ledger.
type Result struct {
	OutputPath       string
	ConfigPath       string
	PreprocessedPath string
	Actuators        int
	Fragments        int
	MimicJoints      int
	Warnings         int64
}

// Convert performs one conversion run. Malformed inputs and I/O failures on
// the primary outputs are fatal; everything else degrades to warnings, which
// are counted into the Result.
func (c *Converter) Convert(ctx context.Context) (*Result, error) {
	counter := ctxlog.NewWarnCounter(ctxlog.FromContext(ctx).Handler())
	log := slog.New(counter)
	ctx = ctxlog.WithLogger(ctx, log)

	input := urdf.ResolvePath(ctx, c.Opts.Input)
	if input == "" {
		return nil, fmt.Errorf("input path %q could not be resolved", c.Opts.Input)
	}
	if _, err := c.FS.Stat(input); err != nil {
		return nil, fmt.Errorf("input file %s: %w", input, err)
	}
	if c.Opts.Baseline == "" {
		return nil, fmt.Errorf("no baseline mjcf given: pass the document produced by the physics importer")
	}
	baseline := urdf.ResolvePath(ctx, c.Opts.Baseline)
	if baseline == "" {
		return nil, fmt.Errorf("baseline path %q could not be resolved", c.Opts.Baseline)
	}

	outRoot := c.Opts.Output
	if outRoot == "" {
		log.Warn("no output directory specified, using the input directory")
		outRoot = filepath.Dir(input)
	} else {
		outRoot = urdf.ResolvePath(ctx, outRoot)
	}
	stem := modelStem(filepath.Base(input))
	outDir := c.FS.Join(outRoot, stem)
	if err := c.FS.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	model, err := urdf.ParseFile(ctx, c.FS, input, c.Opts.CompilerOptions)
	if err != nil {
		return nil, err
	}
	doc, err := mjcf.ParseFile(c.FS, baseline)
	if err != nil {
		return nil, err
	}
	log.Info("loaded inputs", "input", input, "baseline", baseline,
		"fragments", len(model.Fragments), "plugins", len(model.Plugins))

	res := &Result{
		OutputPath:  c.FS.Join(outDir, stem+".xml"),
		ConfigPath:  c.FS.Join(outDir, "config.json"),
		Fragments:   len(model.Fragments),
		MimicJoints: len(model.MimicJoints),
	}

	if c.Opts.SavePreprocessed {
		res.PreprocessedPath = c.FS.Join(outDir, stem+".preprocessed.urdf")
		if err := model.SaveNormalized(c.FS, res.PreprocessedPath); err != nil {
			return nil, err
		}
		log.Info("saved pre-processed description", "path", res.PreprocessedPath)
	}

	if c.Opts.DampingMultiplier != 1.0 {
		scaleJointDamping(ctx, doc, c.Opts.DampingMultiplier)
	}
	for _, decl := range model.Plugins {
		transformPlugin(ctx, doc, decl)
	}
	applyCompilerAttrs(ctx, doc, model.CompilerAttrs)
	addDefaultLight(ctx, doc)
	if c.Opts.AddClockPublisher {
		addClockPublisher(ctx, doc)
	}
	if c.Opts.AddRos2Control {
		addRos2Control(ctx, doc, c.Opts.Instance, c.Opts.Ros2ControlConfig)
	}
	groupRosUtilsPlugins(ctx, doc)
	if c.Opts.FloatingBase {
		makeBaseFloating(ctx, doc, c.Opts.HeightAboveFloor)
	}
	if c.Opts.AddFloor {
		addFloor(ctx, doc)
	}
	if !c.Opts.NoActuators {
		synth := &actuator.Synthesizer{
			Doc:           doc,
			KP:            c.Opts.KP(),
			KV:            c.Opts.KV(),
			ForceSuffix:   c.Opts.ForceActuatorTags,
			AddRosPlugins: c.Opts.AddRosPlugins,
			Instance:      c.Opts.Instance,
		}
		res.Actuators = synth.AddActuators(ctx, model.ControlInterfaces, model.MimicJoints)
		if c.Opts.AddMimicJoints && len(model.MimicJoints) > 0 {
			synth.AddMimicPlugins(ctx, model.MimicJoints)
		}
		groupRosUtilsPlugins(ctx, doc)
	}
	if c.Opts.GravityCompensation {
		enableGravityCompensation(ctx, doc)
	}
	if c.Opts.Armature != nil {
		setJointArmature(ctx, doc, *c.Opts.Armature)
	}
	setSimulationOptions(ctx, doc, c.Opts.Solver, c.Opts.Integrator)

	patch.NewDispatcher(doc).Process(ctx, model.Fragments)
	groupRosUtilsPlugins(ctx, doc)

	if err := doc.WriteFile(c.FS, res.OutputPath); err != nil {
		return nil, err
	}
	log.Info("wrote converted model", "path", res.OutputPath)

	// The effective config reproduces this run via `urdf2mjcf config.json`.
	saved := c.Opts
	saved.Input = input
	if err := config.SaveEffective(c.FS, res.ConfigPath, saved); err != nil {
		log.Warn("could not save effective config", "path", res.ConfigPath, "error", err)
		res.ConfigPath = ""
	}

	res.Warnings = counter.Count()
	return res, nil
}
