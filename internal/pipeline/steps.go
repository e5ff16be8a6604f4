package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/mjcf"
	"github.com/martinhoang/urdf2mjcf/internal/patch"
	"github.com/martinhoang/urdf2mjcf/internal/urdf"
)

const (
	pluginClockPublisher = "MujocoRosUtils::ClockPublisher"
	pluginRos2Control    = "MujocoRosUtils::Ros2Control"
	rosUtilsPrefix       = "MujocoRosUtils::"
)

// scaleJointDamping multiplies every joint damping value in the document by
// factor. Joints without a damping attribute are untouched; values that do
// not parse are skipped with a warning.
func scaleJointDamping(ctx context.Context, doc *mjcf.Document, factor float64) {
	log := ctxlog.FromContext(ctx)
	scaled := 0
	for _, joint := range patch.FindMatches(ctx, doc.Root(), "joint", nil) {
		attr := joint.SelectAttr("damping")
		if attr == nil {
			continue
		}
		v, err := strconv.ParseFloat(attr.Value, 64)
		if err != nil {
			log.Warn("unparseable joint damping, skipped",
				"joint", joint.SelectAttrValue("name", ""), "damping", attr.Value)
			continue
		}
		joint.CreateAttr("damping", mjcf.FormatFloat(v*factor))
		scaled++
	}
	log.Info("scaled joint damping", "factor", factor, "joints", scaled)
}

// transformPlugin rewrites a description-style <plugin filename=... name=...>
// declaration into an MJCF extension plugin with an <instance> and one config
// entry per child element. Parameter values go through path resolution;
// parameters that resolve to nothing are dropped.
func transformPlugin(ctx context.Context, doc *mjcf.Document, decl *etree.Element) {
	log := ctxlog.FromContext(ctx)

	pluginName := decl.SelectAttrValue("filename", "")
	if pluginName == "" {
		log.Warn("skipping custom <plugin> with no filename attribute")
		return
	}
	instanceName := decl.SelectAttrValue("name", pluginName)

	ext := doc.EnsureExtension()
	plugin := ext.CreateElement("plugin")
	plugin.CreateAttr("plugin", pluginName)
	instance := plugin.CreateElement("instance")
	instance.CreateAttr("name", instanceName)

	for _, param := range decl.ChildElements() {
		value := urdf.ResolvePath(ctx, strings.TrimSpace(param.Text()))
		if value == "" {
			log.Warn("could not resolve plugin parameter, skipped",
				"plugin", pluginName, "param", param.Tag)
			continue
		}
		cfg := instance.CreateElement("config")
		cfg.CreateAttr("key", param.Tag)
		cfg.CreateAttr("value", value)
	}
	log.Info("added custom plugin", "plugin", pluginName, "instance", instanceName)
}

// applyCompilerAttrs writes the effective compiler attributes onto the
// document's <compiler>, creating the section first when the baseline lacks
// one.
func applyCompilerAttrs(ctx context.Context, doc *mjcf.Document, attrs []patch.Pair) {
	compiler := doc.EnsureCompiler()
	for _, p := range attrs {
		compiler.CreateAttr(p.Key, p.Value)
	}
	ctxlog.FromContext(ctx).Info("applied compiler options", "count", len(attrs))
}

// addDefaultLight gives the scene a single overhead light.
func addDefaultLight(ctx context.Context, doc *mjcf.Document) {
	wb := doc.Worldbody()
	if wb == nil {
		return
	}
	light := wb.CreateElement("light")
	light.CreateAttr("diffuse", ".8 .8 .8")
	light.CreateAttr("pos", "0 0 5")
	light.CreateAttr("dir", "0 0 -1")
	ctxlog.FromContext(ctx).Debug("added default light")
}

// addClockPublisher declares the clock publisher plugin and instantiates it
// in the worldbody so simulation time reaches ROS.
func addClockPublisher(ctx context.Context, doc *mjcf.Document) {
	log := ctxlog.FromContext(ctx)

	ext := doc.EnsureExtension()
	decl := ext.CreateElement("plugin")
	decl.CreateAttr("plugin", pluginClockPublisher)

	wb := doc.Worldbody()
	if wb == nil {
		log.Warn("no <worldbody> in the model, cannot add clock publisher plugin")
		return
	}
	plugin := wb.CreateElement("plugin")
	plugin.CreateAttr("plugin", pluginClockPublisher)
	addPluginConfig(plugin, "topic_name", "/clock")
	addPluginConfig(plugin, "publish_rate", "100")
	addPluginConfig(plugin, "use_sim_time", "true")
	log.Info("added clock publisher plugin")
}

// addRos2Control declares the ros2_control plugin instance. The controller
// configuration file is passed through verbatim; without one the plugin runs
// on its built-in defaults.
func addRos2Control(ctx context.Context, doc *mjcf.Document, instance, configFile string) {
	log := ctxlog.FromContext(ctx)

	ext := doc.EnsureExtension()
	plugin := ext.CreateElement("plugin")
	plugin.CreateAttr("plugin", pluginRos2Control)
	inst := plugin.CreateElement("instance")
	inst.CreateAttr("name", instance)
	if configFile != "" {
		addPluginConfig(inst, "config_file", configFile)
	} else {
		log.Warn("adding ros2_control without a config file, the plugin will use its default configuration")
	}
	log.Info("added ros2_control plugin", "instance", instance)
}

// groupRosUtilsPlugins moves every MujocoRosUtils extension plugin to the end
// of <extension>, preserving their relative order, so the declarations stay
// contiguous after the various steps that append plugins.
func groupRosUtilsPlugins(ctx context.Context, doc *mjcf.Document) {
	ext := doc.Extension()
	if ext == nil {
		return
	}
	var plugins []*etree.Element
	for _, p := range ext.SelectElements("plugin") {
		if strings.HasPrefix(p.SelectAttrValue("plugin", ""), rosUtilsPrefix) {
			plugins = append(plugins, p)
		}
	}
	if len(plugins) == 0 {
		return
	}
	for _, p := range plugins {
		ext.RemoveChild(p)
	}
	for _, p := range plugins {
		ext.AddChild(p)
	}
	ctxlog.FromContext(ctx).Debug("grouped ros utils plugins", "count", len(plugins))
}

// makeBaseFloating gives the first worldbody <body> a free joint so the base
// link is unconstrained, and a default height when the body has no position
// of its own.
func makeBaseFloating(ctx context.Context, doc *mjcf.Document, height float64) {
	log := ctxlog.FromContext(ctx)
	wb := doc.Worldbody()
	if wb == nil {
		return
	}
	base := wb.SelectElement("body")
	if base == nil {
		return
	}
	if !hasFreeJoint(base) {
		joint := base.CreateElement("joint")
		joint.CreateAttr("name", "root")
		joint.CreateAttr("type", "free")
		log.Info("made base link floating", "body", base.SelectAttrValue("name", ""))
	}
	if base.SelectAttr("pos") == nil {
		if height < 0 {
			height = 0
		}
		base.CreateAttr("pos", "0 0 "+mjcf.FormatFloat(height))
	}
}

func hasFreeJoint(body *etree.Element) bool {
	for _, j := range body.SelectElements("joint") {
		if j.SelectAttrValue("type", "") == "free" {
			return true
		}
	}
	return false
}

// addFloor installs a checkerboard ground plane unless the model already has
// a geom named "floor".
func addFloor(ctx context.Context, doc *mjcf.Document) {
	log := ctxlog.FromContext(ctx)

	existing := patch.FindMatches(ctx, doc.Root(), "geom",
		[]patch.Constraint{{Key: "name", Pattern: "floor"}})
	if len(existing) > 0 {
		log.Info("floor plane already present, skipped")
		return
	}

	asset := doc.Asset()
	if asset == nil {
		asset = doc.EnsureBeforeWorldbody("asset")
	}
	texture := asset.CreateElement("texture")
	texture.CreateAttr("name", "floor")
	texture.CreateAttr("type", "2d")
	texture.CreateAttr("builtin", "checker")
	texture.CreateAttr("rgb1", "0.1 0.2 0.3")
	texture.CreateAttr("rgb2", "0.2 0.3 0.4")
	texture.CreateAttr("width", "300")
	texture.CreateAttr("height", "300")
	texture.CreateAttr("mark", "edge")
	texture.CreateAttr("markrgb", "0.2 0.3 0.4")

	material := asset.CreateElement("material")
	material.CreateAttr("name", "floor")
	material.CreateAttr("texture", "floor")
	material.CreateAttr("texrepeat", "10 10")
	material.CreateAttr("texuniform", "true")

	if wb := doc.Worldbody(); wb != nil {
		geom := wb.CreateElement("geom")
		geom.CreateAttr("name", "floor")
		geom.CreateAttr("type", "plane")
		geom.CreateAttr("size", "20 20 0.1")
		geom.CreateAttr("material", "floor")
	}
	log.Info("added floor plane")
}

// enableGravityCompensation sets gravcomp=1 on every body in the worldbody.
func enableGravityCompensation(ctx context.Context, doc *mjcf.Document) {
	wb := doc.Worldbody()
	if wb == nil {
		return
	}
	bodies := patch.FindMatches(ctx, wb, "body", nil)
	for _, b := range bodies {
		b.CreateAttr("gravcomp", "1")
	}
	ctxlog.FromContext(ctx).Info("enabled gravity compensation", "bodies", len(bodies))
}

// setJointArmature applies one armature value to every worldbody joint.
func setJointArmature(ctx context.Context, doc *mjcf.Document, value float64) {
	wb := doc.Worldbody()
	if wb == nil {
		return
	}
	joints := patch.FindMatches(ctx, wb, "joint", nil)
	for _, j := range joints {
		j.CreateAttr("armature", mjcf.FormatFloat(value))
	}
	ctxlog.FromContext(ctx).Info("set joint armature", "value", value, "joints", len(joints))
}

// setSimulationOptions writes solver and integrator onto <option>, creating
// the section after <compiler> when absent.
func setSimulationOptions(ctx context.Context, doc *mjcf.Document, solver, integrator string) {
	if solver == "" && integrator == "" {
		return
	}
	option := doc.EnsureOption()
	if solver != "" {
		option.CreateAttr("solver", solver)
	}
	if integrator != "" {
		option.CreateAttr("integrator", integrator)
	}
	ctxlog.FromContext(ctx).Info("set simulation options", "solver", solver, "integrator", integrator)
}

func addPluginConfig(parent *etree.Element, key, value string) {
	cfg := parent.CreateElement("config")
	cfg.CreateAttr("key", key)
	cfg.CreateAttr("value", value)
}

// modelStem strips up to two extensions from a file name, so robot.urdf and
// robot.urdf.xacro share the output stem "robot".
func modelStem(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
