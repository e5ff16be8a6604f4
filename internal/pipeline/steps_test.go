package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/mjcf"
	"github.com/martinhoang/urdf2mjcf/internal/patch"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func mustDoc(t *testing.T, xml string) *mjcf.Document {
	t.Helper()
	doc, err := mjcf.Parse([]byte(xml))
	require.NoError(t, err)
	return doc
}

func parseElem(t *testing.T, xml string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	require.NotNil(t, doc.Root())
	return doc.Root()
}

func TestScaleJointDamping(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody><body>
		<joint name="hip" damping="0.5"/>
		<joint name="knee" damping="2"/>
		<joint name="soft" damping="squishy"/>
		<joint name="bare"/>
	</body></worldbody></mujoco>`)

	scaleJointDamping(testCtx(), doc, 2.0)

	joints := doc.Worldbody().SelectElement("body").SelectElements("joint")
	assert.Equal(t, "1.0", joints[0].SelectAttrValue("damping", ""))
	assert.Equal(t, "4.0", joints[1].SelectAttrValue("damping", ""))
	assert.Equal(t, "squishy", joints[2].SelectAttrValue("damping", ""))
	assert.Nil(t, joints[3].SelectAttr("damping"))
}

func TestTransformPlugin_ResolvesParameters(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)
	decl := parseElem(t, `<plugin filename="libdemo.so" name="demo">
		<config_file>demo_cfg.yaml</config_file>
	</plugin>`)

	transformPlugin(testCtx(), doc, decl)

	ext := doc.Extension()
	require.NotNil(t, ext)
	plugin := ext.SelectElement("plugin")
	require.NotNil(t, plugin)
	assert.Equal(t, "libdemo.so", plugin.SelectAttrValue("plugin", ""))

	instance := plugin.SelectElement("instance")
	require.NotNil(t, instance)
	assert.Equal(t, "demo", instance.SelectAttrValue("name", ""))

	cfgs := instance.SelectElements("config")
	require.Len(t, cfgs, 1)
	assert.Equal(t, "config_file", cfgs[0].SelectAttrValue("key", ""))
	value := cfgs[0].SelectAttrValue("value", "")
	assert.True(t, filepath.IsAbs(value))
	assert.True(t, strings.HasSuffix(value, "demo_cfg.yaml"), value)
}

func TestTransformPlugin_InstanceNameDefaultsToFilename(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)
	decl := parseElem(t, `<plugin filename="libdemo.so"/>`)

	transformPlugin(testCtx(), doc, decl)

	instance := doc.Extension().SelectElement("plugin").SelectElement("instance")
	require.NotNil(t, instance)
	assert.Equal(t, "libdemo.so", instance.SelectAttrValue("name", ""))
}

func TestTransformPlugin_SkipsUnresolvableParameters(t *testing.T) {
	t.Setenv("AMENT_PREFIX_PATH", "")
	t.Setenv("ROS_PACKAGE_PATH", "")
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)
	decl := parseElem(t, `<plugin filename="libdemo.so">
		<config_file>package://missing_pkg/cfg.yaml</config_file>
	</plugin>`)

	transformPlugin(testCtx(), doc, decl)

	instance := doc.Extension().SelectElement("plugin").SelectElement("instance")
	assert.Empty(t, instance.SelectElements("config"))
}

func TestTransformPlugin_RequiresFilename(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)
	decl := parseElem(t, `<plugin name="demo"/>`)

	transformPlugin(testCtx(), doc, decl)

	assert.Nil(t, doc.Extension())
}

func TestApplyCompilerAttrs_CreatesSectionFirst(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)

	applyCompilerAttrs(testCtx(), doc, []patch.Pair{
		{Key: "meshdir", Value: "assets/"},
		{Key: "balanceinertia", Value: "false"},
	})

	compiler := doc.Root().ChildElements()[0]
	assert.Equal(t, "compiler", compiler.Tag)
	assert.Equal(t, "assets/", compiler.SelectAttrValue("meshdir", ""))
	assert.Equal(t, "false", compiler.SelectAttrValue("balanceinertia", ""))
}

func TestApplyCompilerAttrs_OverwritesExisting(t *testing.T) {
	doc := mustDoc(t, `<mujoco><compiler meshdir="old/"/><worldbody/></mujoco>`)

	applyCompilerAttrs(testCtx(), doc, []patch.Pair{{Key: "meshdir", Value: "new/"}})

	assert.Equal(t, "new/", doc.Compiler().SelectAttrValue("meshdir", ""))
}

func TestAddDefaultLight(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)

	addDefaultLight(testCtx(), doc)

	light := doc.Worldbody().SelectElement("light")
	require.NotNil(t, light)
	assert.Equal(t, ".8 .8 .8", light.SelectAttrValue("diffuse", ""))
	assert.Equal(t, "0 0 5", light.SelectAttrValue("pos", ""))
	assert.Equal(t, "0 0 -1", light.SelectAttrValue("dir", ""))
}

func TestAddClockPublisher(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)

	addClockPublisher(testCtx(), doc)

	decl := doc.Extension().SelectElement("plugin")
	require.NotNil(t, decl)
	assert.Equal(t, "MujocoRosUtils::ClockPublisher", decl.SelectAttrValue("plugin", ""))

	plugin := doc.Worldbody().SelectElement("plugin")
	require.NotNil(t, plugin)
	want := map[string]string{
		"topic_name":   "/clock",
		"publish_rate": "100",
		"use_sim_time": "true",
	}
	got := map[string]string{}
	for _, cfg := range plugin.SelectElements("config") {
		got[cfg.SelectAttrValue("key", "")] = cfg.SelectAttrValue("value", "")
	}
	assert.Equal(t, want, got)
}

func TestAddClockPublisher_DeclaresEvenWithoutWorldbody(t *testing.T) {
	doc := mustDoc(t, `<mujoco><compiler/></mujoco>`)

	addClockPublisher(testCtx(), doc)

	require.NotNil(t, doc.Extension())
	assert.NotNil(t, doc.Extension().SelectElement("plugin"))
}

func TestAddRos2Control_WithConfigFile(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)

	addRos2Control(testCtx(), doc, "ros2_control", "/ctl/controllers.yaml")

	plugin := doc.Extension().SelectElement("plugin")
	require.NotNil(t, plugin)
	assert.Equal(t, "MujocoRosUtils::Ros2Control", plugin.SelectAttrValue("plugin", ""))
	instance := plugin.SelectElement("instance")
	require.NotNil(t, instance)
	assert.Equal(t, "ros2_control", instance.SelectAttrValue("name", ""))

	cfg := instance.SelectElement("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "config_file", cfg.SelectAttrValue("key", ""))
	assert.Equal(t, "/ctl/controllers.yaml", cfg.SelectAttrValue("value", ""))
}

func TestAddRos2Control_WithoutConfigFile(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)

	addRos2Control(testCtx(), doc, "ros2_control", "")

	instance := doc.Extension().SelectElement("plugin").SelectElement("instance")
	assert.Nil(t, instance.SelectElement("config"))
}

func TestGroupRosUtilsPlugins_MovesThemToTheEnd(t *testing.T) {
	doc := mustDoc(t, `<mujoco><extension>
		<plugin plugin="MujocoRosUtils::ClockPublisher"/>
		<plugin plugin="libcustom.so"/>
		<plugin plugin="MujocoRosUtils::Ros2Control"/>
	</extension><worldbody/></mujoco>`)

	groupRosUtilsPlugins(testCtx(), doc)

	var order []string
	for _, p := range doc.Extension().SelectElements("plugin") {
		order = append(order, p.SelectAttrValue("plugin", ""))
	}
	assert.Equal(t, []string{
		"libcustom.so",
		"MujocoRosUtils::ClockPublisher",
		"MujocoRosUtils::Ros2Control",
	}, order)
}

func TestGroupRosUtilsPlugins_NoExtension(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody/></mujoco>`)
	groupRosUtilsPlugins(testCtx(), doc)
	assert.Nil(t, doc.Extension())
}

func TestMakeBaseFloating(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody><body name="base"><geom name="g"/></body></worldbody></mujoco>`)

	makeBaseFloating(testCtx(), doc, 0.25)

	base := doc.Worldbody().SelectElement("body")
	joint := base.SelectElement("joint")
	require.NotNil(t, joint)
	assert.Equal(t, "root", joint.SelectAttrValue("name", ""))
	assert.Equal(t, "free", joint.SelectAttrValue("type", ""))
	assert.Equal(t, "0 0 0.25", base.SelectAttrValue("pos", ""))
}

func TestMakeBaseFloating_KeepsExistingFreeJointAndPos(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody>
		<body name="base" pos="1 2 3"><joint name="anchor" type="free"/></body>
	</worldbody></mujoco>`)

	makeBaseFloating(testCtx(), doc, 0.25)

	base := doc.Worldbody().SelectElement("body")
	assert.Len(t, base.SelectElements("joint"), 1)
	assert.Equal(t, "1 2 3", base.SelectAttrValue("pos", ""))
}

func TestMakeBaseFloating_NegativeHeightClampsToZero(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody><body name="base"/></worldbody></mujoco>`)

	makeBaseFloating(testCtx(), doc, -1.0)

	base := doc.Worldbody().SelectElement("body")
	assert.Equal(t, "0 0 0.0", base.SelectAttrValue("pos", ""))
}

func TestAddFloor(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody><body name="base"/></worldbody></mujoco>`)

	addFloor(testCtx(), doc)

	asset := doc.Asset()
	require.NotNil(t, asset)
	texture := asset.SelectElement("texture")
	require.NotNil(t, texture)
	assert.Equal(t, "checker", texture.SelectAttrValue("builtin", ""))
	material := asset.SelectElement("material")
	require.NotNil(t, material)
	assert.Equal(t, "floor", material.SelectAttrValue("texture", ""))

	var floor *etree.Element
	for _, g := range doc.Worldbody().SelectElements("geom") {
		if g.SelectAttrValue("name", "") == "floor" {
			floor = g
		}
	}
	require.NotNil(t, floor)
	assert.Equal(t, "plane", floor.SelectAttrValue("type", ""))
	assert.Equal(t, "20 20 0.1", floor.SelectAttrValue("size", ""))
}

func TestAddFloor_SkipsWhenFloorExists(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody><geom name="floor" type="plane"/></worldbody></mujoco>`)

	addFloor(testCtx(), doc)

	assert.Nil(t, doc.Asset())
	assert.Len(t, doc.Worldbody().SelectElements("geom"), 1)
}

func TestEnableGravityCompensation_ReachesNestedBodies(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody>
		<body name="torso"><body name="arm"/></body>
	</worldbody></mujoco>`)

	enableGravityCompensation(testCtx(), doc)

	torso := doc.Worldbody().SelectElement("body")
	assert.Equal(t, "1", torso.SelectAttrValue("gravcomp", ""))
	assert.Equal(t, "1", torso.SelectElement("body").SelectAttrValue("gravcomp", ""))
}

func TestSetJointArmature(t *testing.T) {
	doc := mustDoc(t, `<mujoco><worldbody><body>
		<joint name="hip"/><body><joint name="knee"/></body>
	</body></worldbody></mujoco>`)

	setJointArmature(testCtx(), doc, 0.01)

	body := doc.Worldbody().SelectElement("body")
	assert.Equal(t, "0.01", body.SelectElement("joint").SelectAttrValue("armature", ""))
	assert.Equal(t, "0.01", body.SelectElement("body").SelectElement("joint").SelectAttrValue("armature", ""))
}

func TestSetSimulationOptions(t *testing.T) {
	doc := mustDoc(t, `<mujoco><compiler/><worldbody/></mujoco>`)

	setSimulationOptions(testCtx(), doc, "", "")
	assert.Nil(t, doc.Option())

	setSimulationOptions(testCtx(), doc, "Newton", "implicitfast")
	option := doc.Option()
	require.NotNil(t, option)
	assert.Equal(t, "Newton", option.SelectAttrValue("solver", ""))
	assert.Equal(t, "implicitfast", option.SelectAttrValue("integrator", ""))

	// Created right after the compiler.
	children := doc.Root().ChildElements()
	assert.Equal(t, "compiler", children[0].Tag)
	assert.Equal(t, "option", children[1].Tag)
}

func TestModelStem(t *testing.T) {
	cases := []struct{ in, want string }{
		{"robot.urdf", "robot"},
		{"robot.urdf.xacro", "robot"},
		{"robot", "robot"},
		{"two.piece.urdf", "two"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, modelStem(tc.in), "modelStem(%q)", tc.in)
	}
}
