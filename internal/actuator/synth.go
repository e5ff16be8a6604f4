// Package actuator synthesizes MJCF actuator elements from the joint command
// interfaces a robot description declares, and wires the MujocoRosUtils
// plugin declarations around them.
package actuator

import (
	"context"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/martinhoang/urdf2mjcf/api"
	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/mjcf"
	"github.com/martinhoang/urdf2mjcf/internal/patch"
)

const (
	pluginActuatorCommand = "MujocoRosUtils::ActuatorCommand"
	pluginMimicJoint      = "MujocoRosUtils::MimicJoint"
)

// Synthesizer creates actuators on a document. Position actuators get the KP
// gain, velocity actuators the KV gain. ForceSuffix appends the interface
// kind to every actuator name even when a joint exposes a single interface.
type Synthesizer struct {
	Doc *mjcf.Document
	KP  float64
	KV  float64
	// ForceSuffix names actuators {joint}_{kind} unconditionally.
	ForceSuffix bool
	// AddRosPlugins emits an ActuatorCommand plugin per actuated joint.
	AddRosPlugins bool
	// Instance is the ros2_control plugin instance the command plugins
	// reference.
	Instance string
}

// AddActuators creates one actuator element per requested interface kind for
// every worldbody joint the interface map names. Free joints and joints with
// no position or velocity interface are skipped. Returns the number of
// actuator elements created.
func (s *Synthesizer) AddActuators(ctx context.Context, ifaces api.JointInterfaceMap, mimic []api.MimicJoint) int {
	log := ctxlog.FromContext(ctx)

	wb := s.Doc.Worldbody()
	if wb == nil {
		log.Warn("no <worldbody> in the model, cannot add actuators")
		return 0
	}
	if len(ifaces) == 0 {
		log.Info("no ros2_control joints declared, skipping actuator generation")
		return 0
	}

	var joints []*etree.Element
	for _, j := range patch.FindMatches(ctx, wb, "joint", nil) {
		if j.SelectAttrValue("type", "") == "free" {
			continue
		}
		if _, ok := ifaces[j.SelectAttrValue("name", "")]; !ok {
			continue
		}
		joints = append(joints, j)
	}
	if len(joints) == 0 {
		log.Info("no actuatable joints found to create actuators for")
		return 0
	}

	section := s.Doc.EnsureActuator()

	if s.AddRosPlugins {
		s.ensureExtensionPlugin(ctx, pluginActuatorCommand, s.Instance)
	}

	mimicNames := make(map[string]bool, len(mimic))
	for _, m := range mimic {
		mimicNames[m.Name] = true
	}

	created := 0
	for _, joint := range joints {
		name := joint.SelectAttrValue("name", "")
		set := ifaces[name]

		var kinds []string
		if set.Has("position") {
			kinds = append(kinds, "position")
		}
		if set.Has("velocity") {
			kinds = append(kinds, "velocity")
		}
		if len(kinds) == 0 {
			continue
		}
		suffix := len(kinds) > 1 || s.ForceSuffix

		for _, kind := range kinds {
			actName := name
			if suffix {
				actName = name + "_" + kind
			}
			act := section.CreateElement(kind)
			act.CreateAttr("name", actName)
			act.CreateAttr("joint", name)
			switch kind {
			case "position":
				act.CreateAttr("kp", mjcf.FormatFloat(s.KP))
			case "velocity":
				act.CreateAttr("kv", mjcf.FormatFloat(s.KV))
			}
			copyJointLimits(joint, act)
			created++
			log.Debug("added actuator", "kind", kind, "joint", name, "name", actName)
		}

		// Mimic joints are driven by their plugin, not by ROS commands.
		if s.AddRosPlugins && !mimicNames[name] {
			p := section.CreateElement("plugin")
			p.CreateAttr("plugin", pluginActuatorCommand)
			p.CreateAttr("joint", name)
			p.CreateAttr("instance", s.Instance)
		}
	}

	log.Info("added actuators", "count", created)
	return created
}

// AddMimicPlugins emits a MimicJoint plugin per mimic relation, creating a
// position actuator for the follower joint first when none exists. Gear and
// offset pass through as the description spelled them; an offset that does
// not parse as a number is treated as zero.
func (s *Synthesizer) AddMimicPlugins(ctx context.Context, mimic []api.MimicJoint) {
	log := ctxlog.FromContext(ctx)
	if len(mimic) == 0 {
		return
	}

	s.ensureExtensionPlugin(ctx, pluginMimicJoint, "")
	section := s.Doc.EnsureActuator()

	taken := map[string]bool{}
	for _, el := range section.ChildElements() {
		if n := el.SelectAttrValue("name", ""); n != "" {
			taken[n] = true
		}
	}

	for _, m := range mimic {
		if !hasPositionActuator(section, m.Name) {
			name := m.Name
			if taken[name] {
				name = m.Name + "_position"
			}
			act := section.CreateElement("position")
			act.CreateAttr("name", name)
			act.CreateAttr("joint", m.Name)
			act.CreateAttr("kp", mjcf.FormatFloat(s.KP))
			if joint := s.findJoint(ctx, m.Name); joint != nil {
				copyJointLimits(joint, act)
			}
			taken[name] = true
			log.Debug("added position actuator for mimic joint", "joint", m.Name, "name", name)
		}

		p := section.CreateElement("plugin")
		p.CreateAttr("plugin", pluginMimicJoint)
		p.CreateAttr("joint", m.Name)
		addConfig(p, "mimic_joint", m.Joint)
		addConfig(p, "gear", m.Multiplier)
		if parseOffset(ctx, m.Name, m.Offset) != 0 {
			addConfig(p, "offset", m.Offset)
		}
		log.Debug("added mimic plugin", "joint", m.Name, "leader", m.Joint)
	}
}

// ensureExtensionPlugin declares an extension plugin once. A non-empty
// instance adds an <instance name=...> child on first declaration.
func (s *Synthesizer) ensureExtensionPlugin(ctx context.Context, plugin, instance string) {
	ext := s.Doc.EnsureExtension()
	for _, p := range ext.SelectElements("plugin") {
		if p.SelectAttrValue("plugin", "") == plugin {
			return
		}
	}
	p := ext.CreateElement("plugin")
	p.CreateAttr("plugin", plugin)
	if instance != "" {
		inst := p.CreateElement("instance")
		inst.CreateAttr("name", instance)
	}
	ctxlog.FromContext(ctx).Debug("declared extension plugin", "plugin", plugin)
}

func (s *Synthesizer) findJoint(ctx context.Context, name string) *etree.Element {
	matches := patch.FindMatches(ctx, s.Doc.Root(), "joint", []patch.Constraint{{Key: "name", Pattern: name}})
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// copyJointLimits carries the joint's motion range onto the actuator: range
// becomes ctrlrange, actuatorfrcrange becomes forcelimited + forcerange.
func copyJointLimits(joint, act *etree.Element) {
	if r := joint.SelectAttr("range"); r != nil {
		act.CreateAttr("ctrlrange", r.Value)
	}
	if fr := joint.SelectAttr("actuatorfrcrange"); fr != nil {
		act.CreateAttr("forcelimited", "true")
		act.CreateAttr("forcerange", fr.Value)
	}
}

func hasPositionActuator(section *etree.Element, joint string) bool {
	for _, el := range section.SelectElements("position") {
		if el.SelectAttrValue("joint", "") == joint {
			return true
		}
	}
	return false
}

func addConfig(parent *etree.Element, key, value string) {
	cfg := parent.CreateElement("config")
	cfg.CreateAttr("key", key)
	cfg.CreateAttr("value", value)
}

func parseOffset(ctx context.Context, joint, raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("unparseable mimic offset, treating as zero",
			"joint", joint, "offset", raw)
		return 0
	}
	return v
}
