package api

// Options holds every knob of a conversion run. Field names mirror the CLI
// flags; JSON tags use the underscored form so saved config files round-trip.
type Options struct {
	// Input is the path to the URDF robot description.
	Input string `json:"input"`
	// Baseline is the path to the MJCF document produced by the external
	// physics-engine import step. The post-processing pipeline mutates a
	// parsed copy of this document.
	Baseline string `json:"baseline"`
	// Output directory. Empty means "next to the input".
	Output string `json:"output"`
	// ConfigFile is the JSON config the options were loaded from. Never
	// persisted back into a saved config.
	ConfigFile string `json:"-"`
	// Profile is an optional HCL profile applied below the config file.
	Profile string `json:"-"`

	AddFloor            bool      `json:"add_floor"`
	FloatingBase        bool      `json:"floating_base"`
	HeightAboveFloor    float64   `json:"height_above_floor"`
	NoActuators         bool      `json:"no_actuators"`
	Armature            *float64  `json:"armature,omitempty"`
	ActuatorGains       []float64 `json:"default_actuator_gains"`
	DampingMultiplier   float64   `json:"damping_multiplier"`
	GravityCompensation bool      `json:"gravity_compensation"`

	AddRos2Control    bool   `json:"add_ros2_control"`
	AddRosPlugins     bool   `json:"add_ros_plugins"`
	AddClockPublisher bool   `json:"add_clock_publisher"`
	AddMimicJoints    bool   `json:"add_mimic_joints"`
	Ros2ControlConfig string `json:"ros2_control_config,omitempty"`
	// Instance names the ros2_control plugin instance that actuator command
	// plugins reference.
	Instance string `json:"ros2_control_instance"`

	CompilerOptions   []string `json:"compiler_options,omitempty"`
	Integrator        string   `json:"integrator,omitempty"`
	Solver            string   `json:"solver,omitempty"`
	ForceActuatorTags bool     `json:"force_actuator_tags"`
	SavePreprocessed  bool     `json:"save_preprocessed"`
	Ledger            string   `json:"ledger,omitempty"`
	LogLevel          string   `json:"log_level"`
}

// DefaultOptions returns the compiled-in defaults. Layered configuration
// (profile, config file, flags) is applied on top of this.
func DefaultOptions() Options {
	return Options{
		ActuatorGains:     []float64{500.0, 1.0},
		DampingMultiplier: 1.0,
		AddClockPublisher: true,
		AddMimicJoints:    true,
		Instance:          "ros2_control",
		LogLevel:          "info",
	}
}

// KP returns the proportional gain applied to position actuators.
func (o Options) KP() float64 {
	if len(o.ActuatorGains) > 0 {
		return o.ActuatorGains[0]
	}
	return 500.0
}

// KV returns the derivative gain applied to velocity actuators.
func (o Options) KV() float64 {
	if len(o.ActuatorGains) > 1 {
		return o.ActuatorGains[1]
	}
	return 1.0
}

// InterfaceSet is the set of command interface kinds a joint exposes
// (e.g. "position", "velocity", "effort").
type InterfaceSet map[string]struct{}

// NewInterfaceSet builds a set from the given kinds.
func NewInterfaceSet(kinds ...string) InterfaceSet {
	s := make(InterfaceSet, len(kinds))
	for _, k := range kinds {
		s.Add(k)
	}
	return s
}

// Add inserts a kind into the set.
func (s InterfaceSet) Add(kind string) { s[kind] = struct{}{} }

// Has reports whether the set contains the kind.
func (s InterfaceSet) Has(kind string) bool {
	_, ok := s[kind]
	return ok
}

// JointInterfaceMap maps joint names to their declared command interfaces.
// Produced by URDF inspection, read-only to the actuator synthesizer.
type JointInterfaceMap map[string]InterfaceSet

// MimicJoint couples a follower joint to a leader joint. Multiplier and
// Offset stay strings: they pass through to plugin config verbatim.
type MimicJoint struct {
	Name       string `json:"name"`
	Joint      string `json:"joint"`
	Multiplier string `json:"multiplier"`
	Offset     string `json:"offset"`
}
