// Package flightphase classifies a flight into Standing, Accelerating,
// FreeFlight, FreeFall and Landed from the fused acceleration magnitude and
// the estimated altitude, emitting an event on each transition.
package flightphase

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig reports an unusable Config.
var ErrConfig = errors.New("flightphase: bad configuration")

// Phase is the current flight phase.
type Phase int

const (
	Standing Phase = iota
	Accelerating
	FreeFlight
	FreeFall
	Landed
)

var phaseNames = [...]string{"Standing", "Accelerating", "FreeFlight", "FreeFall", "Landed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for i, n := range phaseNames {
		if n == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("flightphase: unknown phase %q", b)
}

// Kind names the transition an Event reports.
type Kind int

const (
	Liftoff Kind = iota
	Burnout
	Apogee
	Landing
)

var kindNames = [...]string{"Liftoff", "Burnout", "Apogee", "Landing"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("flightphase: unknown event kind %q", b)
}

// Event is emitted once per transition.
// Altitude is the altitude at the transition; for Apogee and Landing it is
// the candidate altitude the debounce window settled on.
type Event struct {
	Kind     Kind    `json:"kind"`
	From     Phase   `json:"from"`
	To       Phase   `json:"to"`
	T        float64 `json:"t"`
	Altitude float64 `json:"altitude"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s at t=%.3f s, %.1f m (%s -> %s)", e.Kind, e.T, e.Altitude, e.From, e.To)
}

// Config holds the transition thresholds. Accelerations are m/s², altitudes m.
type Config struct {
	LaunchAccel    float64 `yaml:"launch_accel"`    // |a| at or above this counts toward liftoff
	LaunchAltitude float64 `yaml:"launch_altitude"` // Liftoff counting only below this altitude
	LaunchSamples  int     `yaml:"launch_samples"`
	BurnoutAccel   float64 `yaml:"burnout_accel"` // |a| below this ends the burn
	ApogeeDelta    float64 `yaml:"apogee_delta"`
	ApogeeSamples  int     `yaml:"apogee_samples"`
	LandingDelta   float64 `yaml:"landing_delta"`
	LandingSamples int     `yaml:"landing_samples"`
}

// DefaultConfig returns thresholds suited to a small high-power rocket
// sampled at 100 Hz.
func DefaultConfig() Config {
	return Config{
		LaunchAccel:    3 * 9.80665,
		LaunchAltitude: 100,
		LaunchSamples:  10,
		BurnoutAccel:   9.80665,
		ApogeeDelta:    0.5,
		ApogeeSamples:  20,
		LandingDelta:   0.5,
		LandingSamples: 100,
	}
}

// Validate checks that every threshold is usable.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"launch_accel":    c.LaunchAccel,
		"launch_altitude": c.LaunchAltitude,
		"burnout_accel":   c.BurnoutAccel,
		"apogee_delta":    c.ApogeeDelta,
		"landing_delta":   c.LandingDelta,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrConfig, name, v)
		}
	}
	switch {
	case c.LaunchAccel <= 0:
		return fmt.Errorf("%w: launch_accel must be positive", ErrConfig)
	case c.BurnoutAccel <= 0:
		return fmt.Errorf("%w: burnout_accel must be positive", ErrConfig)
	case c.ApogeeDelta < 0 || c.LandingDelta < 0:
		return fmt.Errorf("%w: deltas must not be negative", ErrConfig)
	case c.LaunchSamples < 1 || c.ApogeeSamples < 1 || c.LandingSamples < 1:
		return fmt.Errorf("%w: debounce windows need at least one sample", ErrConfig)
	}
	return nil
}

// Snapshot is the phase with its debounce scratch.
type Snapshot struct {
	Phase            Phase   `json:"phase"`
	LaunchCount      int     `json:"launch_count"`
	ApogeeCandidate  float64 `json:"apogee_candidate"`
	ApogeeCount      int     `json:"apogee_count"`
	LandingCandidate float64 `json:"landing_candidate"`
	LandingCount     int     `json:"landing_count"`
}

// Machine is the flight-phase state machine. It starts in Standing.
// A Machine is not safe for concurrent use.
type Machine struct {
	cfg Config
	s   Snapshot
}

// New returns a Machine in Standing.
func New(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{cfg: cfg}, nil
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.s.Phase
}

// Snapshot returns the current phase and scratch variables.
func (m *Machine) Snapshot() Snapshot {
	return m.s
}

// Update feeds one sample: t in seconds, the magnitude of the fused
// acceleration and the estimated altitude. It reports the event when the
// sample completes a transition.
func (m *Machine) Update(t, accel, alt float64) (ev Event, ok bool) {
	switch m.s.Phase {
	case Standing:
		if accel >= m.cfg.LaunchAccel && alt < m.cfg.LaunchAltitude {
			m.s.LaunchCount++
		} else {
			m.s.LaunchCount = 0
		}
		if m.s.LaunchCount >= m.cfg.LaunchSamples {
			m.s.LaunchCount = 0
			return m.transition(Liftoff, Accelerating, t, alt), true
		}

	case Accelerating:
		if accel < m.cfg.BurnoutAccel {
			m.s.ApogeeCandidate = alt
			m.s.ApogeeCount = 0
			return m.transition(Burnout, FreeFlight, t, alt), true
		}

	case FreeFlight:
		if alt > m.s.ApogeeCandidate+m.cfg.ApogeeDelta {
			m.s.ApogeeCandidate = alt
			m.s.ApogeeCount = 0
			break
		}
		m.s.ApogeeCount++
		if m.s.ApogeeCount >= m.cfg.ApogeeSamples {
			apogee := m.s.ApogeeCandidate
			m.s.ApogeeCount = 0
			m.s.LandingCandidate = alt
			m.s.LandingCount = 0
			return m.transition(Apogee, FreeFall, t, apogee), true
		}

	case FreeFall:
		if math.Abs(alt-m.s.LandingCandidate) > m.cfg.LandingDelta {
			m.s.LandingCandidate = alt
			m.s.LandingCount = 0
			break
		}
		m.s.LandingCount++
		if m.s.LandingCount >= m.cfg.LandingSamples {
			m.s.LandingCount = 0
			return m.transition(Landing, Landed, t, m.s.LandingCandidate), true
		}
	}
	return ev, false
}

func (m *Machine) transition(k Kind, to Phase, t, alt float64) Event {
	ev := Event{Kind: k, From: m.s.Phase, To: to, T: t, Altitude: alt}
	m.s.Phase = to
	return ev
}
