// Package config holds every tunable of a flight computer: filter model and
// rate, noise variances, sensor voting groups, flight-phase thresholds,
// the NED origin and channel correction rates. It is read from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/RocketScienceOfficial/rocket-nav-lib/flightphase"
)

// ErrInvalid reports an unusable configuration.
var ErrInvalid = errors.New("config: invalid")

// Filter models.
const (
	ModelFull     = "full"     // 13-state attitude, velocity, position and magnetic reference
	ModelAltitude = "altitude" // 1-state fused altitude
)

const maxFileSize = 1 << 20

type Config struct {
	Filter Filter             `yaml:"filter"`
	Noise  Noise              `yaml:"noise"`
	Voting Voting             `yaml:"voting"`
	Phase  flightphase.Config `yaml:"phase"`
	Origin Origin             `yaml:"origin"`
	Rates  Rates              `yaml:"rates"`
}

type Filter struct {
	Model                 string  `yaml:"model"`
	DT                    float64 `yaml:"dt"`      // Predict period, s
	Gravity               float64 `yaml:"gravity"` // Added on the down axis, m/s²
	P0                    float64 `yaml:"p0"`      // Initial covariance scale
	RenormalizeQuaternion bool    `yaml:"renormalize_quaternion"`
	InitAttitude          bool    `yaml:"init_attitude"` // Level from the first accelerometer sample
	MagTable              string  `yaml:"mag_table"`     // Optional JSON declination/inclination/strength table
	MagScale              float64 `yaml:"mag_scale"`     // Sensor units per nT when seeding from MagTable
}

// Noise holds the variances used when a channel has no voted variance of
// its own.
type Noise struct {
	Accel           float64 `yaml:"accel"`
	Gyro            float64 `yaml:"gyro"`
	GPS             float64 `yaml:"gps"`
	Baro            float64 `yaml:"baro"`
	Mag             float64 `yaml:"mag"`
	ProcessAltitude float64 `yaml:"process_altitude"`
}

// Group configures the voter of one redundant sensor group.
// Thresholds and Variances are per sensor, in the order readings arrive.
type Group struct {
	Thresholds []float64 `yaml:"thresholds"`
	Variances  []float64 `yaml:"variances"`
}

type Voting struct {
	Accel Group `yaml:"accel"` // m/s²
	Gyro  Group `yaml:"gyro"`  // rad/s
	Baro  Group `yaml:"baro"`  // Altitude, m
}

// Origin of the NED frame. With Auto set the first GPS fix is used.
type Origin struct {
	Auto bool    `yaml:"auto"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
	Alt  float64 `yaml:"alt"`
}

// Rates are the shortest intervals between corrections of each channel, s.
// Zero corrects on every fresh reading.
type Rates struct {
	GPS  float64 `yaml:"gps"`
	Baro float64 `yaml:"baro"`
	Mag  float64 `yaml:"mag"`
}

// Default returns a configuration for one IMU and one barometer sampled at
// 100 Hz.
func Default() Config {
	const g = 9.80665
	return Config{
		Filter: Filter{
			Model:                 ModelFull,
			DT:                    0.01,
			Gravity:               g,
			P0:                    1,
			RenormalizeQuaternion: true,
			InitAttitude:          true,
			MagScale:              1,
		},
		Noise: Noise{
			Accel:           0.1,
			Gyro:            0.1,
			GPS:             1,
			Baro:            0.5,
			Mag:             0.3,
			ProcessAltitude: 1,
		},
		Voting: Voting{
			Accel: Group{Thresholds: []float64{16 * g}, Variances: []float64{0.1}},
			Gyro:  Group{Thresholds: []float64{35}, Variances: []float64{0.1}},
			Baro:  Group{Thresholds: []float64{9000}, Variances: []float64{0.5}},
		},
		Phase:  flightphase.DefaultConfig(),
		Origin: Origin{Auto: true},
	}
}

// Load reads a YAML file over Default and validates the result.
// Keys the file leaves out keep their default values.
func Load(path string) (Config, error) {
	path = filepath.Clean(path)
	fi, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if fi.Size() > maxFileSize {
		return Config{}, fmt.Errorf("%w: %s is %d bytes, max %d", ErrInvalid, path, fi.Size(), maxFileSize)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Decode(bytes.NewReader(b))
}

// Decode reads YAML from r over Default and validates the result.
// Unknown keys are an error.
func Decode(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Write encodes c as YAML.
func (c Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, name, v)
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if !(v >= 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must not be negative, got %v", ErrInvalid, name, v)
	}
	return nil
}

func (g Group) validate(name string) error {
	if len(g.Thresholds) == 0 {
		return fmt.Errorf("%w: voting.%s has no sensors", ErrInvalid, name)
	}
	if len(g.Thresholds) != len(g.Variances) {
		return fmt.Errorf("%w: voting.%s has %d thresholds but %d variances",
			ErrInvalid, name, len(g.Thresholds), len(g.Variances))
	}
	for i, v := range g.Variances {
		if err := positive(fmt.Sprintf("voting.%s.variances[%d]", name, i), v); err != nil {
			return err
		}
	}
	for i, th := range g.Thresholds {
		if math.IsNaN(th) {
			return fmt.Errorf("%w: voting.%s.thresholds[%d] is NaN", ErrInvalid, name, i)
		}
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch c.Filter.Model {
	case ModelFull, ModelAltitude:
	default:
		return fmt.Errorf("%w: filter.model %q, want %q or %q", ErrInvalid, c.Filter.Model, ModelFull, ModelAltitude)
	}
	checks := []error{
		positive("filter.dt", c.Filter.DT),
		nonNegative("filter.p0", c.Filter.P0),
		positive("filter.mag_scale", c.Filter.MagScale),
		positive("noise.accel", c.Noise.Accel),
		positive("noise.gyro", c.Noise.Gyro),
		positive("noise.gps", c.Noise.GPS),
		positive("noise.baro", c.Noise.Baro),
		positive("noise.mag", c.Noise.Mag),
		positive("noise.process_altitude", c.Noise.ProcessAltitude),
		nonNegative("rates.gps", c.Rates.GPS),
		nonNegative("rates.baro", c.Rates.Baro),
		nonNegative("rates.mag", c.Rates.Mag),
		c.Voting.Accel.validate("accel"),
		c.Voting.Gyro.validate("gyro"),
		c.Voting.Baro.validate("baro"),
	}
	if math.IsNaN(c.Filter.Gravity) || math.IsInf(c.Filter.Gravity, 0) {
		return fmt.Errorf("%w: filter.gravity is %v", ErrInvalid, c.Filter.Gravity)
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if err := c.Phase.Validate(); err != nil {
		return fmt.Errorf("%w: phase: %w", ErrInvalid, err)
	}
	if !c.Origin.Auto {
		if !(math.Abs(c.Origin.Lat) <= 90 && math.Abs(c.Origin.Lon) <= 180) ||
			math.IsNaN(c.Origin.Alt) || math.IsInf(c.Origin.Alt, 0) {
			return fmt.Errorf("%w: origin %v, %v out of range", ErrInvalid, c.Origin.Lat, c.Origin.Lon)
		}
	}
	return nil
}
