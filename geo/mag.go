package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Geomagnetic tables are sampled every MagRes degrees from -90 latitude and
// -180 longitude, inclusive of both ends.
const (
	MagRes    = 10
	MagMinLat = -90
	MagMinLon = -180
	MagLatDim = 180/MagRes + 1
	MagLonDim = 360/MagRes + 1
)

// ErrMagTable reports a table of the wrong shape.
var ErrMagTable = errors.New("geo: bad magnetic table")

// MagTable holds gridded geomagnetic field components, as published by the
// NOAA IGRF grid calculator. Rows run south to north and columns west to
// east.
type MagTable struct {
	Declination [][]float64 `json:"declination"` // degrees, east positive
	Inclination [][]float64 `json:"inclination"` // degrees, down positive
	Strength    [][]float64 `json:"strength"`    // total intensity, nT
}

// LoadMagTable decodes a MagTable from JSON and checks its shape.
func LoadMagTable(r io.Reader) (*MagTable, error) {
	t := new(MagTable)
	if err := json.NewDecoder(r).Decode(t); err != nil {
		return nil, fmt.Errorf("geo: decoding magnetic table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every component is MagLatDim×MagLonDim.
func (t *MagTable) Validate() error {
	for name, tab := range map[string][][]float64{
		"declination": t.Declination,
		"inclination": t.Inclination,
		"strength":    t.Strength,
	} {
		if len(tab) != MagLatDim {
			return fmt.Errorf("%w: %s has %d rows, want %d", ErrMagTable, name, len(tab), MagLatDim)
		}
		for i, row := range tab {
			if len(row) != MagLonDim {
				return fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrMagTable, name, i, len(row), MagLonDim)
			}
		}
	}
	return nil
}

// Lookup returns the bilinearly interpolated declination, inclination and
// strength at a position. Positions off the grid are clamped to its edge;
// a NaN position has no cell and yields NaN.
func (t *MagTable) Lookup(lat, lon float64) (decl, incl, strength float64) {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return interpolate(t.Declination, lat, lon),
		interpolate(t.Inclination, lat, lon),
		interpolate(t.Strength, lat, lon)
}

// Field returns the NED geomagnetic field vector at a position, nT.
func (t *MagTable) Field(lat, lon float64) [3]float64 {
	decl, incl, f := t.Lookup(lat, lon)
	sD, cD := math.Sincos(decl * math.Pi / 180)
	sI, cI := math.Sincos(incl * math.Pi / 180)
	h := f * cI
	return [3]float64{h * cD, h * sD, f * sI}
}

func interpolate(tab [][]float64, lat, lon float64) float64 {
	i, fi := cell(lat, MagMinLat, MagLatDim)
	j, fj := cell(lon, MagMinLon, MagLonDim)

	sw, se := tab[i][j], tab[i][j+1]
	nw, ne := tab[i+1][j], tab[i+1][j+1]

	south := sw + (se-sw)*fj
	north := nw + (ne-nw)*fj
	return south + (north-south)*fi
}

// cell returns the grid cell containing v and the fractional position of v
// within it.
func cell(v, lo float64, dim int) (idx int, frac float64) {
	hi := lo + float64((dim-1)*MagRes)
	v = math.Max(lo, math.Min(hi, v))
	idx = int(math.Floor((v - lo) / MagRes))
	if idx > dim-2 {
		idx = dim - 2
	}
	frac = (v - lo - float64(idx*MagRes)) / MagRes
	return idx, frac
}
