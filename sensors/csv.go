package sensors

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
)

// ErrLayout reports a CSV header that cannot describe a Record.
var ErrLayout = errors.New("sensors: bad csv header")

// ErrRow reports a CSV row that could not be read as a Record.
var ErrRow = errors.New("sensors: bad csv row")

// Columns are named by what they hold:
//
//	T                 time, s
//	A<n>X A<n>Y A<n>Z accelerometer n, m/s²
//	G<n>X G<n>Y G<n>Z gyroscope n, rad/s
//	MX MY MZ          magnetometer
//	Lat Lon Alt       GPS fix, deg and m; Lat of 0 means no fix
//	P<n>              barometer n, Pa
//
// Sensors are numbered from 1. Unknown columns are ignored and an empty
// field is a missing reading.
type layout struct {
	t     int
	accel [][3]int
	gyro  [][3]int
	mag   [3]int
	gps   [3]int
	press []int
}

func newLayout(header []string) (l layout, err error) {
	l.t = -1
	l.mag = [3]int{-1, -1, -1}
	l.gps = [3]int{-1, -1, -1}

	grow3 := func(s [][3]int, n int) [][3]int {
		for len(s) < n {
			s = append(s, [3]int{-1, -1, -1})
		}
		return s
	}

	for i, name := range header {
		name = strings.TrimSpace(name)
		switch name {
		case "T":
			l.t = i
			continue
		case "MX", "MY", "MZ":
			l.mag[name[1]-'X'] = i
			continue
		case "Lat":
			l.gps[0] = i
			continue
		case "Lon":
			l.gps[1] = i
			continue
		case "Alt":
			l.gps[2] = i
			continue
		}
		if len(name) < 2 {
			continue
		}
		switch name[0] {
		case 'A', 'G':
			axis := name[len(name)-1]
			n, err := strconv.Atoi(name[1 : len(name)-1])
			if err != nil || n < 1 || axis < 'X' || axis > 'Z' {
				continue
			}
			if name[0] == 'A' {
				l.accel = grow3(l.accel, n)
				l.accel[n-1][axis-'X'] = i
			} else {
				l.gyro = grow3(l.gyro, n)
				l.gyro[n-1][axis-'X'] = i
			}
		case 'P':
			n, err := strconv.Atoi(name[1:])
			if err != nil || n < 1 {
				continue
			}
			for len(l.press) < n {
				l.press = append(l.press, -1)
			}
			l.press[n-1] = i
		}
	}

	if l.t < 0 {
		return l, fmt.Errorf("%w: no T column", ErrLayout)
	}
	for n, a := range l.accel {
		if a[0] < 0 || a[1] < 0 || a[2] < 0 {
			return l, fmt.Errorf("%w: accelerometer %d is missing an axis", ErrLayout, n+1)
		}
	}
	for n, g := range l.gyro {
		if g[0] < 0 || g[1] < 0 || g[2] < 0 {
			return l, fmt.Errorf("%w: gyroscope %d is missing an axis", ErrLayout, n+1)
		}
	}
	for n, p := range l.press {
		if p < 0 {
			return l, fmt.Errorf("%w: barometer %d is missing", ErrLayout, n+1)
		}
	}
	return l, nil
}

// layoutFor returns the layout that WriteRecords uses for records shaped
// like r.
func layoutFor(r Record) (l layout, header []string) {
	col := func(name string) int {
		header = append(header, name)
		return len(header) - 1
	}
	l.t = col("T")
	for n := range r.Accel {
		l.accel = append(l.accel, [3]int{col(fmt.Sprintf("A%dX", n+1)), col(fmt.Sprintf("A%dY", n+1)), col(fmt.Sprintf("A%dZ", n+1))})
	}
	for n := range r.Gyro {
		l.gyro = append(l.gyro, [3]int{col(fmt.Sprintf("G%dX", n+1)), col(fmt.Sprintf("G%dY", n+1)), col(fmt.Sprintf("G%dZ", n+1))})
	}
	l.mag = [3]int{col("MX"), col("MY"), col("MZ")}
	l.gps = [3]int{col("Lat"), col("Lon"), col("Alt")}
	for n := range r.Pressure {
		l.press = append(l.press, col(fmt.Sprintf("P%d", n+1)))
	}
	return l, header
}

func parseField(rec []string, i int) float64 {
	if i < 0 || i >= len(rec) {
		return math.NaN()
	}
	s := strings.TrimSpace(rec[i])
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func finite(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (l layout) parse(rec []string) (r Record, err error) {
	r.T = parseField(rec, l.t)
	if !finite(r.T) {
		return r, fmt.Errorf("%w: bad time %q", ErrRow, rec[l.t])
	}

	r.Accel = make([][3]float64, len(l.accel))
	for n, c := range l.accel {
		for j := 0; j < 3; j++ {
			r.Accel[n][j] = parseField(rec, c[j])
		}
	}
	r.Gyro = make([][3]float64, len(l.gyro))
	for n, c := range l.gyro {
		for j := 0; j < 3; j++ {
			r.Gyro[n][j] = parseField(rec, c[j])
		}
	}

	for j := 0; j < 3; j++ {
		r.Mag[j] = parseField(rec, l.mag[j])
	}
	r.MagValid = finite(r.Mag[:]...)
	if !r.MagValid {
		r.Mag = [3]float64{}
	}

	r.GPS = Fix{
		Lat: parseField(rec, l.gps[0]),
		Lon: parseField(rec, l.gps[1]),
		Alt: parseField(rec, l.gps[2]),
	}
	// The receiver reports a zero latitude until it has a fix
	r.GPSValid = finite(r.GPS.Lat, r.GPS.Lon, r.GPS.Alt) && r.GPS.Lat != 0
	if !r.GPSValid {
		r.GPS = Fix{}
	}

	r.Pressure = make([]float64, len(l.press))
	for n, c := range l.press {
		r.Pressure[n] = parseField(rec, c)
		if finite(r.Pressure[n]) && r.Pressure[n] > 0 {
			r.BaroValid = true
		}
	}
	return r, nil
}

func (l layout) format(r Record, out []string) {
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	for i := range out {
		out[i] = ""
	}
	out[l.t] = f(r.T)
	for n, c := range l.accel {
		if n < len(r.Accel) {
			for j := 0; j < 3; j++ {
				out[c[j]] = f(r.Accel[n][j])
			}
		}
	}
	for n, c := range l.gyro {
		if n < len(r.Gyro) {
			for j := 0; j < 3; j++ {
				out[c[j]] = f(r.Gyro[n][j])
			}
		}
	}
	if r.MagValid {
		for j := 0; j < 3; j++ {
			out[l.mag[j]] = f(r.Mag[j])
		}
	}
	if r.GPSValid {
		out[l.gps[0]], out[l.gps[1]], out[l.gps[2]] = f(r.GPS.Lat), f(r.GPS.Lon), f(r.GPS.Alt)
	}
	if r.BaroValid {
		for n, c := range l.press {
			if n < len(r.Pressure) {
				out[c] = f(r.Pressure[n])
			}
		}
	}
}

// RecordReader reads Records from a CSV stream with a header line.
// Either ',' or ';' separates fields; the header decides which.
type RecordReader struct {
	r      *csv.Reader
	layout layout
	fields int
	line   int
}

// NewRecordReader reads the header from r.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	br := bufio.NewReader(r)
	comma := ','
	if head, _ := br.Peek(br.Size()); len(head) > 0 {
		if i := bytes.IndexByte(head, '\n'); i >= 0 {
			head = head[:i]
		}
		if bytes.IndexByte(head, ';') >= 0 && bytes.IndexByte(head, ',') < 0 {
			comma = ';'
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("sensors: reading csv header: %w", err)
	}
	l, err := newLayout(header)
	if err != nil {
		return nil, err
	}
	return &RecordReader{r: cr, layout: l, fields: len(header), line: 1}, nil
}

// Read returns the next Record. At the end of the stream it returns io.EOF.
// A row that cannot be read returns an error wrapping ErrRow; reading may
// continue after it.
func (rr *RecordReader) Read() (Record, error) {
	rec, err := rr.r.Read()
	rr.line++
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return Record{}, fmt.Errorf("%w: line %d: %v", ErrRow, rr.line, pe.Err)
		}
		return Record{}, err
	}
	r, err := rr.layout.parse(rec)
	if err != nil {
		return r, fmt.Errorf("line %d: %w", rr.line, err)
	}
	return r, nil
}

// ReadRecords reads every Record from r, skipping bad rows.
func ReadRecords(r io.Reader) (recs []Record, err error) {
	rr, err := NewRecordReader(r)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := rr.Read()
		if err == io.EOF {
			return recs, nil
		}
		if errors.Is(err, ErrRow) {
			log.Printf("sensors: skipping csv row: %s\n", err)
			continue
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

// RecordWriter writes Records as CSV. The first Record written fixes the
// number of redundant sensors in the header.
type RecordWriter struct {
	w      *csv.Writer
	layout layout
	row    []string
}

// NewRecordWriter returns a RecordWriter on w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: csv.NewWriter(w)}
}

// Write writes one Record, preceded by the header on the first call.
func (rw *RecordWriter) Write(r Record) error {
	if rw.row == nil {
		var header []string
		rw.layout, header = layoutFor(r)
		rw.row = make([]string, len(header))
		if err := rw.w.Write(header); err != nil {
			return err
		}
	}
	rw.layout.format(r, rw.row)
	return rw.w.Write(rw.row)
}

// Flush writes any buffered data to the underlying writer.
func (rw *RecordWriter) Flush() error {
	rw.w.Flush()
	return rw.w.Error()
}

// WriteRecords writes recs as CSV to w.
func WriteRecords(w io.Writer, recs []Record) error {
	rw := NewRecordWriter(w)
	for _, r := range recs {
		if err := rw.Write(r); err != nil {
			return err
		}
	}
	return rw.Flush()
}
