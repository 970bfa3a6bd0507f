package flightlog

import (
	"fmt"
	"io"
	"strings"
)

// Logger writes estimates as CSV rows under a fixed header.
type Logger struct {
	w      io.Writer
	Header []string
	fmt    string
	vals   []interface{}
}

// NewLogger writes the header to w and returns a Logger for rows of
// len(header) values.
func NewLogger(w io.Writer, header ...string) (l *Logger, err error) {
	if len(header) == 0 {
		header = Columns
	}
	l = &Logger{w: w, Header: header}
	if _, err = fmt.Fprint(l.w, strings.Join(l.Header, ","), "\n"); err != nil {
		return nil, err
	}
	s := strings.Repeat("%f,", len(l.Header))
	l.fmt = strings.Join([]string{s[:len(s)-1], "\n"}, "")
	l.vals = make([]interface{}, len(l.Header))
	return l, nil
}

// Log writes one row.
func (l *Logger) Log(v ...float64) error {
	if len(v) != len(l.vals) {
		return fmt.Errorf("flightlog: %d values for %d columns", len(v), len(l.vals))
	}
	for i := range v {
		l.vals[i] = v[i]
	}
	_, err := fmt.Fprintf(l.w, l.fmt, l.vals...)
	return err
}

// LogEstimate writes e as a row of a Logger built with the default Columns.
func (l *Logger) LogEstimate(e Estimate) error {
	return l.Log(e.Values()...)
}
