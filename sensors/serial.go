package sensors

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// StreamSource publishes Records parsed from a line stream in the CSV
// format of RecordReader, e.g. flight-computer telemetry on a serial port.
// The first line of the stream is the header.
type StreamSource struct {
	rc io.ReadCloser

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// OpenSerial opens a serial port at the given baud rate as a StreamSource.
func OpenSerial(path string, baud int) (*StreamSource, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("sensors: opening %s: %w", path, err)
	}
	return NewStreamSource(port), nil
}

// NewStreamSource returns a StreamSource reading from rc.
func NewStreamSource(rc io.ReadCloser) *StreamSource {
	return &StreamSource{rc: rc}
}

// Run reads Records until the stream ends, fails or ctx is done, then
// closes the returned channel. Bad rows are logged and skipped.
// Err reports why the stream stopped.
func (s *StreamSource) Run(ctx context.Context) <-chan Record {
	c := make(chan Record)
	done := make(chan struct{})

	// Closing the stream unblocks a pending read
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(c)
		defer close(done)
		scan := bufio.NewScanner(s.rc)
		var rr *RecordReader
		for scan.Scan() {
			line := strings.TrimRight(scan.Text(), "\r")
			if line == "" {
				continue
			}
			if rr == nil {
				var err error
				if rr, err = NewRecordReader(strings.NewReader(line)); err != nil {
					s.setErr(err)
					return
				}
				continue
			}
			rec, err := rr.parseLine(line)
			if err != nil {
				log.Printf("sensors: skipping line: %s\n", err)
				continue
			}
			select {
			case c <- rec:
			case <-ctx.Done():
				s.setErr(ctx.Err())
				return
			}
		}
		if err := scan.Err(); err != nil && ctx.Err() == nil {
			s.setErr(err)
			return
		}
		if ctx.Err() != nil {
			s.setErr(ctx.Err())
		}
	}()

	return c
}

// Err returns the error that stopped Run, or nil at a clean end of stream.
func (s *StreamSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StreamSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Close closes the underlying stream. It is safe to call more than once.
func (s *StreamSource) Close() (err error) {
	s.closeOnce.Do(func() {
		err = s.rc.Close()
	})
	return err
}

// parseLine reads one data line with the header already read by rr.
func (rr *RecordReader) parseLine(line string) (Record, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = rr.r.Comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	rec, err := cr.Read()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRow, err)
	}
	if len(rec) != rr.fields {
		return Record{}, fmt.Errorf("%w: %d fields, want %d", ErrRow, len(rec), rr.fields)
	}
	return rr.layout.parse(rec)
}
