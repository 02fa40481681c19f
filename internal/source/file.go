// Package source provides MarketSource implementations: FileSource
// replays recorded ticks from a CSV file, SyntheticSource generates a
// deterministic synthetic random walk. Both satisfy
// dispatcher.MarketSource (Next() (types.Tick, bool)).
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/darkskele/quantengine/pkg/types"
)

// FileSource reads ticks from a CSV file with header columns
// symbol,price,quantity,timestamp_ms,buyer_initiated. It is read
// sequentially and exhausts after the last row.
type FileSource struct {
	f   *os.File
	r   *csv.Reader
	err error
}

// OpenFileSource opens path and validates its header. Callers must
// call Close when done.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = 5

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: read header from %s: %w", path, err)
	}
	want := []string{"symbol", "price", "quantity", "timestamp_ms", "buyer_initiated"}
	for i, col := range want {
		if i >= len(header) || header[i] != col {
			f.Close()
			return nil, fmt.Errorf("source: %s: expected header column %d to be %q, got %v", path, i, col, header)
		}
	}

	return &FileSource{f: f, r: r}, nil
}

// Next returns the next tick in the file, or false at end-of-file or
// on a read error (the error, if any, is retained in Err()).
func (s *FileSource) Next() (types.Tick, bool) {
	if s.err != nil {
		return types.Tick{}, false
	}
	record, err := s.r.Read()
	if err == io.EOF {
		return types.Tick{}, false
	}
	if err != nil {
		s.err = err
		return types.Tick{}, false
	}

	price, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		s.err = fmt.Errorf("source: parse price %q: %w", record[1], err)
		return types.Tick{}, false
	}
	quantity, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		s.err = fmt.Errorf("source: parse quantity %q: %w", record[2], err)
		return types.Tick{}, false
	}
	timestampMs, err := strconv.ParseInt(record[3], 10, 64)
	if err != nil {
		s.err = fmt.Errorf("source: parse timestamp_ms %q: %w", record[3], err)
		return types.Tick{}, false
	}
	buyerInitiated, err := strconv.ParseBool(record[4])
	if err != nil {
		s.err = fmt.Errorf("source: parse buyer_initiated %q: %w", record[4], err)
		return types.Tick{}, false
	}

	return types.Tick{
		Symbol:         record[0],
		Price:          price,
		Quantity:       quantity,
		TimestampMs:    timestampMs,
		BuyerInitiated: buyerInitiated,
	}, true
}

// Err returns the first read or parse error encountered, if any.
func (s *FileSource) Err() error {
	return s.err
}

// Close releases the underlying file handle.
func (s *FileSource) Close() error {
	return s.f.Close()
}
