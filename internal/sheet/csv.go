package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVStore keeps a CSV file in memory as a ragged grid of strings.
type CSVStore struct {
	rows [][]string
}

var _ Store = (*CSVStore)(nil)

// ReadCSV loads every record of r, header included.
func ReadCSV(r io.Reader) (*CSVStore, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	// CQL is full of double quotes that spreadsheet exports do not always escape.
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
	}
	return &CSVStore{rows: rows}, nil
}

// NewCSVStore wraps an existing grid. The grid is not copied.
func NewCSVStore(rows [][]string) *CSVStore {
	return &CSVStore{rows: rows}
}

func (s *CSVStore) Get(addr Address) (string, error) {
	if err := checkAddress(addr); err != nil {
		return "", err
	}
	if addr.Row >= len(s.rows) || addr.Col >= len(s.rows[addr.Row]) {
		return "", nil
	}
	return s.rows[addr.Row][addr.Col], nil
}

func (s *CSVStore) SetInt(addr Address, v int64) error {
	return s.SetString(addr, strconv.FormatInt(v, 10))
}

func (s *CSVStore) SetString(addr Address, v string) error {
	if err := checkAddress(addr); err != nil {
		return err
	}
	for len(s.rows) <= addr.Row {
		s.rows = append(s.rows, nil)
	}
	row := s.rows[addr.Row]
	for len(row) <= addr.Col {
		row = append(row, "")
	}
	row[addr.Col] = v
	s.rows[addr.Row] = row
	return nil
}

// WriteTo writes the grid as CSV.
func (s *CSVStore) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	out := csv.NewWriter(cw)
	for _, r := range s.rows {
		if err := out.Write(r); err != nil {
			return cw.n, err
		}
	}
	out.Flush()
	return cw.n, out.Error()
}

func (s *CSVStore) Save(path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		_, err := s.WriteTo(w)
		return err
	})
}

func (s *CSVStore) Close() error {
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
