// Package sheet is the tabular store the batch runner reads queries from and
// writes counts into. Cells are addressed by absolute zero-based grid
// coordinates; any header offset is the caller's business.
package sheet

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Address is a zero-based (row, column) grid coordinate.
type Address struct {
	Row int
	Col int
}

// String renders the address in A1 notation.
func (a Address) String() string {
	name, err := excelize.CoordinatesToCellName(a.Col+1, a.Row+1)
	if err != nil {
		return fmt.Sprintf("R%dC%d", a.Row+1, a.Col+1)
	}
	return name
}

// Store is a mutable grid that can be persisted to a path.
//
// A Store has a single owner; implementations are not safe for concurrent use.
type Store interface {
	// Get returns the cell's text. Cells outside the stored grid read as "".
	Get(addr Address) (string, error)
	SetInt(addr Address, v int64) error
	SetString(addr Address, v string) error
	// Save writes the whole grid to path, replacing any existing file.
	Save(path string) error
	Close() error
}

// ParseColumn maps a letter column identifier ("A", "ab") to a zero-based index.
func ParseColumn(name string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		return 0, fmt.Errorf("invalid column %q: %w", name, err)
	}
	return n - 1, nil
}

// ColumnName maps a zero-based column index back to letters.
func ColumnName(col int) string {
	name, err := excelize.ColumnNumberToName(col + 1)
	if err != nil {
		return fmt.Sprintf("C%d", col+1)
	}
	return name
}

// ParseColumns parses a list such as ["B", "c", "AA"].
func ParseColumns(names []string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		col, err := ParseColumn(n)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	return out, nil
}

// Open loads the store at path, choosing the format by extension. sheetName
// selects a worksheet for spreadsheet formats; empty means the first sheet.
func Open(path, sheetName string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return OpenWorkbook(path, sheetName)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = f.Close()
		}()
		return ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported input format %q (want .xlsx, .xlsm or .csv)", filepath.Ext(path))
	}
}

func checkAddress(addr Address) error {
	if addr.Row < 0 || addr.Col < 0 {
		return fmt.Errorf("invalid cell address row=%d col=%d", addr.Row, addr.Col)
	}
	return nil
}
