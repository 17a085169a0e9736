package sheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Workbook is a Store backed by one worksheet of an OOXML workbook. Other
// sheets, styles and formulas are carried through Save untouched.
type Workbook struct {
	f     *excelize.File
	sheet string
}

var _ Store = (*Workbook)(nil)

// OpenWorkbook opens path and binds the store to sheetName, or to the first
// worksheet when sheetName is empty.
func OpenWorkbook(path, sheetName string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	w, err := bindWorkbook(f, sheetName)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWorkbook returns an empty single-sheet workbook.
func NewWorkbook() *Workbook {
	f := excelize.NewFile()
	return &Workbook{f: f, sheet: f.GetSheetList()[0]}
}

func bindWorkbook(f *excelize.File, sheetName string) (*Workbook, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no worksheets")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		return &Workbook{f: f, sheet: sheets[0]}, nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s, sheetName) {
			return &Workbook{f: f, sheet: s}, nil
		}
	}
	return nil, fmt.Errorf("worksheet %q not found (have %s)", sheetName, strings.Join(sheets, ", "))
}

// SheetName is the worksheet the store reads and writes.
func (w *Workbook) SheetName() string {
	return w.sheet
}

func (w *Workbook) Get(addr Address) (string, error) {
	if err := checkAddress(addr); err != nil {
		return "", err
	}
	v, err := w.f.GetCellValue(w.sheet, addr.String())
	if err != nil {
		return "", fmt.Errorf("read %s: %w", addr, err)
	}
	return v, nil
}

func (w *Workbook) SetInt(addr Address, v int64) error {
	if err := checkAddress(addr); err != nil {
		return err
	}
	if err := w.f.SetCellValue(w.sheet, addr.String(), v); err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}

func (w *Workbook) SetString(addr Address, v string) error {
	if err := checkAddress(addr); err != nil {
		return err
	}
	if err := w.f.SetCellStr(w.sheet, addr.String(), v); err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}

func (w *Workbook) Save(path string) error {
	return writeFileAtomic(path, func(out io.Writer) error {
		if _, err := w.f.WriteTo(out); err != nil {
			return fmt.Errorf("encode workbook: %w", err)
		}
		return nil
	})
}

func (w *Workbook) Close() error {
	return w.f.Close()
}
