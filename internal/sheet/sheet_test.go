package sheet_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/corpus-querier/internal/sheet"
)

func TestParseColumn(t *testing.T) {
	cases := map[string]int{"A": 0, "b": 1, " Z ": 25, "AA": 26, "AB": 27}
	for in, want := range cases {
		got, err := sheet.ParseColumn(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, strings.ToUpper(strings.TrimSpace(in)), sheet.ColumnName(got))
	}

	for _, bad := range []string{"", "1", "A1", "?"} {
		_, err := sheet.ParseColumn(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseColumns(t *testing.T) {
	got, err := sheet.ParseColumns([]string{"B", " ", "d"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got)

	_, err = sheet.ParseColumns([]string{" "})
	assert.Error(t, err)
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "A1", sheet.Address{}.String())
	assert.Equal(t, "C5", sheet.Address{Row: 4, Col: 2}.String())
}

func TestCSVStore(t *testing.T) {
	t.Run("get and set", func(t *testing.T) {
		s, err := sheet.ReadCSV(strings.NewReader("query,count\n[word=\"a\"],\n"))
		require.NoError(t, err)

		v, err := s.Get(sheet.Address{Row: 1, Col: 0})
		require.NoError(t, err)
		assert.Equal(t, `[word="a"]`, v)

		v, err = s.Get(sheet.Address{Row: 10, Col: 10})
		require.NoError(t, err)
		assert.Empty(t, v)

		require.NoError(t, s.SetInt(sheet.Address{Row: 1, Col: 0}, 42))
		require.NoError(t, s.SetString(sheet.Address{Row: 3, Col: 2}, "ERROR"))

		var buf bytes.Buffer
		_, err = s.WriteTo(&buf)
		require.NoError(t, err)
		assert.Equal(t, "query,count\n42,\n\n,,ERROR\n", buf.String())
	})

	t.Run("negative address errors", func(t *testing.T) {
		s := sheet.NewCSVStore(nil)
		_, err := s.Get(sheet.Address{Row: -1})
		assert.Error(t, err)
		assert.Error(t, s.SetInt(sheet.Address{Col: -1}, 1))
	})
}

func TestCSVStore_SaveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte("a,b\n\"[word=\"\"x\"\"]\",2\n"), 0o644))

	s, err := sheet.Open(in, "")
	require.NoError(t, err)
	require.NoError(t, s.SetInt(sheet.Address{Row: 1, Col: 0}, 5))

	out := filepath.Join(dir, "nested", "out.csv")
	require.NoError(t, s.Save(out))
	first, err := os.ReadFile(out)
	require.NoError(t, err)

	require.NoError(t, s.Save(out))
	second, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "a,b\n5,2\n", string(first))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWorkbook_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queries.xlsx")

	wb := sheet.NewWorkbook()
	require.NoError(t, wb.SetString(sheet.Address{Row: 0, Col: 0}, "query"))
	require.NoError(t, wb.SetString(sheet.Address{Row: 1, Col: 0}, `[word="cat"]`))
	require.NoError(t, wb.Save(path))
	require.NoError(t, wb.Close())

	s, err := sheet.Open(path, "")
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	v, err := s.Get(sheet.Address{Row: 1, Col: 0})
	require.NoError(t, err)
	assert.Equal(t, `[word="cat"]`, v)

	require.NoError(t, s.SetInt(sheet.Address{Row: 1, Col: 0}, 42))
	out := filepath.Join(dir, "out.xlsx")
	require.NoError(t, s.Save(out))
	require.NoError(t, s.Save(out))

	reopened, err := sheet.OpenWorkbook(out, "sheet1")
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()
	assert.Equal(t, "Sheet1", reopened.SheetName(), "lookup is case-insensitive, the bound name is the workbook's")
	v, err = reopened.Get(sheet.Address{Row: 1, Col: 0})
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}

func TestOpenWorkbook_UnknownSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.xlsx")
	wb := sheet.NewWorkbook()
	require.NoError(t, wb.Save(path))
	require.NoError(t, wb.Close())

	_, err := sheet.OpenWorkbook(path, "Missing")
	assert.ErrorContains(t, err, "not found")
}

func TestOpen_UnsupportedExtension(t *testing.T) {
	_, err := sheet.Open("queries.ods", "")
	assert.ErrorContains(t, err, "unsupported")
}
