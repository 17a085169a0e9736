package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompt asks for every required setting still missing from cfg, one line per
// answer. Paths may be pasted with surrounding quotes.
func Prompt(in io.Reader, out io.Writer, cfg Config) (Config, error) {
	sc := bufio.NewScanner(in)
	ask := func(label string) (string, error) {
		_, _ = fmt.Fprintf(out, "%s: ", label)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return strings.Trim(strings.TrimSpace(sc.Text()), `"'`), nil
	}

	var err error
	if strings.TrimSpace(cfg.Input) == "" {
		if cfg.Input, err = ask("Input spreadsheet path"); err != nil {
			return cfg, err
		}
	}
	if strings.TrimSpace(cfg.Output) == "" {
		if cfg.Output, err = ask("Output spreadsheet path"); err != nil {
			return cfg, err
		}
	}
	if strings.TrimSpace(cfg.Corpus) == "" {
		if cfg.Corpus, err = ask("Corpus name"); err != nil {
			return cfg, err
		}
	}
	if cfg.StartRow == 0 && cfg.EndRow == 0 {
		if cfg.StartRow, err = askInt(ask, fmt.Sprintf("Start from row (%d-based)", cfg.RowBase)); err != nil {
			return cfg, err
		}
		if cfg.EndRow, err = askInt(ask, fmt.Sprintf("End at row (%d-based)", cfg.RowBase)); err != nil {
			return cfg, err
		}
	}
	if len(cfg.Columns) == 0 {
		raw, err := ask("Comma-separated columns to scan (e.g. B,C,D)")
		if err != nil {
			return cfg, err
		}
		cfg.Columns = SplitColumns(raw)
	}
	return cfg, nil
}

func askInt(ask func(string) (string, error), label string) (int, error) {
	raw, err := ask(label)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", strings.ToLower(label), raw)
	}
	return n, nil
}
