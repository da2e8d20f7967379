package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxRelocations = 1000

// appendRows renders rows in memory and appends them to path with one write,
// creating the file if needed. Files have no header.
func appendRows(path string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// monthKey is the YYYYMM prefix of a batch file name.
func monthKey(name string) (string, error) {
	if len(name) < 6 || strings.Trim(name[:6], "0123456789") != "" {
		return "", fmt.Errorf("batch name [%v] does not start with YYYYMM", name)
	}
	return name[:6], nil
}

// freeName returns name, or name with a -N suffix before the extension, such
// that nothing in dir is called that yet.
func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 0; n < maxRelocations; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s-%d%s", base, n, ext)
		}
		if _, err := os.Lstat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for [%v] in [%v]", name, dir)
}
