package datasource

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

const shapesFile = "shapes.txt"

// StripShapes rewrites a GTFS zip without shapes.txt. Other entries are
// copied without recompression. The second return value reports whether
// anything was removed; when nothing was, the input is returned as is.
func StripShapes(b []byte) ([]byte, bool, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, false, fmt.Errorf("error opening GTFS zip: %w", err)
	}

	found := false
	for _, f := range zr.File {
		if isShapes(f.Name) {
			found = true
			break
		}
	}
	if !found {
		return b, false, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if isShapes(f.Name) {
			continue
		}
		if err := zw.Copy(f); err != nil {
			return nil, false, fmt.Errorf("error copying %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, false, fmt.Errorf("error finishing GTFS zip: %w", err)
	}
	return buf.Bytes(), true, nil
}

// Feeds are sometimes zipped with a top level folder.
func isShapes(name string) bool {
	return strings.EqualFold(path.Base(name), shapesFile)
}
