// Package source decodes tabular files into raw bar batches.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"BarLake/internal/domain/models"
)

// Reader decodes one batch. size is the total input length; readers that
// need random access (parquet) require r to implement io.ReaderAt.
type Reader interface {
	Read(r io.Reader, size int64, name string) (models.RawBatch, error)
}

var readers = map[string]Reader{
	".csv":     CSVReader{},
	".txt":     CSVReader{},
	".parquet": ParquetReader{},
}

// ForName picks a reader by file extension.
func ForName(name string) (Reader, bool) {
	r, ok := readers[strings.ToLower(filepath.Ext(name))]
	return r, ok
}

// Supported reports whether a file can be ingested.
func Supported(name string) bool {
	_, ok := ForName(name)
	return ok
}

// ReadFile opens path and decodes it with the reader matching its
// extension.
func ReadFile(path string) (models.RawBatch, error) {
	reader, ok := ForName(path)
	if !ok {
		return models.RawBatch{}, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return models.RawBatch{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return models.RawBatch{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return reader.Read(f, st.Size(), "file:"+filepath.Base(path))
}
