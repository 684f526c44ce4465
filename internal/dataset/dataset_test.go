package dataset

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

func testRow() Row {
	return Row{
		Sample: &telemetry.Sample{
			FMain: 12.5, F1: 4.1, PMain: 3.2, PumpOn: 1, S2: 1,
		},
		LeakDetected: 1,
		LeakLocation: 2,
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	w := NewWriter(path)

	require.NoError(t, w.Append(testRow(), 1))
	require.NoError(t, w.Append(testRow(), 1))

	records := readAll(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, records[1], records[2])
	assert.Equal(t, "12.5", records[1][0])
	assert.Equal(t, "1", records[1][14], "leak label column")
	assert.Equal(t, "2", records[1][15], "location label column")
}

func TestAppendHeaderOnEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w := NewWriter(path)
	require.NoError(t, w.Append(testRow(), 1))

	records := readAll(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, Header, records[0])
}

func TestAppendOversampling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validated.csv")
	w := NewWriter(path)

	require.NoError(t, w.Append(testRow(), ValidatedOversampling))

	records := readAll(t, path)
	require.Len(t, records, 1+ValidatedOversampling)
	for _, rec := range records[1:] {
		assert.Equal(t, records[1], rec, "oversampled copies are identical")
	}

	n, err := w.LineCount()
	require.NoError(t, err)
	assert.Equal(t, ValidatedOversampling, n)
}

func TestLineCount(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		w := NewWriter(filepath.Join(t.TempDir(), "nope.csv"))
		n, err := w.LineCount()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("ExcludesHeader", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corpus.csv")
		w := NewWriter(path)
		require.NoError(t, w.Append(testRow(), 3))

		n, err := w.LineCount()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	w := NewWriter(path)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Append(testRow(), 2))
		}()
	}
	wg.Wait()

	records := readAll(t, path)
	require.Len(t, records, 21)
	assert.Equal(t, Header, records[0])
	for _, rec := range records[1:] {
		require.Len(t, rec, len(Header))
	}
}
