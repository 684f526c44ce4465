// Package dataset appends labeled training rows to the CSV corpora. Two
// corpora exist: the bulk corpus fed by live ingestion and the validated
// corpus fed by human review, the latter with heavy oversampling so a handful
// of confirmed labels can outweigh noisy bulk data.
package dataset

import (
	"bufio"
	"encoding/csv"
	"log/slog"
	"os"
	"strconv"

	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/filelock"
	"github.com/aquaguard/aquaguard-go/internal/logging"
	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

// Header is the column order every corpus row follows: the fourteen sensor
// features, then the binary leak label, then the integer location label.
var Header = []string{
	"f_main", "f_1", "f_2", "f_3",
	"p_main", "p_dma1", "p_dma2", "p_dma3",
	"pump_on", "comp_on", "s1", "s2", "s3", "solenoid_active",
	"leak_detected", "leak_location",
}

// ValidatedOversampling is how many copies of each human-validated row get
// appended to the validated corpus.
const ValidatedOversampling = 10

// Row is one labeled training example.
type Row struct {
	Sample       *telemetry.Sample
	LeakDetected int
	LeakLocation int
}

// Writer appends rows to a single corpus file under a cross-process lock.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer for the corpus at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, logger: logging.ForService("dataset")}
}

// Path returns the corpus file path.
func (w *Writer) Path() string { return w.path }

// Append writes count copies of row to the corpus, emitting the header first
// when the file is missing or empty. The whole append happens under an
// exclusive file lock so concurrent writers cannot interleave partial rows.
func (w *Writer) Append(row Row, count int) error {
	if count < 1 {
		count = 1
	}
	record := row.record()

	return filelock.WithExclusiveLock(w.path+".lock", filelock.DefaultMaxAttempts, filelock.DefaultBackoff, func() error {
		needHeader, err := w.isEmptyOrMissing()
		if err != nil {
			return err
		}

		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fileError(err, w.path)
		}
		defer f.Close()

		cw := csv.NewWriter(f)
		if needHeader {
			if err := cw.Write(Header); err != nil {
				return fileError(err, w.path)
			}
		}
		for i := 0; i < count; i++ {
			if err := cw.Write(record); err != nil {
				return fileError(err, w.path)
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fileError(err, w.path)
		}
		w.logger.Debug("appended corpus rows", "path", w.path, "rows", count)
		return nil
	})
}

// LineCount returns the number of data rows in the corpus, excluding the
// header. A missing file counts as zero.
func (w *Writer) LineCount() (int, error) {
	f, err := os.Open(w.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fileError(err, w.path)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			lines++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fileError(err, w.path)
	}
	if lines > 0 {
		lines-- // header
	}
	return lines, nil
}

func (w *Writer) isEmptyOrMissing() (bool, error) {
	info, err := os.Stat(w.path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fileError(err, w.path)
	}
	return info.Size() == 0, nil
}

func (r Row) record() []string {
	s := r.Sample
	return []string{
		formatFloat(s.FMain), formatFloat(s.F1), formatFloat(s.F2), formatFloat(s.F3),
		formatFloat(s.PMain), formatFloat(s.PDma1), formatFloat(s.PDma2), formatFloat(s.PDma3),
		strconv.Itoa(s.PumpOn), strconv.Itoa(s.CompOn),
		strconv.Itoa(s.S1), strconv.Itoa(s.S2), strconv.Itoa(s.S3),
		strconv.Itoa(s.SolenoidActive),
		strconv.Itoa(r.LeakDetected), strconv.Itoa(r.LeakLocation),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("dataset").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
