package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat/sampleuv"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the
	// table header.
	ErrMissingColumn = errors.New("required column missing from table")
	// ErrInvalidLabel is returned when a label cell is not a number.
	ErrInvalidLabel = errors.New("label is not a number")
	// ErrSampleTooLarge is returned when sampling more rows than the table has.
	ErrSampleTooLarge = errors.New("sample size exceeds table rows")
)

// MissingValues are the cell contents treated as absent.
var MissingValues = []string{"", "NA", "NaN", "nan", "null", "NULL", "None", "N/A", "#N/A"}

// Record is one retained table row.
type Record struct {
	SMILES string
	Labels []float32
}

// Table holds the required columns of a delimited file, with incomplete
// rows removed. Row i of the table is Records[i].
type Table struct {
	SmilesColumn string
	LabelColumns []string
	Records      []Record
	// Dropped counts rows removed for missing values.
	Dropped int
}

// TableSpec names the columns to read.
type TableSpec struct {
	SmilesColumn string
	LabelColumns []string
	// Delimiter overrides the extension-based choice when non-zero.
	Delimiter rune
}

// DelimiterFor picks the field separator from a file extension: comma for
// .csv, tab for everything else.
func DelimiterFor(path string) rune {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".csv" {
		return ','
	}
	return '\t'
}

// ReadTable loads the required columns of the file at path.
func ReadTable(path string, spec TableSpec) (*Table, error) {
	if spec.Delimiter == 0 {
		spec.Delimiter = DelimiterFor(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	t, err := ParseTable(f, spec)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	return t, nil
}

// ParseTable reads a delimited table with a header row from r. A zero
// delimiter means comma.
func ParseTable(r io.Reader, spec TableSpec) (*Table, error) {
	if spec.SmilesColumn == "" {
		spec.SmilesColumn = "smiles"
	}
	cr := csv.NewReader(r)
	if spec.Delimiter != 0 {
		cr.Comma = spec.Delimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = lo.Map(header, func(h string, _ int) string { return strings.TrimSpace(h) })
	position := lo.SliceToMap(lo.Range(len(header)), func(i int) (string, int) {
		return header[i], i
	})

	required := append([]string{spec.SmilesColumn}, spec.LabelColumns...)
	missing := lo.Filter(required, func(col string, _ int) bool {
		_, ok := position[col]
		return !ok
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	cols := lo.Map(required, func(col string, _ int) int { return position[col] })

	t := &Table{SmilesColumn: spec.SmilesColumn, LabelColumns: spec.LabelColumns}
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		values := make([]string, len(cols))
		complete := true
		for i, c := range cols {
			if c >= len(fields) || isMissing(fields[c]) {
				complete = false
				break
			}
			values[i] = strings.TrimSpace(fields[c])
		}
		if !complete {
			t.Dropped++
			continue
		}
		rec := Record{SMILES: values[0]}
		if len(spec.LabelColumns) > 0 {
			rec.Labels = make([]float32, len(spec.LabelColumns))
			for i, v := range values[1:] {
				x, err := strconv.ParseFloat(v, 32)
				if err != nil {
					return nil, fmt.Errorf("%w: row %d column %q: %q", ErrInvalidLabel, row, spec.LabelColumns[i], v)
				}
				rec.Labels[i] = float32(x)
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

func isMissing(v string) bool {
	return lo.Contains(MissingValues, strings.TrimSpace(v))
}

// Len returns the number of retained rows.
func (t *Table) Len() int { return len(t.Records) }

// SMILES returns the SMILES column in row order.
func (t *Table) SMILES() []string {
	return lo.Map(t.Records, func(r Record, _ int) string { return r.SMILES })
}

// Sample returns n distinct rows drawn with a generator seeded by seed. The
// same table, n and seed always give the same rows in the same order.
func (t *Table) Sample(n int, seed int64) (*Table, error) {
	if n < 0 || n > len(t.Records) {
		return nil, fmt.Errorf("%w: requested %d rows, table has %d", ErrSampleTooLarge, n, len(t.Records))
	}
	out := &Table{SmilesColumn: t.SmilesColumn, LabelColumns: t.LabelColumns}
	if n == 0 {
		return out, nil
	}
	idxs := make([]int, n)
	sampleuv.WithoutReplacement(idxs, len(t.Records), rand.NewPCG(uint64(seed), sampleStream))
	out.Records = lo.Map(idxs, func(i int, _ int) Record { return t.Records[i] })
	return out, nil
}

// WithSMILES returns a copy of t whose SMILES column is replaced by smiles.
func (t *Table) WithSMILES(smiles []string) (*Table, error) {
	if len(smiles) != len(t.Records) {
		return nil, fmt.Errorf("replacement column has %d rows, table has %d", len(smiles), len(t.Records))
	}
	out := &Table{SmilesColumn: t.SmilesColumn, LabelColumns: t.LabelColumns, Dropped: t.Dropped}
	out.Records = lo.Map(t.Records, func(r Record, i int) Record {
		return Record{SMILES: smiles[i], Labels: r.Labels}
	})
	return out, nil
}

// Generator streams keep the sampling and splitting sequences of one seed
// independent.
const (
	sampleStream uint64 = iota + 1
	splitStream
)
