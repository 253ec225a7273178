package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"groupdraw-server-go/models"
)

const (
	nameColumn   = "Nome"
	cohortColumn = "Turma"
)

// Load reads a roster, choosing the parser from the file extension.
// Anything that is not .xlsx is read as semicolon separated text.
func Load(filename string, r io.Reader) (*Roster, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return LoadExcel(r)
	default:
		return LoadCSV(r)
	}
}

// LoadCSV reads a semicolon separated UTF-8 roster with at least the
// Nome and Turma columns.
func LoadCSV(r io.Reader) (*Roster, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read csv: %v", ErrMalformedRoster, err)
	}
	students, err := parseRows(rows)
	if err != nil {
		return nil, err
	}
	return New(students)
}

// LoadExcel reads the roster from the first sheet of an xlsx workbook
func LoadExcel(r io.Reader) (*Roster, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing excel file")
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}
	students, err := parseRows(rows)
	if err != nil {
		return nil, err
	}
	return New(students)
}

// parseRows maps a header row plus data rows to students.
// Rows without a name are skipped; a bad Turma value fails the whole load.
func parseRows(rows [][]string) ([]models.Student, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedRoster)
	}

	nameIdx, cohortIdx := -1, -1
	for i, col := range rows[0] {
		switch strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")) {
		case nameColumn:
			nameIdx = i
		case cohortColumn:
			cohortIdx = i
		}
	}
	if nameIdx < 0 || cohortIdx < 0 {
		return nil, fmt.Errorf("%w: header must contain %q and %q columns", ErrMalformedRoster, nameColumn, cohortColumn)
	}

	students := make([]models.Student, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2 // 1-based, header is line 1

		name := cell(row, nameIdx)
		if name == "" {
			if cell(row, cohortIdx) != "" {
				logrus.WithField("line", line).Warn("Skipping roster row without a name")
			}
			continue
		}

		raw := cell(row, cohortIdx)
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: Turma %q is not an integer", ErrMalformedRoster, line, raw)
		}
		cohort := models.Cohort(n)
		if !cohort.Valid() {
			return nil, fmt.Errorf("%w: line %d: unknown Turma %d", ErrMalformedRoster, line, n)
		}
		students = append(students, models.Student{Name: name, Cohort: cohort})
	}
	return students, nil
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
