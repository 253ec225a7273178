package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"groupdraw-server-go/models"
)

const exportSheet = "Grupos"

var exportHeader = []string{"Grupo", "Nome", "Turma"}

// ExportRows flattens manual groups ("Manual n") followed by automatic
// groups ("Grupo n"). Names missing from the roster get cohort 0.
func ExportRows(r *Roster, manual, automatic []models.Group) []models.ExportRow {
	rows := []models.ExportRow{}
	appendGroups := func(groups []models.Group, label string) {
		for idx, group := range groups {
			for _, name := range group {
				cohort, _ := r.Cohort(name)
				rows = append(rows, models.ExportRow{
					Group:  fmt.Sprintf("%s %d", label, idx+1),
					Name:   name,
					Cohort: cohort,
				})
			}
		}
	}
	appendGroups(manual, "Manual")
	appendGroups(automatic, "Grupo")
	return rows
}

// WriteCSV writes the rows as comma separated text with a header line
func WriteCSV(w io.Writer, rows []models.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.Group, row.Name, strconv.Itoa(int(row.Cohort))}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExcel writes the rows into a single-sheet xlsx workbook
func WriteExcel(w io.Writer, rows []models.ExportRow) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logrus.WithError(err).Warn("Error closing excel file")
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.Group, row.Name, int(row.Cohort)}
		if err := f.SetSheetRow(exportSheet, axis, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
