package delivery

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelWriter writes query rows as a single-sheet workbook using the
// stream writer, header row first, columns in select order.
type ExcelWriter struct{}

func (ExcelWriter) Write(path string, columns []string, rows []map[string]any) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter("Sheet1")
	if err != nil {
		return err
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, c := range columns {
			cells[j] = row[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
