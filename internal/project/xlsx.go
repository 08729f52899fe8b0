package project

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Punkty"

// ExportXLSX writes the selected project's points as a workbook.
func (s *Store) ExportXLSX(w io.Writer) error {
	p, err := s.currentProject()
	if err != nil {
		return err
	}
	pts, err := readPoints(p.csvPath)
	if err != nil {
		return fmt.Errorf("project: read points: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return fmt.Errorf("project: xlsx sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("project: xlsx sheet: %w", err)
	}

	for col, title := range csvHeader {
		if err := setCell(f, col+1, 1, title); err != nil {
			return err
		}
	}
	for i, pt := range pts {
		row := i + 2
		cells := []interface{}{pt.ID, pt.Name, optCell(pt.X), optCell(pt.Y), optCell(pt.H), optCell(pt.Lat), optCell(pt.Lon), optCell(pt.HEll)}
		for col, v := range cells {
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
	}
	if err := f.SetColWidth(xlsxSheet, "A", "H", 15); err != nil {
		return fmt.Errorf("project: xlsx: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: p.name, Creator: "rtk-monitor"}); err != nil {
		return fmt.Errorf("project: xlsx: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("project: xlsx write: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("project: xlsx cell: %w", err)
	}
	if err := f.SetCellValue(xlsxSheet, cell, v); err != nil {
		return fmt.Errorf("project: xlsx %s: %w", cell, err)
	}
	return nil
}

func optCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
