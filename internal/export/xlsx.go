// Package export writes stored requests to spreadsheets for the support team.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"csr-intake/internal/requests"
)

// SheetName is the worksheet holding the requests.
const SheetName = "Requests"

// Columns is the header row, matching the requests table.
var Columns = []string{
	"ID", "Submitted", "Full name", "Email", "Phone", "Customer ID",
	"Request type", "Subject", "Description", "Attachment", "City", "State",
	"Postal code", "Preferred contact time",
}

// WriteXLSX writes recs as a single-sheet workbook to w.
func WriteXLSX(w io.Writer, recs []requests.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(Columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	for i, rec := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			rec.ID,
			rec.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
			rec.FullName,
			rec.Email,
			rec.Phone,
			rec.CustomerID,
			rec.RequestType,
			rec.Subject,
			rec.Description,
			rec.FilePath,
			rec.City,
			rec.State,
			rec.PostalCode,
			rec.PreferredContactTime,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write request %d: %w", rec.ID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
