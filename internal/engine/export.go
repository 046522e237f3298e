package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Clients"

// ClientExportHeader lists the columns of the client workbook
var ClientExportHeader = []string{
	"Customer ID",
	"Name",
	"Client Type",
	"PAN",
	"GSTIN",
	"Mobile",
	"Email",
	"City",
	"State",
	"Opening Balance",
	"Balance Type",
	"Active",
}

// Export renders every client of the agency as an xlsx workbook
func (e *ClientEngine) Export(ctx context.Context, agencyID uuid.UUID, search string) ([]byte, error) {
	page, err := e.List(ctx, agencyID, ListParams{Search: search})
	if err != nil {
		return nil, err
	}
	return buildClientWorkbook(page.Items)
}

func buildClientWorkbook(clients []ClientRead) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, 1, toCells(ClientExportHeader)); err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(ClientExportHeader), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(exportSheet, "A", "L", 18); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, c := range clients {
		row := []interface{}{
			c.CustomerID,
			c.Name,
			c.ClientType,
			deref(c.PAN),
			deref(c.GSTIN),
			deref(c.Mobile),
			deref(c.Email),
			deref(c.City),
			deref(c.State),
			c.OpeningBalanceAmount,
			deref(c.OpeningBalanceType),
			renderBool(c.IsActive),
		}
		if err := writeRow(f, i+2, row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
