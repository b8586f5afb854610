// Package export renders closed statements as CSV, XLSX and PDF
// reports, for download from the API and for the export worker's
// archive on disk.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"fiado/internal/core"
)

// BuildStatementCSV renders one statement per row plus its line items,
// matching the columns of the legacy spreadsheet the store used.
func BuildStatementCSV(statements []core.Statement) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"statementId", "customerId", "month", "status", "total", "carryOver", "paidAmount", "balanceDue", "closedAt"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for _, st := range statements {
		closedAt := ""
		if st.ClosedAt != nil {
			closedAt = st.ClosedAt.Format(time.RFC3339)
		}
		row := []string{
			fmt.Sprintf("%d", st.ID),
			fmt.Sprintf("%d", st.CustomerID),
			string(st.Month),
			string(st.Status),
			st.Total.String(),
			st.CarryOver.String(),
			st.PaidAmount.String(),
			st.BalanceDue.String(),
			closedAt,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders one statement as a two-sheet workbook,
// summary plus line items.
func BuildStatementXLSX(st core.Statement) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	itemsSheet := "items"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(itemsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Monthly Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Customer")
	_ = f.SetCellValue(summarySheet, "B3", st.CustomerID)
	_ = f.SetCellValue(summarySheet, "A4", "Month")
	_ = f.SetCellValue(summarySheet, "B4", string(st.Month))
	_ = f.SetCellValue(summarySheet, "A5", "Status")
	_ = f.SetCellValue(summarySheet, "B5", string(st.Status))
	_ = f.SetCellValue(summarySheet, "A6", "Total")
	_ = f.SetCellValue(summarySheet, "B6", st.Total.String())
	_ = f.SetCellValue(summarySheet, "A7", "Carry Over")
	_ = f.SetCellValue(summarySheet, "B7", st.CarryOver.String())
	_ = f.SetCellValue(summarySheet, "A8", "Paid")
	_ = f.SetCellValue(summarySheet, "B8", st.PaidAmount.String())
	_ = f.SetCellValue(summarySheet, "A9", "Balance Due")
	_ = f.SetCellValue(summarySheet, "B9", st.BalanceDue.String())
	if st.ClosedAt != nil {
		_ = f.SetCellValue(summarySheet, "A10", "Closed")
		_ = f.SetCellValue(summarySheet, "B10", st.ClosedAt.Format(time.RFC3339))
	}

	_ = f.SetCellValue(itemsSheet, "A1", "Date")
	_ = f.SetCellValue(itemsSheet, "B1", "Product")
	_ = f.SetCellValue(itemsSheet, "C1", "Amount")
	for i, item := range st.Items {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), item.Date)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), item.Product)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), item.Amount.String())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementPDF renders a minimal PDF for one statement.
func BuildStatementPDF(st core.Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Monthly Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Customer: %d", st.CustomerID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Month: %s", st.Month))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", st.Status))
	pdf.Ln(5)
	if st.ClosedAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Closed: %s", st.ClosedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total: %s", st.Total.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Carry Over: %s", st.CarryOver.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Paid: %s", st.PaidAmount.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Balance Due: %s", st.BalanceDue.String()))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(90, 6, "Product", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range st.Items {
		pdf.CellFormat(40, 6, item.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(90, 6, item.Product, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, item.Amount.String(), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
