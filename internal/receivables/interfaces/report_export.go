package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"bizledger/internal/receivables/application"
)

// BuildAgingXLSX renders the aging report as a workbook with a summary and a per-customer sheet.
func BuildAgingXLSX(report application.AgingReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	linesSheet := "customers"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(linesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Receivables Aging Report")
	_ = f.SetCellValue(summarySheet, "A3", "Company")
	_ = f.SetCellValue(summarySheet, "B3", report.CompanyID)
	_ = f.SetCellValue(summarySheet, "A4", "As Of")
	_ = f.SetCellValue(summarySheet, "B4", report.AsOf.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A5", "Compounding")
	_ = f.SetCellValue(summarySheet, "B5", string(report.CompoundingMode))
	_ = f.SetCellValue(summarySheet, "A6", "Minimum Fee")
	_ = f.SetCellValue(summarySheet, "B6", report.MinimumFee.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A7", "Total Outstanding")
	_ = f.SetCellValue(summarySheet, "B7", report.Totals.Outstanding.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A8", "Total Interest")
	_ = f.SetCellValue(summarySheet, "B8", report.Totals.Interest.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A9", "Open Entries")
	_ = f.SetCellValue(summarySheet, "B9", report.Totals.OpenEntries)

	headers := []string{"Customer"}
	for _, bucket := range application.AgingBuckets {
		headers = append(headers, string(bucket))
	}
	headers = append(headers, "Outstanding", "Interest", "Open Entries")
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(linesSheet, cell, header)
	}
	lines := append(append([]application.AgingLine(nil), report.Lines...), report.Totals)
	for i, line := range lines {
		row := i + 2
		customer := line.CustomerID
		if i == len(lines)-1 {
			customer = "TOTAL"
		}
		values := []any{customer}
		for _, bucket := range application.AgingBuckets {
			values = append(values, line.Buckets[bucket].InexactFloat64())
		}
		values = append(values, line.Outstanding.InexactFloat64(), line.Interest.InexactFloat64(), line.OpenEntries)
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(linesSheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildCustomerStatementPDF renders a customer account statement.
func BuildCustomerStatementPDF(stmt application.Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Customer Account Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Company: %s", stmt.CompanyID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Customer: %s", stmt.CustomerID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	balance := stmt.Balance.Rounded()
	pdf.Cell(0, 6, fmt.Sprintf("Balance: %s", balance.Balance.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Credit Limit: %s", balance.CreditLimit.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Available Credit: %s", balance.AvailableCredit.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Credit Utilization: %s%%", balance.CreditUtilizationPercent.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(25, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Entry", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Paid", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Interest", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, entry := range stmt.Entries {
		pdf.CellFormat(25, 6, entry.Date.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, truncate(entry.ID, 22), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(entry.Type), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, entry.Status.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, entry.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, entry.PaidAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, entry.AccruedInterest.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-1] + "~"
}
