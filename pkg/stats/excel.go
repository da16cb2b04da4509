package stats

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/jordanlanch/outreach/pkg/delivery"
)

// WriteXLSX writes a workbook with a Summary sheet and an Attempts sheet.
func WriteXLSX(w io.Writer, sum *Summary, attempts []*delivery.Attempt) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	const summarySheet = "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Metric", "Value"},
		{"From", sum.From},
		{"To", sum.To},
		{"Sent", sum.Sent},
		{"Failed", sum.Failed},
		{"Bounced", sum.Bounced},
		{"Opted out", sum.OptedOut},
		{"Completed", sum.Completed},
		{"Active", sum.Active},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	f.SetCellStyle(summarySheet, "A1", "B1", headerStyle)
	f.SetColWidth(summarySheet, "A", "B", 22)

	const attemptsSheet = "Attempts"
	if _, err := f.NewSheet(attemptsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	headers := []any{"Created", "Enrollment", "Sequence", "Step", "Channel", "Recipient", "Outcome", "Provider message", "Error"}
	if err := f.SetSheetRow(attemptsSheet, "A1", &headers); err != nil {
		return err
	}
	f.SetCellStyle(attemptsSheet, "A1", "I1", headerStyle)
	for i, a := range attempts {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			a.CreatedAt, a.EnrollmentID, a.SequenceID, a.StepOrder, string(a.Channel),
			a.Recipient, string(a.Outcome), a.ProviderMessageID, a.Error,
		}
		if err := f.SetSheetRow(attemptsSheet, cell, &row); err != nil {
			return err
		}
	}
	f.SetColWidth(attemptsSheet, "A", "I", 18)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
