package pipeline

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Projet-annuel-5A/api-middleware/internal/types"
)

// resultsWorkbook renders the persisted rows as a spreadsheet so reviewers
// can read a transcript without querying the database.
func resultsWorkbook(rows []types.ResultRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []interface{}{"start", "end", "speaker", "text", "interview_id", "user_id"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("workbook header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{r.Start, r.End, r.Speaker, r.Text, r.InterviewID, r.UserID}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("workbook row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("workbook encode: %w", err)
	}
	return buf.Bytes(), nil
}
