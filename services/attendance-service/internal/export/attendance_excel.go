package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var attendanceHeader = []string{"Record ID", "Student ID", "Subject", "Status", "Date", "Time In", "Method", "Recorded By"}

// AttendanceWorkbook is a single-sheet spreadsheet of the attendance records of one date.
type AttendanceWorkbook struct {
	File *excelize.File
}

// NewAttendanceWorkbook renders records into a sheet named after date, one row per record
// under a bold header row.
func NewAttendanceWorkbook(date string, records []*model.AttendanceRecord) (*AttendanceWorkbook, error) {
	f := excelize.NewFile()
	sheet := date
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for col, h := range attendanceHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellStr(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(attendanceHeader))
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheet, "A1", lastCol+"1", bold)
	_ = f.AutoFilter(sheet, "A1:"+lastCol+"1", nil)

	for r, rec := range records {
		row := []string{
			rec.ID.Hex(),
			rec.StudentID,
			rec.Subject,
			rec.Status,
			rec.Date,
			rec.TimeIn,
			string(rec.Method),
			rec.RecordedBy,
		}
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellStr(sheet, cell, val); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", lastCol, 18)

	return &AttendanceWorkbook{File: f}, nil
}

// FileName is the attachment name offered to clients.
func (w *AttendanceWorkbook) FileName(date string) string {
	return fmt.Sprintf("attendance_%s.xlsx", date)
}

// WriteTo writes the xlsx file to out and releases the workbook.
func (w *AttendanceWorkbook) WriteTo(out io.Writer) (int64, error) {
	defer w.File.Close()
	return w.File.WriteTo(out)
}
