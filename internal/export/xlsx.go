package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"studiobook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	clientsSheet    = "Clients"
	attendanceSheet = "Attendance"
)

var headerStyle = &excelize.Style{
	Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	Font:      &excelize.Font{Bold: true},
	Alignment: &excelize.Alignment{Horizontal: "center"},
}

// ClientsXLSX writes the admin client listing as a workbook.
func ClientsXLSX(w io.Writer, clients []*models.ClientSummary, generated time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := newSheet(f, clientsSheet); err != nil {
		return err
	}
	_ = f.SetCellValue(clientsSheet, "A1", "Generated "+generated.Format("2006-01-02 15:04"))

	header := []interface{}{"ID", "Name", "Email", "Phone", "Active packages", "Classes available"}
	if err := writeHeader(f, clientsSheet, 2, header); err != nil {
		return err
	}
	for i, c := range clients {
		row := []interface{}{c.ID, c.DisplayName, c.Email, c.Phone, c.ActivePackages, c.ClassesAvailable}
		if err := writeRow(f, clientsSheet, i+3, row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(clientsSheet, "B", "D", 28)
	_ = f.SetColWidth(clientsSheet, "E", "F", 18)
	return f.Write(w)
}

// AttendanceXLSX writes one class's attendance sheet.
func AttendanceXLSX(w io.Writer, sheet *models.AttendanceSheet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := newSheet(f, attendanceSheet); err != nil {
		return err
	}
	title := fmt.Sprintf("Class %s %s-%s", sheet.Slot.Date, sheet.Slot.StartTime, sheet.Slot.EndTime)
	if sheet.Slot.InstructorName != "" {
		title += " with " + sheet.Slot.InstructorName
	}
	_ = f.SetCellValue(attendanceSheet, "A1", title)
	_ = f.MergeCell(attendanceSheet, "A1", "D1")

	if err := writeHeader(f, attendanceSheet, 2, []interface{}{"Reservation", "Client", "Phone", "Attended"}); err != nil {
		return err
	}
	for i, r := range sheet.Rows {
		row := []interface{}{r.ReservationID, r.ClientName, r.ClientPhone, attendedLabel(r.Attended)}
		if err := writeRow(f, attendanceSheet, i+3, row); err != nil {
			return err
		}
	}
	summary, _ := excelize.CoordinatesToCellName(1, len(sheet.Rows)+4)
	_ = f.SetCellValue(attendanceSheet, summary, fmt.Sprintf("Marked %d of %d", sheet.Marked, sheet.Total))

	_ = f.SetColWidth(attendanceSheet, "B", "C", 28)
	return f.Write(w)
}

// SaveCopy stores data under dir and returns the file path.
func SaveCopy(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func newSheet(f *excelize.File, name string) error {
	index, err := f.NewSheet(name)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	return f.DeleteSheet("Sheet1")
}

func writeHeader(f *excelize.File, sheet string, row int, values []interface{}) error {
	if err := writeRow(f, sheet, row, values); err != nil {
		return err
	}
	style, err := f.NewStyle(headerStyle)
	if err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(values), row)
	return f.SetCellStyle(sheet, first, last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func attendedLabel(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "Present"
	default:
		return "Absent"
	}
}
