package export

import (
	"fmt"
	"io"

	"studiobook/internal/models"

	"github.com/phpdave11/gofpdf"
)

// RosterPDF prints the confirmed attendees of a class for the instructor.
func RosterPDF(w io.Writer, roster *models.SlotRoster) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Class %s %s-%s", roster.Slot.Date, roster.Slot.StartTime, roster.Slot.EndTime)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	if roster.Slot.InstructorName != "" {
		pdf.Cell(0, 8, tr("Instructor: "+roster.Slot.InstructorName))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Booked: %d/%d", len(roster.Reservations), roster.Slot.CapacityMax))
	pdf.Ln(12)

	widths := []float64{12, 70, 45, 45}
	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(221, 235, 247)
	for i, h := range []string{"#", "Client", "Phone", "Signature"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 11)
	for i, r := range roster.Reservations {
		pdf.CellFormat(widths[0], 8, fmt.Sprint(i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 8, tr(r.ClientName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 8, tr(r.ClientPhone), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[3], 8, "", "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
