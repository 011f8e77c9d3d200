package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/isak-aslund/airologV2-ralph/internal/storage"
)

// WriteFlightPDF renders a one-page flight report for the catalog record.
// When downloadURL is non-empty a QR code linking to the raw log is placed
// below the metadata table.
func WriteFlightPDF(w io.Writer, rec *storage.FlightLog, downloadURL string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Flight Report", false)
	pdf.SetAuthor("airologd", false)
	pdf.SetCreator("airologd", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, rec.Title)
	addMetadataSection(pdf, rec)
	addFlightModesSection(pdf, rec.FlightModes)
	addCommentSection(pdf, rec.Comment)
	if downloadURL != "" {
		if err := addDownloadQR(pdf, downloadURL); err != nil {
			return err
		}
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addMetadataSection(pdf *gofpdf.Fpdf, rec *storage.FlightLog) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Flight")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Pilot", value: rec.Pilot},
		{label: "Drone Model", value: rec.DroneModel},
		{label: "Serial Number", value: stringOr(rec.SerialNumber, "-")},
		{label: "Flight Date", value: dateLabel(rec.FlightDate)},
		{label: "Duration", value: durationLabel(rec.DurationSeconds)},
		{label: "Takeoff", value: coordinatesLabel(rec.TakeoffLat, rec.TakeoffLon)},
		{label: "Tags", value: tagsLabel(rec.Tags)},
		{label: "Log ID", value: rec.ID},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFlightModesSection(pdf *gofpdf.Fpdf, modes []string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Flight Modes")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	if len(modes) == 0 {
		pdf.MultiCell(0, 6, "No flight modes recorded.", "", "L", false)
	} else {
		pdf.MultiCell(0, 6, strings.Join(modes, ", "), "", "L", false)
	}
	pdf.Ln(4)
}

func addCommentSection(pdf *gofpdf.Fpdf, comment *string) {
	if comment == nil || strings.TrimSpace(*comment) == "" {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Comment")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, *comment, "", "L", false)
	pdf.Ln(4)
}

func addDownloadQR(pdf *gofpdf.Fpdf, url string) error {
	png, err := DownloadLinkQR(url, 256)
	if err != nil {
		return err
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Download")
	pdf.Ln(9)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("download-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("download-qr", pdf.GetX(), pdf.GetY(), 35, 35, false, opts, 0, "")
	pdf.SetXY(pdf.GetX(), pdf.GetY()+38)

	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 4, url, "", "L", false)
	return nil
}

func stringOr(val *string, fallback string) string {
	if val == nil || strings.TrimSpace(*val) == "" {
		return fallback
	}
	return *val
}

func dateLabel(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func durationLabel(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	d := time.Duration(*seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

func coordinatesLabel(lat, lon *float64) string {
	if lat == nil || lon == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f, %.6f", *lat, *lon)
}

func tagsLabel(tags []storage.Tag) string {
	if len(tags) == 0 {
		return "-"
	}
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return strings.Join(names, ", ")
}
