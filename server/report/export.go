package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/san-kum/helmet-cv/server/models"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	filenameLayout  = "20060102_150405"
)

// utf8BOM lets spreadsheet applications detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvHeader = []string{
	"timestamp",
	"source",
	"total",
	"helmet",
	"no_helmet",
	"safety_rate",
	"sampled_frames",
	"avg_fps",
}

func ExportFilename(now time.Time) string {
	return fmt.Sprintf("helmet_detection_report_%s.csv", now.Format(filenameLayout))
}

// WriteCSV writes one line per row. The frame columns are only filled for
// video rows.
func WriteCSV(w io.Writer, rows []models.RunSummary) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.Timestamp.Format(timestampLayout),
			string(row.Source),
			strconv.Itoa(row.Total),
			strconv.Itoa(row.Helmet),
			strconv.Itoa(row.NoHelmet),
			row.SafetyRateString(),
			"",
			"",
		}
		if row.Source == models.SourceVideo {
			record[6] = strconv.Itoa(row.SampledFrames)
			record[7] = strconv.FormatFloat(row.AvgFPS, 'f', 2, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", row.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
