package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/san-kum/helmet-cv/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

func summary(id string, source models.SourceType, helmet, noHelmet int) models.RunSummary {
	return models.NewRunSummary(id, source, id+".bin", baseTime, helmet, noHelmet)
}

func TestAppendThenAll(t *testing.T) {
	table := NewTable()
	for i := 0; i < 5; i++ {
		table.Append(summary(fmt.Sprintf("run-%d", i), models.SourceImage, i, 1))
	}

	rows := table.All()
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("run-%d", i), row.ID)
	}

	last := summary("last", models.SourceVideo, 3, 3)
	table.Append(last)
	rows = table.All()
	assert.Equal(t, last, rows[len(rows)-1])
}

func TestAllIsSnapshot(t *testing.T) {
	table := NewTable()
	table.Append(summary("a", models.SourceImage, 1, 0))

	rows := table.All()
	rows[0].Helmet = 99

	assert.Equal(t, 1, table.All()[0].Helmet)
}

func TestClear(t *testing.T) {
	table := NewTable()
	for i := 0; i < 3; i++ {
		table.Append(summary(fmt.Sprintf("r%d", i), models.SourceImage, 1, 1))
	}
	require.Equal(t, 3, table.Len())

	table.Clear()
	assert.Empty(t, table.All())

	table.Clear()
	assert.Equal(t, 0, table.Len())
}

func TestConcurrentAppend(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table.Append(summary(fmt.Sprintf("c%d", i), models.SourceImage, 1, 0))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, table.Len())
}

func TestTotals(t *testing.T) {
	table := NewTable()
	table.Append(summary("a", models.SourceImage, 2, 1))
	table.Append(summary("b", models.SourceVideo, 1, 0))

	totals := table.Totals()
	assert.Equal(t, 2, totals.Runs)
	assert.Equal(t, 4, totals.Total)
	assert.Equal(t, 3, totals.Helmet)
	assert.InDelta(t, 75.0, totals.SafetyRate, 1e-9)
}

func TestWriteCSV(t *testing.T) {
	video := summary("v", models.SourceVideo, 10, 5)
	video.SampledFrames = 20
	video.AvgFPS = 12.345

	var buf bytes.Buffer
	err := WriteCSV(&buf, []models.RunSummary{summary("i", models.SourceImage, 2, 1), video})
	require.NoError(t, err)

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"2026-10-19 14:30:00", "image", "3", "2", "1", "66.7%", "", ""}, records[1])
	assert.Equal(t, []string{"2026-10-19 14:30:00", "video", "15", "10", "5", "66.67%", "20", "12.35"}, records[2])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "helmet_detection_report_20261019_143000.csv", ExportFilename(baseTime))
}
