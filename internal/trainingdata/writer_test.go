package trainingdata

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/snowday-predictor/internal/features"
	"github.com/kjstillabower/snowday-predictor/internal/models"
)

func fp(v float64) *float64 { return &v }

// buildWeek produces feature rows for one work week of constant weather.
func buildWeek(t *testing.T) []features.FeatureRow {
	t.Helper()
	win := &models.WeatherWindow{}
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC) // a Monday
	end := start.AddDate(0, 0, 6)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for h := 0; h < 24; h++ {
			win.Hourly.Time = append(win.Hourly.Time, d.Add(time.Duration(h)*time.Hour))
			win.Hourly.Temperature = append(win.Hourly.Temperature, fp(-4.5))
			win.Hourly.DewPoint = append(win.Hourly.DewPoint, fp(-7))
			win.Hourly.Precipitation = append(win.Hourly.Precipitation, fp(0.25))
			win.Hourly.Snowfall = append(win.Hourly.Snowfall, fp(0.5))
			win.Hourly.WeatherCode = append(win.Hourly.WeatherCode, fp(71))
			win.Hourly.WindSpeed = append(win.Hourly.WindSpeed, fp(10))
			win.Hourly.WindGusts = append(win.Hourly.WindGusts, fp(20))
		}
		win.Daily.Time = append(win.Daily.Time, d)
		win.Daily.TemperatureMin = append(win.Daily.TemperatureMin, fp(-6))
		win.Daily.WindGustsMax = append(win.Daily.WindGustsMax, fp(25))
		win.Daily.SnowfallSum = append(win.Daily.SnowfallSum, fp(12))
		win.Daily.PrecipitationSum = append(win.Daily.PrecipitationSum, fp(6))
	}
	return features.NewBuilder().BuildRange(win, start, end)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteCSV(t *testing.T) {
	rows := buildWeek(t)
	require.Len(t, rows, 5, "one row per weekday")

	path := filepath.Join(t.TempDir(), "training_dataset_1.csv")
	require.NoError(t, WriteCSV(path, rows))

	records := readCSV(t, path)
	require.Len(t, records, 6, "header plus five rows")

	header := records[0]
	require.Len(t, header, 2+features.Count())
	assert.Equal(t, "date", header[0])
	assert.Equal(t, "snow_day", header[1])
	assert.Equal(t, features.Names(), header[2:])

	for i, rec := range records[1:] {
		assert.Equal(t, rows[i].Date, rec[0])
		assert.Equal(t, "-1", rec[1], "unlabeled rows keep their sentinel label")
		assert.Len(t, rec, len(header))
	}
}

func TestWriteCSVFormatsValuesCompactly(t *testing.T) {
	rows := buildWeek(t)
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, WriteCSV(path, rows))

	records := readCSV(t, path)
	header := records[0]
	col := -1
	for i, name := range header {
		if name == "snowfall_overnight" {
			col = i
			break
		}
	}
	require.GreaterOrEqual(t, col, 2)

	// 8 overnight hours at 0.5 cm/h: written as "4", not "4.000000".
	assert.Equal(t, "4", records[1][col])
}

func TestWriteCSVEmptyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteCSV(path, nil))

	records := readCSV(t, path)
	require.Len(t, records, 1, "header only")
	assert.Equal(t, "date", records[0][0])
}

func TestWriteCSVCreateFailure(t *testing.T) {
	err := WriteCSV(filepath.Join(t.TempDir(), "missing", "out.csv"), nil)
	assert.Error(t, err)
}
