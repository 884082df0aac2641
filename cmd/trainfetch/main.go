// Command trainfetch builds labeled training datasets from the weather
// archive: it prompts for the seasons and coordinate, fetches each season's
// window, joins the snow-day calendar, and writes a numbered CSV.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/snowday-predictor/internal/config"
	"github.com/kjstillabower/snowday-predictor/internal/features"
	"github.com/kjstillabower/snowday-predictor/internal/meteo"
	"github.com/kjstillabower/snowday-predictor/internal/trainingdata"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("timezone", zap.Error(err))
	}

	calendar, err := features.LoadSnowDayCalendar(cfg.SnowDayCSVPath)
	if err != nil {
		logger.Fatal("snow day calendar", zap.Error(err))
	}
	builder := features.NewTrainingBuilder(calendar)

	client, err := meteo.NewOpenMeteoClient(
		cfg.WeatherArchiveURL,
		cfg.WeatherForecastURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
		loc,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	in := bufio.NewReader(os.Stdin)

	years, err := promptYears(in)
	if err != nil {
		logger.Fatal("years", zap.Error(err))
	}

	lat, lon, err := promptCoordinate(in, cfg.DefaultLatitude, cfg.DefaultLongitude)
	if err != nil {
		logger.Fatal("coordinate", zap.Error(err))
	}

	fmt.Println("\nPull data from Nov 15 -> Mar 31 of the following year? (Y/n):")
	choice, _ := readLine(in)
	if choice != "" && !strings.EqualFold(choice, "y") {
		fmt.Println("Cancelled.")
		return
	}

	fmt.Println("\nPulling data...")
	ctx := context.Background()

	var rows []features.FeatureRow
	for _, year := range years {
		start := time.Date(year, time.November, 15, 0, 0, 0, 0, loc)
		end := time.Date(year+1, time.March, 31, 0, 0, 0, 0, loc)
		fmt.Printf("Fetching %s -> %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))

		window, err := client.FetchWindow(ctx, meteo.WindowQuery{
			Latitude:  lat,
			Longitude: lon,
			Start:     start,
			End:       end,
		})
		if err != nil {
			logger.Fatal("fetch season", zap.Int("year", year), zap.Error(err))
		}
		rows = append(rows, builder.BuildRange(window, start, end)...)
	}

	fmt.Println("\nData pulled. What is the # of this training dataset?")
	numStr, err := readLine(in)
	if err != nil {
		logger.Fatal("dataset number", zap.Error(err))
	}
	number, err := strconv.Atoi(numStr)
	if err != nil {
		logger.Fatal("dataset number", zap.String("input", numStr), zap.Error(err))
	}

	filename := filepath.Join("data", fmt.Sprintf("training_dataset_%d.csv", number))
	if err := trainingdata.WriteCSV(filename, rows); err != nil {
		logger.Fatal("write dataset", zap.Error(err))
	}
	fmt.Printf("\nDone. Saved %d rows to %s\n", len(rows), filename)
}

func promptYears(in *bufio.Reader) ([]int, error) {
	fmt.Println("Insert year(s) (e.g. 2021, 2022):")
	line, err := readLine(in)
	if err != nil {
		return nil, err
	}

	var years []int
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		year, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("year %q: %w", part, err)
		}
		years = append(years, year)
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("at least one year is required")
	}
	return years, nil
}

func promptCoordinate(in *bufio.Reader, defaultLat, defaultLon float64) (float64, float64, error) {
	fmt.Printf("\nInsert latitude and longitude (default %v, %v):\n", defaultLat, defaultLon)
	line, err := readLine(in)
	if err != nil {
		return 0, 0, err
	}
	if line == "" {
		return defaultLat, defaultLon, nil
	}

	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"lat, lon\", got %q", line)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("latitude %q: %w", parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("longitude %q: %w", parts[1], err)
	}
	return lat, lon, nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
