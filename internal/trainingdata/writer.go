// Package trainingdata writes labeled feature rows to the CSV layout the
// model trainer consumes.
package trainingdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/kjstillabower/snowday-predictor/internal/features"
)

// WriteCSV writes rows to path: a header of date, snow_day and the feature
// schema in vector order, then one record per row. Columns always follow
// the schema so datasets written on different days stay concatenable.
func WriteCSV(path string, rows []features.FeatureRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := append([]string{"date", "snow_day"}, features.Names()...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write dataset header: %w", err)
	}

	for _, row := range rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Date, strconv.Itoa(row.SnowDay))
		for _, v := range row.Vector() {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write dataset row %s: %w", row.Date, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush dataset file: %w", err)
	}
	return nil
}
