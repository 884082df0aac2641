package counter

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// CSVStore persists counter state as a two-line CSV: a header row and one
// value,date,hour record. Writes go through a temp file and rename so a
// crash mid-write never leaves a torn file.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store backed by the given file path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Load reads the persisted state. A missing file is not an error; the
// second return reports whether state was found.
func (s *CSVStore) Load() (State, bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("open counter file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return State{}, false, fmt.Errorf("read counter file: %w", err)
	}
	if len(records) < 2 || len(records[1]) < 3 {
		return State{}, false, fmt.Errorf("counter file %s is malformed", s.path)
	}

	value, err := strconv.Atoi(records[1][0])
	if err != nil {
		return State{}, false, fmt.Errorf("counter value %q: %w", records[1][0], err)
	}
	hour, err := strconv.Atoi(records[1][2])
	if err != nil {
		return State{}, false, fmt.Errorf("counter hour %q: %w", records[1][2], err)
	}

	return State{Value: value, Date: records[1][1], Hour: hour}, true, nil
}

// Save writes the state atomically.
func (s *CSVStore) Save(state State) error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create counter temp file: %w", err)
	}

	w := csv.NewWriter(f)
	records := [][]string{
		{"value", "date", "hour"},
		{strconv.Itoa(state.Value), state.Date, strconv.Itoa(state.Hour)},
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write counter temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close counter temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace counter file: %w", err)
	}
	return nil
}
