package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledokol-inc/moodle-load/load"
)

const historyFileName = "test_history.csv"

var historyHeader = []string{"id", "name", "start", "end"}

// FileStore reads test descriptions from <resPath>/tests/<name>.json and appends finished runs to a csv file next to them.
type FileStore struct {
	resPath             string
	TestHistoryFileName string
}

func NewFileStore(resPath string) *FileStore {
	return &FileStore{resPath: resPath, TestHistoryFileName: filepath.Join(resPath, "tests", historyFileName)}
}

var testNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

func checkTestName(name string) error {
	if !testNamePattern.MatchString(name) {
		return &NotFoundError{fmt.Errorf("invalid test name %q", name)}
	}
	return nil
}

func (store *FileStore) testFileName(name string) string {
	return filepath.Join(store.resPath, "tests", name+".json")
}

func (store *FileStore) FindTest(name string) (*load.Test, error) {
	if err := checkTestName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(store.testFileName(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{fmt.Errorf("test %q not found", name)}
		}
		return nil, &InternalError{err}
	}
	return DecodeTest(name, data)
}

func (store *FileStore) FindAllTestsFromCatalog() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(store.resPath, "tests"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &InternalError{err}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

func (store *FileStore) InsertTestInCatalog(name string, description []byte) error {
	if err := checkTestName(name); err != nil {
		return err
	}
	if _, err := DecodeTest(name, description); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(store.testFileName(name)), 0750); err != nil {
		return &InternalError{err}
	}
	if err := os.WriteFile(store.testFileName(name), description, 0640); err != nil {
		return &InternalError{fmt.Errorf("failed to write test %q: %w", name, err)}
	}
	return nil
}

func (store *FileStore) InsertTest(id string, name string, startTime int64, endTime int64) error {
	if err := os.MkdirAll(filepath.Dir(store.TestHistoryFileName), 0750); err != nil {
		return &InternalError{err}
	}
	_, statErr := os.Stat(store.TestHistoryFileName)
	newFile := errors.Is(statErr, os.ErrNotExist)

	historyFile, err := os.OpenFile(store.TestHistoryFileName, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0660)
	if err != nil {
		return &InternalError{errors.New("failed to open the history file")}
	}

	writer := csv.NewWriter(historyFile)
	if newFile {
		_ = writer.Write(historyHeader)
	}
	_ = writer.Write([]string{id, name, strconv.FormatInt(startTime, 10), strconv.FormatInt(endTime, 10)})
	writer.Flush()
	if err = writer.Error(); err != nil {
		historyFile.Close()
		return &InternalError{errors.New("failed to write to the history file")}
	}

	if err = historyFile.Close(); err != nil {
		return &InternalError{errors.New("failed to close the history file")}
	}
	return nil
}

func (store *FileStore) FindTestTimeFromHistory(id string) (time.Time, time.Time, error) {
	records, err := store.getRecordsFromTestFile()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	// a test id may be reused by a later run, the last one wins
	for i := len(records) - 1; i >= 1; i-- {
		if records[i][0] != id {
			continue
		}
		start, end, err := parseTimes(records[i])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return time.Unix(start, 0), time.Unix(end, 0), nil
	}
	return time.Time{}, time.Time{}, &NotFoundError{fmt.Errorf("run %q not found", id)}
}

func (store *FileStore) FindAllTestsFromHistory() ([]TestQuery, error) {
	records, err := store.getRecordsFromTestFile()
	if err != nil {
		return nil, err
	}

	tests := make([]TestQuery, 0, len(records))
	for i := 1; i < len(records); i++ {
		start, end, err := parseTimes(records[i])
		if err != nil {
			return nil, err
		}
		tests = append(tests, newTestQuery(records[i][0], records[i][1], start, end))
	}
	return tests, nil
}

func (store *FileStore) getRecordsFromTestFile() ([][]string, error) {
	historyFile, err := os.Open(store.TestHistoryFileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &InternalError{errors.New("failed to open the history file")}
	}
	defer historyFile.Close()

	csvReader := csv.NewReader(historyFile)
	csvReader.FieldsPerRecord = len(historyHeader)
	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, &InternalError{fmt.Errorf("malformed history file: %w", err)}
	}
	return records, nil
}

func parseTimes(record []string) (int64, int64, error) {
	start, err1 := strconv.ParseInt(record[2], 10, 64)
	end, err2 := strconv.ParseInt(record[3], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, &InternalError{fmt.Errorf("malformed history record for run %q", record[0])}
	}
	return start, end, nil
}
