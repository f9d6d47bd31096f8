package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/asdine/storm/v3"

	"github.com/ledokol-inc/moodle-load/load"
)

const (
	catalogBucket = "Tests"
	historyBucket = "History"
)

// BoltStore keeps the catalog and the history in a single bolt file, opened for every call
// so that several processes can share it between runs.
type BoltStore struct {
	dbName string
}

func NewBoltStore(dbName string) *BoltStore {
	return &BoltStore{dbName}
}

type catalogEntry struct {
	Name        string `storm:"id"`
	Description []byte
}

type testHistoryRaw struct {
	ID        int64  `storm:"id,increment"`
	TestId    string `storm:"index"`
	Name      string
	StartTime int64
	EndTime   int64
}

func (store *BoltStore) withDb(action func(db *storm.DB) error) error {
	db, err := storm.Open(store.dbName)
	if err != nil {
		return &InternalError{fmt.Errorf("failed to open the database: %w", err)}
	}
	err = action(db)
	if closeErr := db.Close(); closeErr != nil && err == nil {
		return &InternalError{errors.New("failed to close the database")}
	}
	return err
}

func (store *BoltStore) FindTest(name string) (*load.Test, error) {
	var entry catalogEntry
	err := store.withDb(func(db *storm.DB) error {
		return wrapStormError(db.From(catalogBucket).One("Name", name, &entry), fmt.Sprintf("test %q", name))
	})
	if err != nil {
		return nil, err
	}
	return DecodeTest(name, entry.Description)
}

func (store *BoltStore) FindAllTestsFromCatalog() ([]string, error) {
	var entries []catalogEntry
	err := store.withDb(func(db *storm.DB) error {
		return wrapStormError(ignoreNotFound(db.From(catalogBucket).All(&entries)), "catalog")
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

func (store *BoltStore) InsertTestInCatalog(name string, description []byte) error {
	if _, err := DecodeTest(name, description); err != nil {
		return err
	}
	return store.withDb(func(db *storm.DB) error {
		return wrapStormError(db.From(catalogBucket).Save(&catalogEntry{Name: name, Description: description}), fmt.Sprintf("test %q", name))
	})
}

func (store *BoltStore) InsertTest(id string, name string, startTime int64, endTime int64) error {
	return store.withDb(func(db *storm.DB) error {
		historyRaw := &testHistoryRaw{TestId: id, Name: name, StartTime: startTime, EndTime: endTime}
		return wrapStormError(db.From(historyBucket).Save(historyRaw), fmt.Sprintf("run %q", id))
	})
}

func (store *BoltStore) FindAllTestsFromHistory() ([]TestQuery, error) {
	var historyRaws []testHistoryRaw
	err := store.withDb(func(db *storm.DB) error {
		return wrapStormError(ignoreNotFound(db.From(historyBucket).All(&historyRaws)), "history")
	})
	if err != nil {
		return nil, err
	}

	result := make([]TestQuery, 0, len(historyRaws))
	for _, raw := range historyRaws {
		result = append(result, newTestQuery(raw.TestId, raw.Name, raw.StartTime, raw.EndTime))
	}
	return result, nil
}

func (store *BoltStore) FindTestTimeFromHistory(id string) (time.Time, time.Time, error) {
	var historyRaws []testHistoryRaw
	err := store.withDb(func(db *storm.DB) error {
		return wrapStormError(db.From(historyBucket).Find("TestId", id, &historyRaws), fmt.Sprintf("run %q", id))
	})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last := historyRaws[len(historyRaws)-1]
	return time.Unix(last.StartTime, 0), time.Unix(last.EndTime, 0), nil
}

func wrapStormError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storm.ErrNotFound):
		return &NotFoundError{fmt.Errorf("%s not found", what)}
	default:
		return &InternalError{fmt.Errorf("%s: %w", what, err)}
	}
}

// an empty bucket is not an error for listings
func ignoreNotFound(err error) error {
	if errors.Is(err, storm.ErrNotFound) {
		return nil
	}
	return err
}
