package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledokol-inc/moodle-load/load"
)

// Store keeps the catalog of test descriptions and the history of finished runs.
type Store interface {
	FindTest(name string) (*load.Test, error)
	FindAllTestsFromCatalog() ([]string, error)
	InsertTestInCatalog(name string, description []byte) error
	InsertTest(id string, name string, startTime int64, endTime int64) error
	FindTestTimeFromHistory(id string) (time.Time, time.Time, error)
	FindAllTestsFromHistory() ([]TestQuery, error)
}

type InternalError struct {
	err error
}

func (internalErr *InternalError) Error() string {
	return internalErr.err.Error()
}

func (internalErr *InternalError) Unwrap() error {
	return internalErr.err
}

type NotFoundError struct {
	err error
}

func (notFoundErr *NotFoundError) Error() string {
	return notFoundErr.err.Error()
}

func (notFoundErr *NotFoundError) Unwrap() error {
	return notFoundErr.err
}

func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

type TestQuery struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func newTestQuery(id string, name string, startTime int64, endTime int64) TestQuery {
	return TestQuery{
		Id:        id,
		Name:      name,
		StartTime: time.Unix(startTime, 0).Format(load.TimeFormat),
		EndTime:   time.Unix(endTime, 0).Format(load.TimeFormat),
	}
}

// DecodeTest parses a json test description, the catalog name wins over the name inside it.
func DecodeTest(name string, description []byte) (*load.Test, error) {
	test := new(load.Test)
	if err := json.Unmarshal(description, test); err != nil {
		return nil, &InternalError{fmt.Errorf("invalid description of test %q: %w", name, err)}
	}
	if name != "" {
		test.Name = name
	}
	return test, nil
}
