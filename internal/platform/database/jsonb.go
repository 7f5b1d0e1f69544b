package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB carries a typed value in and out of a postgres jsonb column.
type JSONB[T any] struct {
	Data T
}

func (j *JSONB[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		var zero T
		j.Data = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.Data)
	case string:
		return json.Unmarshal([]byte(v), &j.Data)
	default:
		return fmt.Errorf("jsonb scan: unsupported source %T", src)
	}
}

func (j JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}
