package utils

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NullTime is sql.NullTime with JSON support, used for columns like
// scheduled cancellation dates that are unset for most rows.
type NullTime struct {
	sql.NullTime
}

func (nt *NullTime) Scan(value interface{}) error {
	return nt.NullTime.Scan(value)
}

func (nt NullTime) Value() (driver.Value, error) {
	return nt.NullTime.Value()
}

func (nt NullTime) MarshalJSON() ([]byte, error) {
	if !nt.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(nt.Time.Format(time.RFC3339))
}

func (nt *NullTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		nt.Valid = false
		return nil
	}

	var timestampStr string
	if err := json.Unmarshal(data, &timestampStr); err != nil {
		return err
	}

	if timestampStr == "" {
		nt.Valid = false
		return nil
	}

	t, err := time.Parse(time.RFC3339, timestampStr)
	if err != nil {
		return fmt.Errorf("unable to parse timestamp string: %s", timestampStr)
	}

	nt.Time = t
	nt.Valid = true
	return nil
}

func NewNullTime(t time.Time) NullTime {
	return NullTime{
		NullTime: sql.NullTime{
			Time:  t,
			Valid: true,
		},
	}
}

func NowNullTime() NullTime {
	return NewNullTime(time.Now())
}
