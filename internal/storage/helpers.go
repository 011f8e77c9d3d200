package storage

import (
	"database/sql"
	"encoding/json"
	"time"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && *err == nil && rErr != sql.ErrTxDone {
		*err = rErr
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

// encodeModes renders the flight mode list as the JSON text stored in the
// flight_modes column.
func encodeModes(modes []string) string {
	if modes == nil {
		modes = []string{}
	}
	p, err := json.Marshal(modes)
	if err != nil {
		return "[]"
	}
	return string(p)
}

func decodeModes(text string) []string {
	var modes []string
	if err := json.Unmarshal([]byte(text), &modes); err != nil || modes == nil {
		return []string{}
	}
	return modes
}
