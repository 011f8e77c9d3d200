package storage

import "time"

// FlightLog is one catalog record. Optional columns map to nil pointers.
type FlightLog struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Pilot           string       `json:"pilot"`
	SerialNumber    *string      `json:"serial_number"`
	LogIdentifier   *string      `json:"log_identifier"`
	DroneModel      string       `json:"drone_model"`
	DurationSeconds *float64     `json:"duration_seconds"`
	FilePath        string       `json:"file_path"`
	Comment         *string      `json:"comment"`
	TakeoffLat      *float64     `json:"takeoff_lat"`
	TakeoffLon      *float64     `json:"takeoff_lon"`
	FlightDate      *time.Time   `json:"flight_date"`
	FlightModes     []string     `json:"flight_modes"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Tags            []Tag        `json:"tags"`
	Attachments     []Attachment `json:"attachments"`
}

// Tag names are stored lowercase and unique.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Attachment is an arbitrary file hanging off a flight log.
type Attachment struct {
	ID          string    `json:"id"`
	FlightLogID string    `json:"-"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"-"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListFilter narrows and pages a flight log listing. Zero values mean
// "no constraint"; Page and PerPage must be set by the caller.
type ListFilter struct {
	Search      string
	DroneModels []string
	Pilot       string
	Tags        []string
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PerPage     int
}

// Page is one page of a listing plus the pagination envelope.
type Page struct {
	Items      []*FlightLog `json:"items"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalPages int          `json:"total_pages"`
}

// FlightLogUpdate carries the editable fields of a record. Nil means
// "leave unchanged".
type FlightLogUpdate struct {
	Title      *string
	Pilot      *string
	DroneModel *string
	Comment    *string
	Tags       []string
	HasTags    bool
}

// Stats aggregates the whole catalog.
type Stats struct {
	TotalFlights int                `json:"total_flights"`
	TotalHours   float64            `json:"total_hours"`
	HoursByModel map[string]float64 `json:"hours_by_model"`
}

// Duplicate is the result of one (serial, identifier) existence probe.
type Duplicate struct {
	SerialNumber  string  `json:"serial_number"`
	LogIdentifier string  `json:"log_identifier"`
	Exists        bool    `json:"exists"`
	ExistingLogID *string `json:"existing_log_id,omitempty"`
}
