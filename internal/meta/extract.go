package meta

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/isak-aslund/airologV2-ralph/internal/ulog"
)

// minValidEpochUs is 2000-01-01 UTC in epoch microseconds. GPS and info
// timestamps below it are relative offsets, not wall-clock time.
const minValidEpochUs = 946684800 * 1_000_000

// Metadata is what the catalog keeps about a flight beyond the raw file.
// Nil pointers mean the source data was missing or implausible.
type Metadata struct {
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	FlightDate      *time.Time `json:"flight_date,omitempty"`
	SerialNumber    *string    `json:"serial_number,omitempty"`
	DroneModel      *string    `json:"drone_model,omitempty"`
	TakeoffLat      *float64   `json:"takeoff_lat,omitempty"`
	TakeoffLon      *float64   `json:"takeoff_lon,omitempty"`
	FlightModes     []string   `json:"flight_modes"`
	LogIdentifier   *string    `json:"log_identifier,omitempty"`
}

// Parameter is one initial vehicle parameter, for the parameter listing.
type Parameter struct {
	Name  string
	Value ulog.Value
}

// Extract derives catalog metadata from a parsed log. It tolerates a nil log
// (unreadable file): every field then stays absent except the identifier and
// the filename-derived date, which depend only on originalFilename. Each
// field is derived independently, so a missing source never affects its
// neighbors.
func Extract(log *ulog.Log, originalFilename string) Metadata {
	var md Metadata
	md.FlightModes = []string{}
	if id, ok := LogIdentifier(originalFilename); ok {
		md.LogIdentifier = &id
	}

	if log != nil {
		if log.HasLast && log.LastTimestamp >= log.StartTimestamp {
			d := float64(log.LastTimestamp-log.StartTimestamp) / 1e6
			md.DurationSeconds = &d
		}
		if v, ok := log.Param("AIROLIT_SERIAL"); ok {
			s := v.String()
			md.SerialNumber = &s
		}
		if v, ok := log.Param("SYS_AUTOSTART"); ok {
			if id, ok := v.Int(); ok {
				model := DroneModelName(id)
				md.DroneModel = &model
			}
		}
		md.TakeoffLat, md.TakeoffLon = takeoffCoordinates(log)
		md.FlightModes = flightModes(log)
	}

	md.FlightDate = flightDate(log, originalFilename)
	return md
}

// ExtractFile parses the file at path and extracts metadata. A file the
// reader rejects still produces a valid result with the filename-derived
// fields filled in.
func ExtractFile(path, originalFilename string) Metadata {
	log, err := ulog.ParseFile(path)
	if err != nil {
		log = nil
	}
	return Extract(log, originalFilename)
}

// LogIdentifier strips a single trailing ".ulg" extension, case-insensitive.
// The second return is false when no filename was supplied.
func LogIdentifier(filename string) (string, bool) {
	if filename == "" {
		return "", false
	}
	if strings.EqualFold(filepath.Ext(filename), ".ulg") {
		return filename[:len(filename)-len(".ulg")], true
	}
	return filename, true
}

// flightDate tries the time sources in priority order: a plausible GPS UTC
// sample, then the logger's own UTC reference, then the filename.
func flightDate(log *ulog.Log, originalFilename string) *time.Time {
	if log != nil {
		for _, section := range []string{"sensor_gps", "vehicle_gps_position"} {
			sec, ok := log.FirstSection(section)
			if !ok {
				continue
			}
			col, ok := sec.Column("time_utc_usec")
			if !ok {
				continue
			}
			for _, us := range col {
				if us > minValidEpochUs {
					t := time.UnixMicro(int64(us)).UTC()
					return &t
				}
			}
		}
		if v, ok := log.InfoValue("time_ref_utc"); ok {
			if us, ok := v.Int(); ok && us > minValidEpochUs {
				t := time.UnixMicro(us).UTC()
				return &t
			}
		}
	}
	if originalFilename != "" {
		if t, ok := ParseFilenameDate(originalFilename); ok {
			return &t
		}
	}
	return nil
}

// Coordinate sources in priority order. The first two log fixed-point
// degrees times 1e7, the local-position fallback stores plain degrees.
var takeoffSources = []struct {
	section  string
	latField string
	lonField string
	scale    float64
}{
	{"vehicle_gps_position", "lat", "lon", 1e7},
	{"sensor_gps", "lat", "lon", 1e7},
	{"vehicle_local_position", "ref_lat", "ref_lon", 1},
}

func takeoffCoordinates(log *ulog.Log) (*float64, *float64) {
	for _, src := range takeoffSources {
		sec, ok := log.FirstSection(src.section)
		if !ok {
			continue
		}
		lats, ok := sec.Column(src.latField)
		if !ok {
			continue
		}
		lons, ok := sec.Column(src.lonField)
		if !ok {
			continue
		}
		n := len(lats)
		if len(lons) < n {
			n = len(lons)
		}
		for i := 0; i < n; i++ {
			lat, lon := lats[i]/src.scale, lons[i]/src.scale
			if math.IsNaN(lat) || math.IsNaN(lon) {
				continue
			}
			if lat == 0 && lon == 0 {
				continue
			}
			return &lat, &lon
		}
	}
	return nil, nil
}

func flightModes(log *ulog.Log) []string {
	modes := []string{}
	sec, ok := log.FirstSection("vehicle_status")
	if !ok {
		return modes
	}
	col, ok := sec.Column("nav_state")
	if !ok {
		return modes
	}
	seen := make(map[string]struct{})
	for _, v := range col {
		name, ok := FlightModeName(int64(v))
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		modes = append(modes, name)
	}
	sort.Strings(modes)
	return modes
}

// ListParameters returns the initial parameter table sorted by name.
func ListParameters(log *ulog.Log) []Parameter {
	if log == nil {
		return nil
	}
	params := make([]Parameter, 0, len(log.Params))
	for name, value := range log.Params {
		params = append(params, Parameter{Name: name, Value: value})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}
