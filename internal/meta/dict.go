package meta

import "strconv"

// navStateNames maps PX4 nav_state codes to the mode names shown in the
// catalog. Codes missing from the table are ignored during extraction.
var navStateNames = map[int64]string{
	0:  "Manual",
	1:  "Altitude",
	2:  "Position",
	3:  "Mission",
	4:  "Loiter",
	5:  "Return to Land",
	10: "Acro",
	12: "Descend",
	14: "Offboard",
	15: "Stabilized",
	17: "Takeoff",
	18: "Land",
	19: "Follow Target",
	20: "Precision Land",
	21: "Orbit",
}

// droneModels maps SYS_AUTOSTART airframe IDs to Airolit model codes.
var droneModels = map[int64]string{
	4006: "XLT",
	4010: "S1",
	4030: "CX10",
}

// KnownModels lists the model codes the catalog accepts on upload, sorted.
func KnownModels() []string {
	return []string{"CX10", "S1", "XLT"}
}

// FlightModeName resolves a nav_state code. The second return is false for
// codes outside the table.
func FlightModeName(code int64) (string, bool) {
	name, ok := navStateNames[code]
	return name, ok
}

// DroneModelName resolves an autostart ID to a model code. IDs outside the
// table pass through as their decimal representation.
func DroneModelName(autostart int64) string {
	if name, ok := droneModels[autostart]; ok {
		return name
	}
	return strconv.FormatInt(autostart, 10)
}
