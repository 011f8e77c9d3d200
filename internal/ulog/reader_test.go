package ulog

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/isak-aslund/airologV2-ralph/internal/ulog/ulogtest"
)

func TestParseRejectsUnreadableInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short header", data: []byte{0x55, 0x4C, 0x6F}},
		{name: "bad magic", data: bytes.Repeat([]byte{0xFF}, 32)},
		{name: "text file", data: []byte("definitely not a ulog file, just text")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.data); !errors.Is(err, ErrUnreadableLog) {
				t.Fatalf("Parse error = %v, want ErrUnreadableLog", err)
			}
		})
	}
}

func TestParseHeaderAndTimestamps(t *testing.T) {
	b := ulogtest.New(5_000_000)
	b.Format("vehicle_status:uint64_t timestamp;uint8_t nav_state")
	b.Subscribe(1, 0, "vehicle_status")
	b.Data(1, ulogtest.NewRecord().U64(6_000_000).U8(0).Bytes())
	b.Data(1, ulogtest.NewRecord().U64(9_500_000).U8(4).Bytes())

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if log.StartTimestamp != 5_000_000 {
		t.Fatalf("StartTimestamp = %d, want 5000000", log.StartTimestamp)
	}
	if !log.HasLast || log.LastTimestamp != 9_500_000 {
		t.Fatalf("LastTimestamp = %d (has=%v), want 9500000", log.LastTimestamp, log.HasLast)
	}
}

func TestParseNoDataRecords(t *testing.T) {
	b := ulogtest.New(1_000)
	b.ParamInt32("SYS_AUTOSTART", 4010)

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if log.HasLast {
		t.Fatalf("HasLast = true for a log without data records")
	}
}

func TestParseParameters(t *testing.T) {
	b := ulogtest.New(0)
	b.ParamInt32("SYS_AUTOSTART", 4030)
	b.ParamInt32("AIROLIT_SERIAL", 1177)
	b.ParamFloat("BAT_CRIT_THR", 0.07)

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tests := []struct {
		name string
		kind ValueKind
		want string
	}{
		{name: "SYS_AUTOSTART", kind: KindInt, want: "4030"},
		{name: "AIROLIT_SERIAL", kind: KindInt, want: "1177"},
		{name: "BAT_CRIT_THR", kind: KindFloat, want: "0.07"},
	}
	for _, tc := range tests {
		v, ok := log.Param(tc.name)
		if !ok {
			t.Fatalf("parameter %s missing", tc.name)
		}
		if v.Kind != tc.kind {
			t.Fatalf("parameter %s kind = %d, want %d", tc.name, v.Kind, tc.kind)
		}
	}
	if v, _ := log.Param("SYS_AUTOSTART"); v.String() != "4030" {
		t.Fatalf("SYS_AUTOSTART renders %q, want 4030", v.String())
	}
	if _, ok := log.Param("MISSING_PARAM"); ok {
		t.Fatalf("lookup of missing parameter succeeded")
	}
}

func TestParseLateParameterIgnored(t *testing.T) {
	b := ulogtest.New(0)
	b.Format("vehicle_status:uint64_t timestamp;uint8_t nav_state")
	b.ParamInt32("SYS_AUTOSTART", 4010)
	b.Subscribe(1, 0, "vehicle_status")
	b.Data(1, ulogtest.NewRecord().U64(100).U8(0).Bytes())
	// A parameter change mid-flight must not land in the initial table.
	b.ParamInt32("SYS_AUTOSTART", 9999)

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	v, ok := log.Param("SYS_AUTOSTART")
	if !ok {
		t.Fatalf("SYS_AUTOSTART missing")
	}
	if got, _ := v.Int(); got != 4010 {
		t.Fatalf("SYS_AUTOSTART = %d, want initial value 4010", got)
	}
}

func TestParseInfoValues(t *testing.T) {
	b := ulogtest.New(0)
	b.InfoString("sys_name", "PX4")
	b.InfoUint64("time_ref_utc", 1_700_000_000_000_000)

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	v, ok := log.InfoValue("sys_name")
	if !ok || v.String() != "PX4" {
		t.Fatalf("sys_name = %q (ok=%v), want PX4", v.String(), ok)
	}
	ref, ok := log.InfoValue("time_ref_utc")
	if !ok {
		t.Fatalf("time_ref_utc missing")
	}
	if got, _ := ref.Int(); got != 1_700_000_000_000_000 {
		t.Fatalf("time_ref_utc = %d, want 1700000000000000", got)
	}
	if _, ok := log.InfoValue("no_such_key"); ok {
		t.Fatalf("lookup of missing info key succeeded")
	}
}

func TestParseColumnarSections(t *testing.T) {
	b := ulogtest.New(0)
	b.Format("vehicle_gps_position:uint64_t timestamp;int32_t lat;int32_t lon")
	b.Subscribe(3, 0, "vehicle_gps_position")
	b.Data(3, ulogtest.NewRecord().U64(100).I32(377749000).I32(-1224194000).Bytes())
	b.Data(3, ulogtest.NewRecord().U64(200).I32(377749100).I32(-1224194100).Bytes())

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sec, ok := log.FirstSection("vehicle_gps_position")
	if !ok {
		t.Fatalf("section missing")
	}
	if sec.SampleCount() != 2 {
		t.Fatalf("SampleCount = %d, want 2", sec.SampleCount())
	}
	lat, ok := sec.Column("lat")
	if !ok {
		t.Fatalf("lat column missing")
	}
	lon, _ := sec.Column("lon")
	if lat[0] != 377749000 || lon[0] != -1224194000 {
		t.Fatalf("first sample = (%v, %v)", lat[0], lon[0])
	}
	if lat[1] != 377749100 {
		t.Fatalf("second lat = %v, want 377749100", lat[1])
	}
	if _, ok := sec.Column("alt"); ok {
		t.Fatalf("lookup of missing column succeeded")
	}
}

func TestParseMultiInstanceFirstWins(t *testing.T) {
	b := ulogtest.New(0)
	b.Format("sensor_gps:uint64_t timestamp;int32_t lat;int32_t lon")
	b.Subscribe(1, 0, "sensor_gps")
	b.Subscribe(2, 1, "sensor_gps")
	b.Data(1, ulogtest.NewRecord().U64(10).I32(111).I32(222).Bytes())
	b.Data(2, ulogtest.NewRecord().U64(10).I32(333).I32(444).Bytes())

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := len(log.Sections("sensor_gps")); got != 2 {
		t.Fatalf("instances = %d, want 2", got)
	}
	sec, _ := log.FirstSection("sensor_gps")
	if sec.MultiID != 0 {
		t.Fatalf("FirstSection MultiID = %d, want 0", sec.MultiID)
	}
	lat, _ := sec.Column("lat")
	if len(lat) != 1 || lat[0] != 111 {
		t.Fatalf("first instance lat = %v, want [111]", lat)
	}
}

func TestParseNestedAndArrayFields(t *testing.T) {
	b := ulogtest.New(0)
	b.Format("wind_estimate:float vel_n;float vel_e")
	b.Format("estimator_status:uint64_t timestamp;float states[3];char[4] _padding0;wind_estimate wind")
	b.Subscribe(7, 0, "estimator_status")
	rec := ulogtest.NewRecord().U64(50).
		F32(1.5).F32(2.5).F32(3.5).
		U32(0). // padding bytes
		F32(10).F32(20)
	b.Data(7, rec.Bytes())

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sec, ok := log.FirstSection("estimator_status")
	if !ok {
		t.Fatalf("section missing")
	}
	tests := []struct {
		col  string
		want float64
	}{
		{col: "states[0]", want: 1.5},
		{col: "states[2]", want: 3.5},
		{col: "wind.vel_n", want: 10},
		{col: "wind.vel_e", want: 20},
	}
	for _, tc := range tests {
		col, ok := sec.Column(tc.col)
		if !ok {
			t.Fatalf("column %s missing (have %v)", tc.col, sec.Fields)
		}
		if col[0] != tc.want {
			t.Fatalf("column %s = %v, want %v", tc.col, col[0], tc.want)
		}
	}
	if _, ok := sec.Column("_padding0"); ok {
		t.Fatalf("padding surfaced as a column")
	}
}

func TestParseMalformedRecordIsLocalized(t *testing.T) {
	b := ulogtest.New(0)
	b.Format("vehicle_status:uint64_t timestamp;uint8_t nav_state")
	b.Format("vehicle_gps_position:uint64_t timestamp;int32_t lat;int32_t lon")
	b.Subscribe(1, 0, "vehicle_status")
	b.Subscribe(2, 0, "vehicle_gps_position")
	// Record shorter than its declared layout: dropped, parse continues.
	b.Data(1, ulogtest.NewRecord().U64(100).Bytes()[:5])
	// Data for a subscription that was never announced.
	b.Data(9, ulogtest.NewRecord().U64(100).Bytes())
	b.Data(2, ulogtest.NewRecord().U64(300).I32(10).I32(20).Bytes())

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if log.SkippedRecords != 2 {
		t.Fatalf("SkippedRecords = %d, want 2", log.SkippedRecords)
	}
	gps, ok := log.FirstSection("vehicle_gps_position")
	if !ok || gps.SampleCount() != 1 {
		t.Fatalf("gps section unusable after malformed sibling record")
	}
	status, _ := log.FirstSection("vehicle_status")
	if status.SampleCount() != 0 {
		t.Fatalf("truncated record was decoded anyway")
	}
}

func TestParseUnknownFormatSkipped(t *testing.T) {
	b := ulogtest.New(0)
	// Subscription references a format never defined.
	b.Subscribe(4, 0, "mystery_message")
	b.Data(4, ulogtest.NewRecord().U64(1).Bytes())
	b.Format("vehicle_status:uint64_t timestamp;uint8_t nav_state")

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, ok := log.FirstSection("mystery_message"); ok {
		t.Fatalf("section without format definition was produced")
	}
	if log.SkippedRecords != 1 {
		t.Fatalf("SkippedRecords = %d, want 1", log.SkippedRecords)
	}
}

func TestParseTruncatedTailKeepsEarlierSections(t *testing.T) {
	b := ulogtest.New(0)
	b.Format("vehicle_status:uint64_t timestamp;uint8_t nav_state")
	b.Subscribe(1, 0, "vehicle_status")
	b.Data(1, ulogtest.NewRecord().U64(100).U8(3).Bytes())
	data := b.Bytes()
	// Chop the stream mid-message.
	b.Data(1, ulogtest.NewRecord().U64(200).U8(4).Bytes())
	truncated := b.Bytes()[:len(data)+5]

	log, err := Parse(truncated)
	if err != nil {
		t.Fatalf("Parse failed on truncated tail: %v", err)
	}
	sec, ok := log.FirstSection("vehicle_status")
	if !ok || sec.SampleCount() != 1 {
		t.Fatalf("earlier samples lost on truncation")
	}
}

func TestParseDropoutCount(t *testing.T) {
	b := ulogtest.New(0)
	b.Dropout(120)
	b.Dropout(80)

	log, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if log.Dropouts != 2 {
		t.Fatalf("Dropouts = %d, want 2", log.Dropouts)
	}
}

func TestParseArbitraryGarbageNeverPanics(t *testing.T) {
	seed := uint64(0x9E3779B97F4A7C15)
	next := func() byte {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		return byte(seed)
	}
	for size := 0; size < 600; size += 37 {
		data := make([]byte, size)
		for i := range data {
			data[i] = next()
		}
		if _, err := Parse(data); err != nil && !errors.Is(err, ErrUnreadableLog) {
			t.Fatalf("size %d: unexpected error class %v", size, err)
		}
		// Valid header followed by garbage must still parse.
		withHeader := append(ulogtest.New(42).Bytes(), data...)
		log, err := Parse(withHeader)
		if err != nil {
			t.Fatalf("size %d: valid header rejected: %v", size, err)
		}
		if log.StartTimestamp != 42 {
			t.Fatalf("size %d: StartTimestamp = %d", size, log.StartTimestamp)
		}
	}
}

func TestValueConversions(t *testing.T) {
	tests := []struct {
		name    string
		value   Value
		wantInt int64
		intOK   bool
		wantStr string
	}{
		{name: "int", value: IntValue(4030), wantInt: 4030, intOK: true, wantStr: "4030"},
		{name: "integral float", value: FloatValue(4010), wantInt: 4010, intOK: true, wantStr: "4010"},
		{name: "fractional float", value: FloatValue(4010.5), intOK: false, wantStr: "4010.5"},
		{name: "nan float", value: FloatValue(math.NaN()), intOK: false, wantStr: "NaN"},
		{name: "text", value: TextValue("SN-42"), intOK: false, wantStr: "SN-42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.value.Int()
			if ok != tc.intOK {
				t.Fatalf("Int ok = %v, want %v", ok, tc.intOK)
			}
			if ok && got != tc.wantInt {
				t.Fatalf("Int = %d, want %d", got, tc.wantInt)
			}
			if tc.value.String() != tc.wantStr {
				t.Fatalf("String = %q, want %q", tc.value.String(), tc.wantStr)
			}
		})
	}
}
