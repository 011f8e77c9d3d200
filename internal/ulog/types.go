package ulog

import "sync"

// DataSection holds every decoded sample of one logged message subscription in
// columnar layout. All columns share a common length; different sections may
// have different lengths and sampling rates.
type DataSection struct {
	Name    string
	MultiID uint8
	MsgID   uint16

	// Fields lists the flattened numeric field names in declaration order.
	Fields  []string
	Columns map[string][]float64
}

// Column returns the samples recorded for the named field.
func (s *DataSection) Column(name string) ([]float64, bool) {
	if s == nil {
		return nil, false
	}
	col, ok := s.Columns[name]
	return col, ok
}

// SampleCount reports how many samples the section holds.
func (s *DataSection) SampleCount() int {
	if s == nil || len(s.Fields) == 0 {
		return 0
	}
	return len(s.Columns[s.Fields[0]])
}

// Log is the structured form of a parsed ULog file. It is immutable once
// returned by the reader; lookups resolve to "absent" instead of failing.
type Log struct {
	Version uint8

	// StartTimestamp is the monotonic microsecond counter recorded in the
	// file header. LastTimestamp is taken from the final data record and is
	// only meaningful when HasLast is set.
	StartTimestamp uint64
	LastTimestamp  uint64
	HasLast        bool

	// Data preserves file order. Multiple sections may share a name when a
	// message is logged with several instances; FirstSection returns the
	// earliest occurrence.
	Data []*DataSection

	Params map[string]Value
	Info   map[string]Value

	// Dropouts counts dropout markers, SkippedRecords the individual records
	// dropped for failing their own consistency checks.
	Dropouts       int
	SkippedRecords int

	indexOnce sync.Once
	index     map[string][]*DataSection
}

func (l *Log) buildIndex() {
	l.index = make(map[string][]*DataSection, len(l.Data))
	for _, s := range l.Data {
		l.index[s.Name] = append(l.index[s.Name], s)
	}
}

// FirstSection returns the first section with the given name.
func (l *Log) FirstSection(name string) (*DataSection, bool) {
	if l == nil {
		return nil, false
	}
	l.indexOnce.Do(l.buildIndex)
	list := l.index[name]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// Sections returns every instance recorded under the given name, in file order.
func (l *Log) Sections(name string) []*DataSection {
	if l == nil {
		return nil
	}
	l.indexOnce.Do(l.buildIndex)
	return l.index[name]
}

// Param looks up an initial parameter by name.
func (l *Log) Param(name string) (Value, bool) {
	if l == nil {
		return Value{}, false
	}
	v, ok := l.Params[name]
	return v, ok
}

// InfoValue looks up a free-form metadata value by key.
func (l *Log) InfoValue(name string) (Value, bool) {
	if l == nil {
		return Value{}, false
	}
	v, ok := l.Info[name]
	return v, ok
}
