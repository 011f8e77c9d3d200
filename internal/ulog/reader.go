package ulog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	fileHeaderSize = 16
	msgHeaderSize  = 3

	// Message types from the ULog container format.
	msgFlagBits     = 'B'
	msgFormat       = 'F'
	msgInfo         = 'I'
	msgInfoMulti    = 'M'
	msgParameter    = 'P'
	msgParamDefault = 'Q'
	msgAddLogged    = 'A'
	msgRemoveLogged = 'R'
	msgData         = 'D'
	msgLogString    = 'L'
	msgSync         = 'S'
	msgDropout      = 'O'

	maxNestingDepth = 8
)

var fileMagic = []byte{0x55, 0x4C, 0x6F, 0x67, 0x01, 0x12, 0x35}

// ErrUnreadableLog reports that the container header is invalid or the byte
// stream could not be opened. Anything that goes wrong after a valid header
// degrades per-record instead of surfacing an error.
var ErrUnreadableLog = errors.New("unreadable ulog")

// ParseFile reads and parses the ULog file at path.
func ParseFile(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableLog, err)
	}
	return Parse(data)
}

// Parse decodes a complete ULog byte stream into a Log. It never panics on
// arbitrary input: a bad magic or a header shorter than sixteen bytes yields
// ErrUnreadableLog, while malformed records past the header are skipped
// without aborting the sections that follow them.
func Parse(data []byte) (*Log, error) {
	if len(data) < fileHeaderSize {
		return nil, fmt.Errorf("%w: header truncated at %d bytes", ErrUnreadableLog, len(data))
	}
	if !bytes.Equal(data[:len(fileMagic)], fileMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrUnreadableLog)
	}

	p := &parser{
		data: data,
		log: &Log{
			Version:        data[7],
			StartTimestamp: binary.LittleEndian.Uint64(data[8:fileHeaderSize]),
			Params:         make(map[string]Value),
			Info:           make(map[string]Value),
		},
		formats:       make(map[string]formatDef),
		subscriptions: make(map[uint16]*subscription),
		inDefinitions: true,
	}
	p.run()
	return p.log, nil
}

type fieldDef struct {
	typeName string
	name     string
	arrayLen int // 0 for scalars
}

type formatDef struct {
	name   string
	fields []fieldDef
}

type scalarKind uint8

const (
	scalarInt8 scalarKind = iota
	scalarUint8
	scalarInt16
	scalarUint16
	scalarInt32
	scalarUint32
	scalarInt64
	scalarUint64
	scalarFloat
	scalarDouble
	scalarBool
)

var scalarSizes = map[string]int{
	"int8_t": 1, "uint8_t": 1, "bool": 1, "char": 1,
	"int16_t": 2, "uint16_t": 2,
	"int32_t": 4, "uint32_t": 4, "float": 4,
	"int64_t": 8, "uint64_t": 8, "double": 8,
}

var scalarKinds = map[string]scalarKind{
	"int8_t": scalarInt8, "uint8_t": scalarUint8, "bool": scalarBool,
	"int16_t": scalarInt16, "uint16_t": scalarUint16,
	"int32_t": scalarInt32, "uint32_t": scalarUint32,
	"int64_t": scalarInt64, "uint64_t": scalarUint64,
	"float": scalarFloat, "double": scalarDouble,
}

type column struct {
	name   string
	offset int
	kind   scalarKind
}

type decodePlan struct {
	cols   []column
	stride int
	tsCol  int // index into cols for the "timestamp" field, -1 when missing
}

type subscription struct {
	section *DataSection
	plan    *decodePlan
}

type parser struct {
	data          []byte
	log           *Log
	formats       map[string]formatDef
	subscriptions map[uint16]*subscription
	inDefinitions bool
}

func (p *parser) run() {
	offset := fileHeaderSize
	for offset+msgHeaderSize <= len(p.data) {
		size := int(binary.LittleEndian.Uint16(p.data[offset : offset+2]))
		typ := p.data[offset+2]
		next := offset + msgHeaderSize + size
		if next > len(p.data) {
			// Truncated tail; whatever was decoded so far stays usable.
			break
		}
		payload := p.data[offset+msgHeaderSize : next]
		switch typ {
		case msgFormat:
			p.handleFormat(payload)
		case msgInfo:
			p.handleInfo(payload)
		case msgParameter:
			p.handleParameter(payload)
		case msgAddLogged:
			p.inDefinitions = false
			p.handleSubscription(payload)
		case msgData:
			p.inDefinitions = false
			p.handleData(payload)
		case msgDropout:
			p.log.Dropouts++
		case msgFlagBits, msgInfoMulti, msgParamDefault, msgRemoveLogged,
			msgLogString, msgSync:
			// Recognized but not needed for extraction.
		default:
			// Unknown message type: the length prefix keeps us aligned.
		}
		offset = next
	}
}

// handleFormat parses "message_name:type field;type field;...". A definition
// that fails its own consistency checks is dropped; only sections referencing
// it become unavailable.
func (p *parser) handleFormat(payload []byte) {
	text := string(payload)
	name, fieldsText, ok := strings.Cut(text, ":")
	if !ok || name == "" {
		return
	}
	var fields []fieldDef
	for _, part := range strings.Split(fieldsText, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		typeName, fieldName, ok := strings.Cut(part, " ")
		if !ok || fieldName == "" {
			return
		}
		arrayLen := 0
		if open := strings.IndexByte(typeName, '['); open >= 0 {
			end := strings.IndexByte(typeName, ']')
			if end < open {
				return
			}
			n, err := strconv.Atoi(typeName[open+1 : end])
			if err != nil || n <= 0 {
				return
			}
			arrayLen = n
			typeName = typeName[:open]
		}
		fields = append(fields, fieldDef{typeName: typeName, name: fieldName, arrayLen: arrayLen})
	}
	if len(fields) == 0 {
		return
	}
	p.formats[name] = formatDef{name: name, fields: fields}
}

// splitKey parses the "type name" key used by info and parameter messages.
func splitKey(payload []byte) (typeName, name string, arrayLen int, value []byte, ok bool) {
	if len(payload) < 1 {
		return "", "", 0, nil, false
	}
	keyLen := int(payload[0])
	if 1+keyLen > len(payload) {
		return "", "", 0, nil, false
	}
	key := string(payload[1 : 1+keyLen])
	value = payload[1+keyLen:]
	typeName, name, found := strings.Cut(key, " ")
	if !found || name == "" {
		return "", "", 0, nil, false
	}
	if open := strings.IndexByte(typeName, '['); open >= 0 {
		end := strings.IndexByte(typeName, ']')
		if end < open {
			return "", "", 0, nil, false
		}
		n, err := strconv.Atoi(typeName[open+1 : end])
		if err != nil || n <= 0 {
			return "", "", 0, nil, false
		}
		arrayLen = n
		typeName = typeName[:open]
	}
	return typeName, name, arrayLen, value, true
}

func decodeValue(typeName string, arrayLen int, value []byte) (Value, bool) {
	if typeName == "char" {
		n := arrayLen
		if n == 0 || n > len(value) {
			n = len(value)
		}
		return TextValue(strings.TrimRight(string(value[:n]), "\x00")), true
	}
	if arrayLen > 0 {
		// Non-char arrays carry no meaning for parameters or info values.
		return Value{}, false
	}
	size, ok := scalarSizes[typeName]
	if !ok || len(value) < size {
		return Value{}, false
	}
	kind := scalarKinds[typeName]
	raw := decodeScalar(kind, value)
	switch kind {
	case scalarFloat, scalarDouble:
		return FloatValue(raw), true
	default:
		return IntValue(int64(raw)), true
	}
}

func (p *parser) handleInfo(payload []byte) {
	typeName, name, arrayLen, value, ok := splitKey(payload)
	if !ok {
		return
	}
	v, ok := decodeValue(typeName, arrayLen, value)
	if !ok {
		return
	}
	if _, exists := p.log.Info[name]; !exists {
		p.log.Info[name] = v
	}
}

func (p *parser) handleParameter(payload []byte) {
	// Parameters after the definitions section are in-flight changes; the
	// initial table only captures values present at log start.
	if !p.inDefinitions {
		return
	}
	typeName, name, arrayLen, value, ok := splitKey(payload)
	if !ok || arrayLen > 0 {
		return
	}
	v, ok := decodeValue(typeName, 0, value)
	if !ok {
		return
	}
	p.log.Params[name] = v
}

func (p *parser) handleSubscription(payload []byte) {
	if len(payload) < 3 {
		return
	}
	multiID := payload[0]
	msgID := binary.LittleEndian.Uint16(payload[1:3])
	name := string(payload[3:])
	if name == "" {
		return
	}
	sub := &subscription{}
	plan, err := p.buildPlan(name)
	if err == nil {
		section := &DataSection{
			Name:    name,
			MultiID: multiID,
			MsgID:   msgID,
			Columns: make(map[string][]float64, len(plan.cols)),
		}
		for _, col := range plan.cols {
			section.Fields = append(section.Fields, col.name)
			section.Columns[col.name] = nil
		}
		sub.section = section
		sub.plan = plan
		p.log.Data = append(p.log.Data, section)
	}
	p.subscriptions[msgID] = sub
}

func (p *parser) handleData(payload []byte) {
	if len(payload) < 2 {
		p.log.SkippedRecords++
		return
	}
	msgID := binary.LittleEndian.Uint16(payload[:2])
	sub, ok := p.subscriptions[msgID]
	if !ok || sub.plan == nil {
		p.log.SkippedRecords++
		return
	}
	body := payload[2:]
	if len(body) < sub.plan.stride {
		p.log.SkippedRecords++
		return
	}
	for _, col := range sub.plan.cols {
		v := decodeScalar(col.kind, body[col.offset:])
		sub.section.Columns[col.name] = append(sub.section.Columns[col.name], v)
	}
	if sub.plan.tsCol >= 0 {
		ts := decodeScalar(sub.plan.cols[sub.plan.tsCol].kind, body[sub.plan.cols[sub.plan.tsCol].offset:])
		if ts >= 0 {
			p.log.LastTimestamp = uint64(ts)
			p.log.HasLast = true
		}
	}
}

// buildPlan flattens a format definition into scalar columns. Nested message
// types become dotted names, array elements indexed names. Padding fields
// consume bytes without producing a column.
func (p *parser) buildPlan(formatName string) (*decodePlan, error) {
	plan := &decodePlan{tsCol: -1}
	size, err := p.appendColumns(plan, formatName, "", 0)
	if err != nil {
		return nil, err
	}
	plan.stride = size
	for i, col := range plan.cols {
		if col.name == "timestamp" {
			plan.tsCol = i
			break
		}
	}
	return plan, nil
}

func (p *parser) appendColumns(plan *decodePlan, formatName, prefix string, depth int) (int, error) {
	if depth > maxNestingDepth {
		return 0, fmt.Errorf("format %s: nesting too deep", formatName)
	}
	def, ok := p.formats[formatName]
	if !ok {
		return 0, fmt.Errorf("format %s: undefined", formatName)
	}
	offset := 0
	for _, field := range def.fields {
		count := field.arrayLen
		if count == 0 {
			count = 1
		}
		if field.typeName == "char" {
			offset += count
			continue
		}
		if size, scalar := scalarSizes[field.typeName]; scalar {
			kind := scalarKinds[field.typeName]
			padding := strings.HasPrefix(field.name, "_padding")
			for i := 0; i < count; i++ {
				if !padding {
					name := prefix + field.name
					if field.arrayLen > 0 {
						name = fmt.Sprintf("%s%s[%d]", prefix, field.name, i)
					}
					plan.cols = append(plan.cols, column{name: name, offset: offset, kind: kind})
				}
				offset += size
			}
			continue
		}
		// Nested message type.
		for i := 0; i < count; i++ {
			nestedPrefix := prefix + field.name + "."
			if field.arrayLen > 0 {
				nestedPrefix = fmt.Sprintf("%s%s[%d].", prefix, field.name, i)
			}
			base := len(plan.cols)
			nestedSize, err := p.appendColumns(plan, field.typeName, nestedPrefix, depth+1)
			if err != nil {
				return 0, err
			}
			for j := base; j < len(plan.cols); j++ {
				plan.cols[j].offset += offset
			}
			offset += nestedSize
		}
	}
	return offset, nil
}

func decodeScalar(kind scalarKind, b []byte) float64 {
	switch kind {
	case scalarInt8:
		return float64(int8(b[0]))
	case scalarUint8:
		return float64(b[0])
	case scalarBool:
		if b[0] != 0 {
			return 1
		}
		return 0
	case scalarInt16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case scalarUint16:
		return float64(binary.LittleEndian.Uint16(b))
	case scalarInt32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case scalarUint32:
		return float64(binary.LittleEndian.Uint32(b))
	case scalarInt64:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	case scalarUint64:
		return float64(binary.LittleEndian.Uint64(b))
	case scalarFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case scalarDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}
