// Package ulogtest assembles deterministic ULog byte streams for tests.
package ulogtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
)

// Builder accumulates a ULog file: the sixteen byte header followed by
// length-prefixed messages in the order they were appended.
type Builder struct {
	buf bytes.Buffer
}

// New starts a file with a valid magic, version 1 and the given start
// timestamp in microseconds.
func New(startTimestampUs uint64) *Builder {
	b := &Builder{}
	header := make([]byte, 16)
	copy(header, []byte{0x55, 0x4C, 0x6F, 0x67, 0x01, 0x12, 0x35})
	header[7] = 1
	binary.LittleEndian.PutUint64(header[8:], startTimestampUs)
	b.buf.Write(header)
	return b
}

// Message appends a raw message with the given type byte.
func (b *Builder) Message(typ byte, payload []byte) *Builder {
	hdr := make([]byte, 3)
	binary.LittleEndian.PutUint16(hdr[:2], uint16(len(payload)))
	hdr[2] = typ
	b.buf.Write(hdr)
	b.buf.Write(payload)
	return b
}

// Format appends a format definition, e.g.
// "vehicle_gps_position:uint64_t timestamp;int32_t lat;int32_t lon".
func (b *Builder) Format(def string) *Builder {
	return b.Message('F', []byte(def))
}

func keyValue(key string, value []byte) []byte {
	payload := make([]byte, 0, 1+len(key)+len(value))
	payload = append(payload, byte(len(key)))
	payload = append(payload, key...)
	payload = append(payload, value...)
	return payload
}

// InfoString appends a char-array info message.
func (b *Builder) InfoString(name, value string) *Builder {
	key := "char[" + strconv.Itoa(len(value)) + "] " + name
	return b.Message('I', keyValue(key, []byte(value)))
}

// InfoUint64 appends a uint64 info message, e.g. time_ref_utc.
func (b *Builder) InfoUint64(name string, v uint64) *Builder {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, v)
	return b.Message('I', keyValue("uint64_t "+name, value))
}

// ParamInt32 appends an initial int32 parameter.
func (b *Builder) ParamInt32(name string, v int32) *Builder {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, uint32(v))
	return b.Message('P', keyValue("int32_t "+name, value))
}

// ParamFloat appends an initial float parameter.
func (b *Builder) ParamFloat(name string, v float32) *Builder {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, math.Float32bits(v))
	return b.Message('P', keyValue("float "+name, value))
}

// Subscribe appends an add-logged-message subscription.
func (b *Builder) Subscribe(msgID uint16, multiID uint8, name string) *Builder {
	payload := make([]byte, 0, 3+len(name))
	payload = append(payload, multiID)
	payload = append(payload, byte(msgID), byte(msgID>>8))
	payload = append(payload, name...)
	return b.Message('A', payload)
}

// Data appends one data record for the subscription msgID.
func (b *Builder) Data(msgID uint16, body []byte) *Builder {
	payload := make([]byte, 0, 2+len(body))
	payload = append(payload, byte(msgID), byte(msgID>>8))
	payload = append(payload, body...)
	return b.Message('D', payload)
}

// Dropout appends a dropout marker.
func (b *Builder) Dropout(durationMs uint16) *Builder {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, durationMs)
	return b.Message('O', payload)
}

// Bytes returns the assembled file.
func (b *Builder) Bytes() []byte {
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// Record builds a binary record body field by field, little-endian.
type Record struct {
	buf []byte
}

func NewRecord() *Record { return &Record{} }

func (r *Record) U8(v uint8) *Record  { r.buf = append(r.buf, v); return r }
func (r *Record) I32(v int32) *Record { return r.U32(uint32(v)) }

func (r *Record) U16(v uint16) *Record {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	r.buf = append(r.buf, b[:]...)
	return r
}

func (r *Record) U32(v uint32) *Record {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	r.buf = append(r.buf, b[:]...)
	return r
}

func (r *Record) U64(v uint64) *Record {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	r.buf = append(r.buf, b[:]...)
	return r
}

func (r *Record) F32(v float32) *Record { return r.U32(math.Float32bits(v)) }
func (r *Record) F64(v float64) *Record { return r.U64(math.Float64bits(v)) }

func (r *Record) Bytes() []byte { return r.buf }
