// Package remote implements the remote-control channel from spec.md
// section 4.4: a System-V message queue, keyed per effective user id, that
// lets a second invocation of pv send live configuration changes (rate
// limit, format string, size, and similar fields) to a running sibling
// named by pid.
package remote

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/icetee/pv/internal/pvconfig"
)

// projID salts the ftok-equivalent key for the shared per-euid queue, kept
// distinct from the cursor coordinator's shared-memory key (spec.md
// section 6's "Wire/IPC formats" table).
const projID = 'r'

// fieldPresent bits mark which fields of Message carry a real update;
// spec.md section 4.4 notes zero/empty values are ambiguous with "no
// change" for several fields, so presence is tracked explicitly rather
// than inferred from the zero value.
const (
	fieldRateLimit uint32 = 1 << iota
	fieldSize
	fieldFormat
	fieldInterval
	fieldName
	fieldBufferSize
	fieldWidth
	fieldHeight
)

// Message is the fixed-shape record carried over the queue. Format and
// Name are truncated to formatMax/nameMax bytes; a sender with a longer
// format string splits it across sequential messages is out of scope
// (spec.md's Non-goals) — it is simply truncated.
type Message struct {
	Present    uint32
	RateLimit  int64
	Size       int64
	Interval   int64 // nanoseconds
	BufferSize int64
	Width      int64
	Height     int64
	Format     string
	Name       string
}

const formatMax = 200
const nameMax = 64

// Encode marshals m into the fixed-shape wire record used over the
// message queue: a uint32 presence bitmask, six int64 fields, then the
// format and name strings each prefixed by a one-byte length.
func (m Message) Encode() []byte {
	const head = 4 + 8*6
	buf := make([]byte, head+1+formatMax+1+nameMax)
	binary.LittleEndian.PutUint32(buf[0:4], m.Present)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(m.RateLimit))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(m.Size))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(m.Interval))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(m.BufferSize))
	binary.LittleEndian.PutUint64(buf[36:44], uint64(m.Width))
	binary.LittleEndian.PutUint64(buf[44:52], uint64(m.Height))

	format := m.Format
	if len(format) > formatMax {
		format = format[:formatMax]
	}
	buf[head] = byte(len(format))
	copy(buf[head+1:], format)
	off := head + 1 + len(format)

	name := m.Name
	if len(name) > nameMax {
		name = name[:nameMax]
	}
	buf[off] = byte(len(name))
	copy(buf[off+1:], name)
	off += 1 + len(name)

	return buf[:off]
}

var errShortMessage = errors.New("remote: message too short")

// Decode unmarshals a wire record produced by Encode.
func Decode(b []byte) (Message, error) {
	const head = 4 + 8*6
	if len(b) < head+1 {
		return Message{}, errShortMessage
	}
	var m Message
	m.Present = binary.LittleEndian.Uint32(b[0:4])
	m.RateLimit = int64(binary.LittleEndian.Uint64(b[4:12]))
	m.Size = int64(binary.LittleEndian.Uint64(b[12:20]))
	m.Interval = int64(binary.LittleEndian.Uint64(b[20:28]))
	m.BufferSize = int64(binary.LittleEndian.Uint64(b[28:36]))
	m.Width = int64(binary.LittleEndian.Uint64(b[36:44]))
	m.Height = int64(binary.LittleEndian.Uint64(b[44:52]))

	n := int(b[head])
	if len(b) < head+1+n+1 {
		return Message{}, errShortMessage
	}
	m.Format = string(b[head+1 : head+1+n])
	off := head + 1 + n

	nn := int(b[off])
	if len(b) < off+1+nn {
		return Message{}, errShortMessage
	}
	m.Name = string(b[off+1 : off+1+nn])
	return m, nil
}

// FromConfig builds a Message carrying every field the sender set, used by
// the send-side client (cmd/pv's --remote driver path).
func FromConfig(cfg *pvconfig.Config) Message {
	var m Message
	if cfg.RateLimit != 0 {
		m.Present |= fieldRateLimit
		m.RateLimit = cfg.RateLimit
	}
	if cfg.Size != 0 {
		m.Present |= fieldSize
		m.Size = cfg.Size
	}
	if cfg.Format != "" {
		m.Present |= fieldFormat
		m.Format = cfg.Format
	}
	if cfg.Interval != 0 {
		m.Present |= fieldInterval
		m.Interval = int64(cfg.Interval)
	}
	if cfg.BufferSize != 0 {
		m.Present |= fieldBufferSize
		m.BufferSize = int64(cfg.BufferSize)
	}
	if cfg.Width != 0 {
		m.Present |= fieldWidth
		m.Width = int64(cfg.Width)
	}
	if cfg.Height != 0 {
		m.Present |= fieldHeight
		m.Height = int64(cfg.Height)
	}
	if cfg.Name != "" {
		m.Present |= fieldName
		m.Name = cfg.Name
	}
	return m
}

// Apply merges m's present fields into cfg, returning whether the format
// string changed (the caller must reparse it into a new
// internal/display.Formatter). Per spec.md section 4.4, a non-empty name
// field takes a fresh copy of cfg.Name.
func (m Message) Apply(cfg *pvconfig.Config) (formatChanged bool) {
	if m.Present&fieldRateLimit != 0 {
		cfg.RateLimit = m.RateLimit
	}
	if m.Present&fieldSize != 0 {
		cfg.Size = m.Size
	}
	if m.Present&fieldInterval != 0 {
		cfg.Interval = time.Duration(m.Interval)
	}
	if m.Present&fieldBufferSize != 0 {
		cfg.BufferSize = int(m.BufferSize)
	}
	if m.Present&fieldWidth != 0 {
		cfg.Width = int(m.Width)
	}
	if m.Present&fieldHeight != 0 {
		cfg.Height = int(m.Height)
	}
	if m.Present&fieldName != 0 {
		cfg.Name = m.Name
	}
	if m.Present&fieldFormat != 0 {
		cfg.Format = m.Format
		formatChanged = true
	}
	return formatChanged
}
