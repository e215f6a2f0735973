package expiry

import (
	"encoding/binary"
	"errors"
	"time"
)

// Envelope layout:
//
//	[0]     magic
//	[1]     format version
//	[2]     flags
//	[3:11]  deadline, big-endian Unix nanoseconds, 0 = none
//	[11:]   payload
const (
	magic         byte = 0xB7
	formatVersion byte = 1
	HeaderSize         = 11

	flagEncrypted byte = 1 << 0
)

var ErrMalformed = errors.New("expiry: malformed envelope")

// Envelope is the unit a backend stores for one key.
type Envelope struct {
	Record    Record
	Encrypted bool
	Payload   []byte
}

// Marshal encodes e into a fresh buffer.
func Marshal(e Envelope) []byte {
	buf := make([]byte, HeaderSize+len(e.Payload))
	buf[0] = magic
	buf[1] = formatVersion
	if e.Encrypted {
		buf[2] |= flagEncrypted
	}
	putDeadline(buf, e.Record)
	copy(buf[HeaderSize:], e.Payload)
	return buf
}

// Unmarshal decodes blob. The returned payload aliases blob.
func Unmarshal(blob []byte) (Envelope, error) {
	if len(blob) < HeaderSize || blob[0] != magic || blob[1] != formatVersion {
		return Envelope{}, ErrMalformed
	}
	if blob[2]&^flagEncrypted != 0 {
		return Envelope{}, ErrMalformed
	}
	var rec Record
	if ns := int64(binary.BigEndian.Uint64(blob[3:HeaderSize])); ns != 0 {
		rec.Deadline = time.Unix(0, ns)
	}
	return Envelope{
		Record:    rec,
		Encrypted: blob[2]&flagEncrypted != 0,
		Payload:   blob[HeaderSize:],
	}, nil
}

// Touch returns a copy of blob carrying rec as its deadline. The payload
// bytes are copied untouched, so an encrypted value is never re-encrypted.
func Touch(blob []byte, rec Record) ([]byte, error) {
	if _, err := Unmarshal(blob); err != nil {
		return nil, err
	}
	out := append([]byte{}, blob...)
	putDeadline(out, rec)
	return out, nil
}

func putDeadline(buf []byte, rec Record) {
	var ns int64
	if rec.HasDeadline() {
		d := rec.Deadline
		if d.After(MaxDeadline) {
			d = MaxDeadline
		}
		ns = d.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[3:HeaderSize], uint64(ns))
}
