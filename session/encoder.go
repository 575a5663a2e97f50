package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const sessionFormatVersionCurrent = 1

var ErrCorrupt = errors.New("session: corrupt record")

// Encode serializes s. The session ID is the storage key and is not encoded.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeShortString(&buf, "accountID", s.AccountID); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, "role", s.Role); err != nil {
		return nil, err
	}
	buf.Write(s.Fingerprint[:])

	for _, t := range []time.Time{s.CreatedAt, s.LastActivity, s.StepUpVerifiedAt} {
		if err := binary.Write(&buf, binary.BigEndian, unixNano(t)); err != nil {
			return nil, err
		}
	}
	if err := writeShortString(&buf, "stepUpMethod", s.StepUpMethod); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. Any structural problem is
// reported as ErrCorrupt.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != sessionFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrCorrupt, version)
	}

	s := &Session{}
	if s.AccountID, err = readShortString(r); err != nil {
		return nil, ErrCorrupt
	}
	if s.Role, err = readShortString(r); err != nil {
		return nil, ErrCorrupt
	}
	if _, err := io.ReadFull(r, s.Fingerprint[:]); err != nil {
		return nil, ErrCorrupt
	}

	var stamps [3]int64
	for i := range stamps {
		if err := binary.Read(r, binary.BigEndian, &stamps[i]); err != nil {
			return nil, ErrCorrupt
		}
	}
	s.CreatedAt = fromUnixNano(stamps[0])
	s.LastActivity = fromUnixNano(stamps[1])
	s.StepUpVerifiedAt = fromUnixNano(stamps[2])

	if s.StepUpMethod, err = readShortString(r); err != nil {
		return nil, ErrCorrupt
	}
	if r.Len() != 0 {
		return nil, ErrCorrupt
	}
	return s, nil
}

func writeShortString(buf *bytes.Buffer, field, v string) error {
	if len(v) > 255 {
		return fmt.Errorf("session: %s too long", field)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
