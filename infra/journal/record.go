package journal

import (
	"hash/crc32"
	"time"
)

type RecordType uint8

const (
	RecordQuote RecordType = iota + 1
	RecordExecute
)

func (t RecordType) String() string {
	switch t {
	case RecordQuote:
		return "quote"
	case RecordExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// Record is one journaled command. Data is the encoded command.
type Record struct {
	Type RecordType
	Seq  uint64
	Time time.Time
	Data []byte
}

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
const (
	headerSize = 1 + 8 + 8 + 4
	crcSize    = 4
)

func checksum(frame []byte) uint32 {
	return crc32.ChecksumIEEE(frame)
}
