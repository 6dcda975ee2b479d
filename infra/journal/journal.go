// Package journal is the command write-ahead log. Every quote and
// execute a session accepts is framed, checksummed and appended to
// size- or age-rotated segment files before it reaches the book.
package journal

import (
	"encoding/binary"
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"mmsim/infra/memory"
)

var frames = memory.NewBufferPool(256, 1<<20)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryWrite fsyncs after each Append.
	SyncEveryWrite bool
}

type Journal struct {
	cfg        Config
	current    *segment
	segIndex   int
	lastRotate time.Time
	lastSeq    uint64
	torn       int64
}

// Open starts a fresh segment after the highest existing one. A partial
// record left at the end of the last segment by a crash is cut off first;
// its sequence is never counted.
func Open(cfg Config) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, errors.New("journal dir is required")
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 << 20
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	files, err := segmentFiles(cfg.Dir)
	if err != nil {
		return nil, err
	}
	j := &Journal{cfg: cfg}
	for i, path := range files {
		seq, valid, size, err := scanSegment(path)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", path)
		}
		if valid < size && i == len(files)-1 {
			if err := os.Truncate(path, valid); err != nil {
				return nil, errors.Wrapf(err, "cut torn tail of %s", path)
			}
			j.torn = size - valid
		}
		if seq > j.lastSeq {
			j.lastSeq = seq
		}
		if idx := segmentIndex(path); idx >= j.segIndex {
			j.segIndex = idx + 1
		}
	}

	seg, err := openSegment(cfg.Dir, j.segIndex)
	if err != nil {
		return nil, err
	}
	j.current = seg
	j.lastRotate = time.Now()
	return j, nil
}

// LastSeq is the highest sequence written to the journal so far.
func (j *Journal) LastSeq() uint64 { return j.lastSeq }

// TornBytes is how many bytes of a partial record Open cut off.
func (j *Journal) TornBytes() int64 { return j.torn }

// Append writes r. Sequences must strictly increase.
func (j *Journal) Append(r *Record) error {
	if r.Seq <= j.lastSeq {
		return errors.Wrapf(ErrNonMonotonic, "append seq %d after %d", r.Seq, j.lastSeq)
	}
	payloadLen := uint32(len(r.Data))

	bp := frames.Get()
	defer frames.Put(bp)
	n := headerSize + int(payloadLen) + crcSize
	buf := slices.Grow((*bp)[:0], n)[:n]
	*bp = buf
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	var ts int64
	if !r.Time.IsZero() {
		ts = r.Time.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[9:17], uint64(ts))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := checksum(buf[:headerSize+int(payloadLen)])
	binary.BigEndian.PutUint32(buf[headerSize+int(payloadLen):], crc)

	if err := j.current.append(buf); err != nil {
		return errors.Wrapf(err, "append seq %d", r.Seq)
	}
	j.lastSeq = r.Seq

	if j.cfg.SyncEveryWrite {
		if err := j.current.sync(); err != nil {
			return err
		}
	}
	if j.shouldRotate() {
		return j.rotate()
	}
	return nil
}

func (j *Journal) shouldRotate() bool {
	if j.current.offset >= j.cfg.SegmentSize {
		return true
	}
	return j.cfg.SegmentDuration > 0 && time.Since(j.lastRotate) >= j.cfg.SegmentDuration
}

func (j *Journal) rotate() error {
	if err := j.current.sync(); err != nil {
		return err
	}
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.cfg.Dir, j.segIndex)
	if err != nil {
		return err
	}
	j.current = seg
	j.lastRotate = time.Now()
	return nil
}

func (j *Journal) Sync() error {
	return j.current.sync()
}

func (j *Journal) Close() error {
	if err := j.current.sync(); err != nil {
		_ = j.current.close()
		return err
	}
	return j.current.close()
}

// TruncateBefore removes closed segments whose records are all at or
// below seq. The active segment is never removed.
func (j *Journal) TruncateBefore(seq uint64) error {
	files, err := segmentFiles(j.cfg.Dir)
	if err != nil {
		return err
	}

	for _, path := range files {
		if segmentIndex(path) == j.segIndex {
			continue
		}
		maxSeq, _, _, err := scanSegment(path)
		if err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return err
			}
		}
	}
	return nil
}
