package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// JournalFile is the training journal name inside a run directory.
const JournalFile = "train.journal"

// [CRC32 4B] [Timestamp 8B] [PayloadSize 4B] [Payload NB]
const journalHeaderSize = 4 + 8 + 4

var ErrCorruptJournal = errors.New("storage: corrupted journal record")

// EpochRecord is one line of training progress.
type EpochRecord struct {
	Estimator string  `msgpack:"estimator"`
	Epoch     int     `msgpack:"epoch"`
	Loss      float64 `msgpack:"loss"`
	Seconds   float64 `msgpack:"seconds"`
}

// Journal is an append-only, checksummed log of EpochRecords.
type Journal struct {
	file *os.File
	mu   sync.Mutex
	buf  *bufio.Writer
}

func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &Journal{file: f, buf: bufio.NewWriter(f)}, nil
}

func (j *Journal) Append(rec EpochRecord) error {
	payload, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	header := make([]byte, journalHeaderSize)
	binary.LittleEndian.PutUint64(header[4:12], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	checksum := crc32.NewIEEE()
	checksum.Write(header[12:])
	checksum.Write(payload)
	binary.LittleEndian.PutUint32(header[0:4], checksum.Sum32())

	if _, err := j.buf.Write(header); err != nil {
		return err
	}
	if _, err := j.buf.Write(payload); err != nil {
		return err
	}
	return j.buf.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.buf.Flush(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// ReadJournal returns every record in path in append order.
func ReadJournal(path string) ([]EpochRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []EpochRecord
	for {
		rec, err := nextRecord(r)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func nextRecord(r *bufio.Reader) (EpochRecord, error) {
	header := make([]byte, journalHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return EpochRecord{}, ErrCorruptJournal
		}
		return EpochRecord{}, err
	}

	stored := binary.LittleEndian.Uint32(header[0:4])
	size := binary.LittleEndian.Uint32(header[12:16])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return EpochRecord{}, ErrCorruptJournal
	}

	checksum := crc32.NewIEEE()
	checksum.Write(header[12:])
	checksum.Write(payload)
	if checksum.Sum32() != stored {
		return EpochRecord{}, ErrCorruptJournal
	}

	var rec EpochRecord
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return EpochRecord{}, err
	}
	return rec, nil
}
