package backpack

import (
	"os"
	"sync"
	"time"
)

// FileStore is a Store backed by a regular file, one byte per offset,
// standing in for the reference firmware's on-chip EEPROM. Writes sleep
// briefly to model EEPROM programming latency (spec.md §4.1/§5: "the
// Store's own contract stipulates blocking writes"), matching the
// teacher's pattern of talking to a backing fd through plain
// syscall-level Read/Write rather than buffered I/O.
type FileStore struct {
	mu   sync.Mutex
	f    *os.File
	size uint8

	// WriteLatency is slept while holding the lock before a write is
	// considered committed. Zero disables the simulated delay.
	WriteLatency time.Duration
}

// OpenFileStore opens (creating if needed) a file-backed Store of size
// bytes. If the file is shorter than size, it is extended and the new
// bytes are zeroed; if id is non-nil, it is written into the ID prefix.
func OpenFileStore(path string, size uint8, id []byte) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, wrapErr("filestore: open", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, wrapErr("filestore: truncate", err)
	}
	fs := &FileStore{f: f, size: size, WriteLatency: 2 * time.Millisecond}
	if id != nil {
		for i, b := range id {
			if err := fs.WriteByte(uint8(int(IDOffset)+i), b); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return fs, nil
}

func (fs *FileStore) Size() uint8 { return fs.size }

func (fs *FileStore) ReadByte(offset uint8) (byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if offset >= fs.size {
		return 0, ErrOffsetOutOfRange
	}
	var buf [1]byte
	if _, err := fs.f.ReadAt(buf[:], int64(offset)); err != nil {
		return 0, wrapErr("filestore: read", err)
	}
	return buf[0], nil
}

func (fs *FileStore) WriteByte(offset uint8, value byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if offset >= fs.size {
		return ErrOffsetOutOfRange
	}
	if fs.WriteLatency > 0 {
		time.Sleep(fs.WriteLatency)
	}
	if _, err := fs.f.WriteAt([]byte{value}, int64(offset)); err != nil {
		return wrapErr("filestore: write", err)
	}
	return nil
}

// Close releases the backing file descriptor.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.f.Close()
}
