// Package persistence serializes a node's store to a versioned binary
// snapshot file and restores it at startup.
//
// The on-disk format is:
//
//	magic "QSNP" | version byte | record count (u32 BE)
//	per record: kind byte | key | expiry (unix-milli, i64 BE) | payload
//	trailing CRC32 (IEEE, u32 BE) over everything before it
//
// Strings are length-prefixed (u32 BE). The file is replaced atomically on
// every save (write to a temp path, fsync, rename), so a crash mid-write
// never corrupts the previously-good snapshot.
package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dreamware/quillstore/internal/store"
)

var magic = []byte("QSNP")

// formatVersion is bumped whenever the record layout changes; Load rejects
// versions it doesn't understand.
const formatVersion byte = 1

// CorruptSnapshotError reports a snapshot file that failed header or
// checksum validation. Fatal at startup: partial data is never loaded.
type CorruptSnapshotError struct {
	Path   string
	Reason string
}

func (e *CorruptSnapshotError) Error() string {
	return fmt.Sprintf("corrupt snapshot %s: %s", e.Path, e.Reason)
}

// FileName encodes the node's owned slot range and port into the snapshot
// file name, so operators can tell node dumps apart at a glance.
func FileName(slotStart, slotEnd, port int) string {
	return fmt.Sprintf("snapshot-%d-%d-%d.qsnp", slotStart, slotEnd, port)
}

// Manager owns one node's snapshot file: periodic saves plus the single
// restore at startup.
type Manager struct {
	path  string
	store *store.Store
}

// NewManager creates a manager writing under dir. The directory is created
// if absent.
func NewManager(dir string, slotStart, slotEnd, port int, st *store.Store) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Manager{
		path:  filepath.Join(dir, FileName(slotStart, slotEnd, port)),
		store: st,
	}, nil
}

// Path returns the snapshot file's full path.
func (m *Manager) Path() string { return m.path }

// Save serializes a point-in-time view of the store and atomically
// replaces the snapshot file. Concurrent commands are only blocked while
// the view is copied, not for the full serialization.
func (m *Manager) Save() error {
	view := m.store.SnapshotView()

	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(formatVersion)
	writeU32(&buf, uint32(len(view)))
	for _, e := range view {
		if err := writeEntry(&buf, e); err != nil {
			return err
		}
	}
	writeU32(&buf, crc32.ChecksumIEEE(buf.Bytes()))

	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file, validates it and restores the store.
// A missing file is a cold start, not an error. A file that fails header
// or checksum validation returns *CorruptSnapshotError.
func (m *Manager) Load() error {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	if len(raw) < len(magic)+1+4+4 {
		return &CorruptSnapshotError{Path: m.path, Reason: "file too short"}
	}
	body, trailer := raw[:len(raw)-4], raw[len(raw)-4:]
	if binary.BigEndian.Uint32(trailer) != crc32.ChecksumIEEE(body) {
		return &CorruptSnapshotError{Path: m.path, Reason: "checksum mismatch"}
	}
	if !bytes.Equal(body[:len(magic)], magic) {
		return &CorruptSnapshotError{Path: m.path, Reason: "bad magic header"}
	}
	if body[len(magic)] != formatVersion {
		return &CorruptSnapshotError{
			Path:   m.path,
			Reason: fmt.Sprintf("unsupported format version %d", body[len(magic)]),
		}
	}

	r := bytes.NewReader(body[len(magic)+1:])
	count, err := readU32(r)
	if err != nil {
		return &CorruptSnapshotError{Path: m.path, Reason: "truncated record count"}
	}

	entries := make([]store.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := readEntry(r)
		if err != nil {
			return &CorruptSnapshotError{
				Path:   m.path,
				Reason: fmt.Sprintf("record %d: %v", i, err),
			}
		}
		entries = append(entries, e)
	}
	if r.Len() != 0 {
		return &CorruptSnapshotError{Path: m.path, Reason: "trailing bytes after records"}
	}

	m.store.Restore(entries)
	return nil
}

func writeEntry(buf *bytes.Buffer, e store.Entry) error {
	buf.WriteByte(byte(e.Kind))
	writeString(buf, e.Key)

	var expiry int64
	if !e.ExpireAt.IsZero() {
		expiry = e.ExpireAt.UnixMilli()
	}
	binary.Write(buf, binary.BigEndian, expiry)

	switch e.Kind {
	case store.KindString:
		writeString(buf, e.Str)
	case store.KindList:
		writeU32(buf, uint32(len(e.List)))
		for _, v := range e.List {
			writeString(buf, v)
		}
	case store.KindHash:
		writeU32(buf, uint32(len(e.Hash)))
		// Hash iteration order is irrelevant to correctness; the checksum
		// covers whatever order was written.
		for f, v := range e.Hash {
			writeString(buf, f)
			writeString(buf, v)
		}
	case store.KindSet:
		writeU32(buf, uint32(len(e.Set)))
		for _, v := range e.Set {
			writeString(buf, v)
		}
	default:
		return fmt.Errorf("unknown value kind %d for key %q", e.Kind, e.Key)
	}
	return nil
}

func readEntry(r *bytes.Reader) (store.Entry, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return store.Entry{}, fmt.Errorf("truncated kind: %w", err)
	}
	e := store.Entry{Kind: store.ValueKind(kind)}

	if e.Key, err = readString(r); err != nil {
		return store.Entry{}, fmt.Errorf("key: %w", err)
	}

	var expiry int64
	if err := binary.Read(r, binary.BigEndian, &expiry); err != nil {
		return store.Entry{}, fmt.Errorf("expiry: %w", err)
	}
	if expiry != 0 {
		e.ExpireAt = time.UnixMilli(expiry)
	}

	switch e.Kind {
	case store.KindString:
		if e.Str, err = readString(r); err != nil {
			return store.Entry{}, err
		}
	case store.KindList:
		n, err := readU32(r)
		if err != nil {
			return store.Entry{}, err
		}
		e.List = make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := readString(r)
			if err != nil {
				return store.Entry{}, err
			}
			e.List = append(e.List, v)
		}
	case store.KindHash:
		n, err := readU32(r)
		if err != nil {
			return store.Entry{}, err
		}
		e.Hash = make(map[string]string, n)
		for i := uint32(0); i < n; i++ {
			f, err := readString(r)
			if err != nil {
				return store.Entry{}, err
			}
			v, err := readString(r)
			if err != nil {
				return store.Entry{}, err
			}
			e.Hash[f] = v
		}
	case store.KindSet:
		n, err := readU32(r)
		if err != nil {
			return store.Entry{}, err
		}
		e.Set = make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := readString(r)
			if err != nil {
				return store.Entry{}, err
			}
			e.Set = append(e.Set, v)
		}
	default:
		return store.Entry{}, fmt.Errorf("unknown value kind %d", kind)
	}
	return e, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("truncated length: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("declared length %d exceeds remaining bytes", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("truncated string: %w", err)
	}
	return string(b), nil
}
