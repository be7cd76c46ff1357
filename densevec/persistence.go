package densevec

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/xDarkicex/densevec/internal/memory"
)

// Save serializes the index to w: header, node tape, vector payload. The
// stream is written once front to back; atomicity at the file level is the
// caller's concern (or use SaveFile).
func (ix *Index) Save(w io.Writer) error {
	h := fileHeader{
		major:        versionMajor,
		minor:        versionMinor,
		patch:        versionPatch,
		metricKind:   uint32(ix.cfg.Metric),
		scalarKind:   uint32(ix.cfg.Scalar),
		keyKind:      uint32(ix.cfg.KeyKind),
		slotKind:     uint32(ix.cfg.SlotKind),
		countPresent: uint64(ix.graph.CountPresent()),
		countDeleted: uint64(ix.graph.CountDeleted()),
		dimensions:   uint64(ix.cfg.Dimensions),
		multi:        ix.cfg.Multi,
	}
	hb := h.marshal()
	if _, err := w.Write(hb[:]); err != nil {
		return opErr("save", fmt.Errorf("write header: %w", err))
	}
	if err := ix.graph.SaveTape(w); err != nil {
		return opErr("save", err)
	}
	if err := ix.vectors.save(w, ix.graph.Assigned()); err != nil {
		return opErr("save", err)
	}
	return nil
}

// SaveFile saves to path atomically: write a temp file, sync, rename.
func (ix *Index) SaveFile(path string) error {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return opErr("save", fmt.Errorf("failed to create temp file: %w", err))
	}

	writer := bufio.NewWriter(file)
	writeErr := ix.Save(writer)
	if writeErr == nil {
		writeErr = writer.Flush()
	}
	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}
	if closeErr := file.Close(); closeErr != nil && writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tempPath)
		return opErr("save", writeErr)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return opErr("save", fmt.Errorf("failed to rename temp file: %w", err))
	}
	return nil
}

// Load reads a saved index from r into this empty index. The file's kinds
// and dimensions must match the open options or Load fails with
// ErrIncompatibleFormat.
func (ix *Index) Load(r io.Reader) error {
	if ix.readOnly {
		return opErr("load", ErrImmutable)
	}
	if ix.graph.Assigned() != 0 {
		return opErr("load", fmt.Errorf("index is not empty"))
	}

	hb := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hb); err != nil {
		return opErr("load", fmt.Errorf("read header: %w", err))
	}
	h, err := parseHeader(hb)
	if err != nil {
		return opErr("load", err)
	}
	if err := ix.checkHeader(h); err != nil {
		return opErr("load", err)
	}

	total := int(h.countPresent + h.countDeleted)
	if err := ix.graph.LoadTape(r, total); err != nil {
		return opErr("load", err)
	}
	if uint64(ix.graph.CountPresent()) != h.countPresent || uint64(ix.graph.CountDeleted()) != h.countDeleted {
		return opErr("load", fmt.Errorf("%w: header counts disagree with node tape", ErrIncompatibleFormat))
	}
	if err := ix.vectors.load(r, total); err != nil {
		return opErr("load", err)
	}

	ix.rebuildKeyMap(total)
	return nil
}

// LoadFile loads a saved index from path.
func (ix *Index) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return opErr("load", fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()
	return ix.Load(bufio.NewReader(file))
}

// View aliases a saved index inside externally owned bytes without copying.
// The index becomes immutable; data must stay valid and unchanged until the
// index is discarded. For aligned payload access the caller is responsible
// for placing data so the vector payload lands on its natural boundary.
func (ix *Index) View(data []byte) error {
	if ix.graph.Assigned() != 0 {
		return opErr("view", fmt.Errorf("index is not empty"))
	}
	h, err := parseHeader(data)
	if err != nil {
		return opErr("view", err)
	}
	if err := ix.checkHeader(h); err != nil {
		return opErr("view", err)
	}

	total := int(h.countPresent + h.countDeleted)
	if err := ix.graph.ViewTape(data[headerSize:], total); err != nil {
		return opErr("view", err)
	}
	if uint64(ix.graph.CountPresent()) != h.countPresent || uint64(ix.graph.CountDeleted()) != h.countDeleted {
		return opErr("view", fmt.Errorf("%w: header counts disagree with node tape", ErrIncompatibleFormat))
	}
	payloadOff := headerSize + ix.graph.TapeBytes()
	if payloadOff > len(data) {
		return opErr("view", fmt.Errorf("%w: vector payload missing", ErrIncompatibleFormat))
	}
	if err := ix.vectors.setView(data[payloadOff:], total); err != nil {
		return opErr("view", fmt.Errorf("%w: %v", ErrIncompatibleFormat, err))
	}

	ix.readOnly = true
	ix.rebuildKeyMap(total)
	return nil
}

// ViewFile memory-maps path read-only and views it. Close releases the
// mapping.
func (ix *Index) ViewFile(path string) error {
	m, err := memory.Open(path)
	if err != nil {
		return opErr("view", err)
	}
	if err := ix.View(m.Data()); err != nil {
		m.Close()
		return err
	}
	ix.viewMu.Lock()
	ix.viewMap = m
	ix.viewMu.Unlock()
	return nil
}

// rebuildKeyMap repopulates the key↔slot mapping from the node tape after a
// load or view. Tombstoned slots stay unmapped.
func (ix *Index) rebuildKeyMap(total int) {
	for s := 0; s < total; s++ {
		slot := uint32(s)
		if ix.graph.IsTombstoned(slot) {
			continue
		}
		ix.keys.add(ix.graph.Key(slot), slot)
	}
}
