// Package store persists trial records as append-only JSON Lines
// segments plus a run manifest. One segment per (mechanism,
// repetition) keeps segments independently loadable and makes partial
// runs analyzable as far as they got.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ahrav/guardtax/internal/domain"
	"github.com/ahrav/guardtax/internal/ports"
)

// ManifestFileName is the run manifest's file name inside the results
// directory.
const ManifestFileName = "manifest.json"

var _ ports.ResultStore = (*JSONLStore)(nil)

// JSONLStore writes run output under a single results directory.
type JSONLStore struct {
	dir string
}

// NewJSONLStore creates a store rooted at dir, creating the directory
// if needed.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if dir == "" {
		return nil, ports.NewStoreError("", "open", fmt.Errorf("results directory is required"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ports.NewStoreError(dir, "open", err)
	}
	return &JSONLStore{dir: dir}, nil
}

// Dir returns the results directory.
func (s *JSONLStore) Dir() string { return s.dir }

// Validate confirms the results directory is writable.
func (s *JSONLStore) Validate() error {
	probe := filepath.Join(s.dir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return ports.NewStoreError(s.dir, "validate", err)
	}
	f.Close()
	return os.Remove(probe)
}

// SegmentFileName returns the record file name for one segment.
func SegmentFileName(mechanism string, repetition int) string {
	return fmt.Sprintf("%s_rep%d.jsonl", mechanism, repetition)
}

// OpenSegment creates the segment file and starts its writer.
func (s *JSONLStore) OpenSegment(mechanism string, repetition int) (ports.TrialSink, error) {
	name := SegmentFileName(mechanism, repetition)
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ports.NewStoreError(name, "open", err)
	}
	return newSegmentSink(name, f), nil
}

// WriteManifest persists the manifest atomically: written to a temp
// file, then renamed over any previous manifest.
func (s *JSONLStore) WriteManifest(m domain.RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ports.NewStoreError(ManifestFileName, "marshal", err)
	}

	tmp := filepath.Join(s.dir, ManifestFileName+".tmp")
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return ports.NewStoreError(ManifestFileName, "write", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, ManifestFileName)); err != nil {
		return ports.NewStoreError(ManifestFileName, "rename", err)
	}
	return nil
}

// ReadManifest loads the manifest from a results directory.
func ReadManifest(dir string) (domain.RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return domain.RunManifest{}, ports.NewStoreError(ManifestFileName, "read", err)
	}
	var m domain.RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.RunManifest{}, ports.NewStoreError(ManifestFileName, "unmarshal", err)
	}
	return m, nil
}

// segmentSink serializes appends through one writer goroutine. Workers
// finish trials out of order; the single writer guarantees each record
// lands as one intact line regardless of who appended when.
type segmentSink struct {
	name    string
	f       *os.File
	w       *bufio.Writer
	reqs    chan appendReq
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

type appendReq struct {
	line []byte
	errc chan error
}

func newSegmentSink(name string, f *os.File) *segmentSink {
	sink := &segmentSink{
		name: name,
		f:    f,
		w:    bufio.NewWriter(f),
		reqs: make(chan appendReq, 64),
		done: make(chan struct{}),
	}
	go sink.writeLoop()
	return sink
}

func (s *segmentSink) writeLoop() {
	defer close(s.done)
	for req := range s.reqs {
		_, err := s.w.Write(req.line)
		if err == nil {
			// Flush per record so a crash loses at most records whose
			// Append has not yet returned.
			err = s.w.Flush()
		}
		req.errc <- err
	}
}

// Append encodes and queues one record, returning once the writer has
// flushed it.
func (s *segmentSink) Append(ctx context.Context, rec domain.TrialRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return ports.NewStoreError(s.name, "marshal", err)
	}
	line = append(line, '\n')

	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return ports.NewStoreError(s.name, "append", ports.ErrStoreClosed)
	}
	req := appendReq{line: line, errc: make(chan error, 1)}
	s.reqs <- req
	s.closeMu.Unlock()

	select {
	case err := <-req.errc:
		if err != nil {
			return ports.NewStoreError(s.name, "append", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued records, syncs the file, and rejects further
// appends. It is idempotent.
func (s *segmentSink) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.reqs)
	s.closeMu.Unlock()

	<-s.done

	var firstErr error
	if err := s.w.Flush(); err != nil {
		firstErr = err
	}
	if err := s.f.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return ports.NewStoreError(s.name, "close", firstErr)
	}
	return nil
}
