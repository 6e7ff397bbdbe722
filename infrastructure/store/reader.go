package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/guardtax/internal/domain"
	"github.com/ahrav/guardtax/internal/ports"
)

// ReadSegment loads every record from one JSONL segment file. A
// truncated final line, the signature of a mid-write crash, is skipped
// rather than failing the whole segment.
func ReadSegment(path string) ([]domain.TrialRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ports.NewStoreError(filepath.Base(path), "read", err)
	}
	defer f.Close()

	var records []domain.TrialRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	var pending error
	for scanner.Scan() {
		lineNo++
		if pending != nil {
			// A malformed line followed by more data is corruption,
			// not a truncated tail.
			return nil, ports.NewStoreError(filepath.Base(path), "read", pending)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec domain.TrialRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			pending = fmt.Errorf("line %d: %w", lineNo, err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, ports.NewStoreError(filepath.Base(path), "read", err)
	}
	return records, nil
}

// ReadAllRecords loads every .jsonl segment under a results directory.
// Records carry their own mechanism and repetition, so no manifest is
// needed to regroup them.
func ReadAllRecords(dir string) ([]domain.TrialRecord, error) {
	var records []domain.TrialRecord
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		recs, err := ReadSegment(path)
		if err != nil {
			return err
		}
		records = append(records, recs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
