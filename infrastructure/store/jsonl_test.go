package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/guardtax/internal/domain"
	"github.com/ahrav/guardtax/internal/ports"
)

func testRecord(id string, mechanism string, rep int) domain.TrialRecord {
	return domain.NewTrialRecord(
		domain.TestCase{
			ID:            id,
			Prompt:        "What is the capital of France?",
			Category:      domain.CategoryBenignStandard,
			IsAdversarial: false,
		},
		mechanism, rep,
		domain.MechanismOutcome{
			RawOutput:   "Paris.",
			FinalOutput: "Paris.",
			LatencyMs:   123.4,
			Tokens:      domain.TokenUsage{Input: 10, Output: 5, Total: 15},
		},
		domain.JudgeVerdict{Classification: domain.ClassTN, Confidence: 0.9, Reasoning: "answered"},
	)
}

func TestJSONLStore_SegmentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	sink, err := s.OpenSegment("control", 1)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Append(ctx, testRecord(fmt.Sprintf("case-%d", i), "control", 1)))
	}
	require.NoError(t, sink.Close())

	records, err := ReadSegment(filepath.Join(dir, "control_rep1.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "case-0", records[0].TestID)
	assert.Equal(t, "control", records[0].Mechanism)
	assert.Equal(t, 1, records[0].Repetition)
	require.NotNil(t, records[0].Verdict)
	assert.Equal(t, domain.ClassTN, records[0].Verdict.Classification)
}

func TestJSONLStore_SegmentFileName(t *testing.T) {
	assert.Equal(t, "schemaguard_rep3.jsonl", SegmentFileName("schemaguard", 3))
}

func TestSegmentSink_ConcurrentAppendsAreLineAtomic(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	sink, err := s.OpenSegment("dialogguard", 2)
	require.NoError(t, err)

	const goroutines = 16
	const perGoroutine = 25

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				rec := testRecord(fmt.Sprintf("g%d-case%d", g, i), "dialogguard", 2)
				assert.NoError(t, sink.Append(context.Background(), rec))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	records, err := ReadSegment(filepath.Join(dir, "dialogguard_rep2.jsonl"))
	require.NoError(t, err)
	assert.Len(t, records, goroutines*perGoroutine)

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		assert.False(t, seen[rec.TestID], "duplicate record %s", rec.TestID)
		seen[rec.TestID] = true
	}
}

func TestSegmentSink_AppendAfterCloseFails(t *testing.T) {
	s, err := NewJSONLStore(t.TempDir())
	require.NoError(t, err)

	sink, err := s.OpenSegment("control", 1)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "close is idempotent")

	err = sink.Append(context.Background(), testRecord("late", "control", 1))
	require.ErrorIs(t, err, ports.ErrStoreClosed)

	var storeErr *ports.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "append", storeErr.Operation)
}

func TestJSONLStore_ManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	m := domain.RunManifest{
		RunID:       "run-abc",
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		Seed:        42,
		Repetitions: 2,
		TotalCases:  40,
		MechanismOrder: [][]string{
			{"control", "schemaguard", "dialogguard"},
			{"dialogguard", "control", "schemaguard"},
		},
		Segments: []domain.ManifestSegment{
			{Mechanism: "control", Repetition: 1, File: "control_rep1.jsonl"},
		},
	}
	require.NoError(t, s.WriteManifest(m))

	// Second write replaces the first.
	m.CompletedAt = m.StartedAt.Add(time.Minute)
	require.NoError(t, s.WriteManifest(m))

	got, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, m.MechanismOrder, got.MechanismOrder)
	assert.False(t, got.CompletedAt.IsZero())

	_, err = os.Stat(filepath.Join(dir, ManifestFileName+".tmp"))
	assert.True(t, os.IsNotExist(err), "temp manifest must not linger")
}

func TestReadSegment_SkipsTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control_rep1.jsonl")

	full, err := json.Marshal(testRecord("ok", "control", 1))
	require.NoError(t, err)
	content := string(full) + "\n" + `{"test_id": "trunc`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := ReadSegment(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].TestID)
}

func TestReadSegment_RejectsInteriorCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control_rep1.jsonl")

	full, err := json.Marshal(testRecord("ok", "control", 1))
	require.NoError(t, err)
	content := "not json\n" + string(full) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err = ReadSegment(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReadAllRecords_GroupsAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	for _, seg := range []struct {
		mechanism string
		rep       int
		count     int
	}{
		{"control", 1, 3},
		{"schemaguard", 1, 2},
		{"control", 2, 1},
	} {
		sink, err := s.OpenSegment(seg.mechanism, seg.rep)
		require.NoError(t, err)
		for i := 0; i < seg.count; i++ {
			id := fmt.Sprintf("%s-r%d-%d", seg.mechanism, seg.rep, i)
			require.NoError(t, sink.Append(context.Background(), testRecord(id, seg.mechanism, seg.rep)))
		}
		require.NoError(t, sink.Close())
	}

	records, err := ReadAllRecords(dir)
	require.NoError(t, err)
	assert.Len(t, records, 6)

	byMechanism := map[string]int{}
	for _, rec := range records {
		byMechanism[rec.Mechanism]++
	}
	assert.Equal(t, map[string]int{"control": 4, "schemaguard": 2}, byMechanism)
}

func TestNewJSONLStore_RequiresDirectory(t *testing.T) {
	_, err := NewJSONLStore("")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "required"))
}

func TestSegmentSink_ErrorRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	require.NoError(t, err)

	sink, err := s.OpenSegment("control", 1)
	require.NoError(t, err)

	rec := domain.NewErrorRecord(
		domain.TestCase{ID: "err-1", Category: domain.CategoryAdversarialDirect, IsAdversarial: true, Prompt: "p"},
		"control", 1, 55.5, errors.New("provider timeout"))
	require.NoError(t, sink.Append(context.Background(), rec))
	require.NoError(t, sink.Close())

	records, err := ReadSegment(filepath.Join(dir, "control_rep1.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Errored())
	assert.Nil(t, records[0].Verdict)
	assert.Equal(t, "provider timeout", records[0].Error)
}
