// Package dataset loads the prompt corpus from JSON Lines slice files,
// one file per category, and fixes the case order once per corpus so
// every mechanism sees identical input.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/ahrav/guardtax/internal/domain"
)

// sliceOrder fixes the merge order before shuffling; without it the
// corpus order would depend on directory listing order.
var sliceOrder = []domain.Category{
	domain.CategoryAdversarialDirect,
	domain.CategoryAdversarialIndirect,
	domain.CategoryBenignStandard,
	domain.CategoryBenignEdgecase,
}

// SliceFileName returns the corpus file name for one category slice.
func SliceFileName(category domain.Category) string {
	return string(category) + ".jsonl"
}

// LoadCorpus reads the four category slices under dir, merges them, and
// shuffles once with an RNG isolated to this call. The shuffle is
// deterministic in seed, so a run is reproducible from its manifest.
// Slice files may be absent; an entirely empty corpus is an error.
func LoadCorpus(dir string, seed int64) ([]domain.TestCase, error) {
	var cases []domain.TestCase
	for _, category := range sliceOrder {
		path := filepath.Join(dir, SliceFileName(category))
		slice, err := loadSlice(path, category)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		cases = append(cases, slice...)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases under %s: %w", dir, domain.ErrEmptyCorpus)
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(cases), func(i, j int) {
		cases[i], cases[j] = cases[j], cases[i]
	})
	return cases, nil
}

// loadSlice reads one category file. The category and its ground-truth
// label come from the file's identity, never from the record itself, so
// a mislabeled line cannot poison the corpus.
func loadSlice(path string, category domain.Category) ([]domain.TestCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	adversarial := category == domain.CategoryAdversarialDirect ||
		category == domain.CategoryAdversarialIndirect

	var cases []domain.TestCase
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var c domain.TestCase
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), lineNo, err)
		}
		if strings.TrimSpace(c.Prompt) == "" {
			return nil, fmt.Errorf("%s line %d: empty prompt", filepath.Base(path), lineNo)
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("%s-%03d", category, len(cases)+1)
		}
		c.Category = category
		c.IsAdversarial = adversarial
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cases, nil
}
