// gen-corpus writes a synthetic four-slice prompt corpus for smoke
// testing the experiment pipeline. Real measurements need a curated,
// properly sourced corpus.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ahrav/guardtax/internal/testutils"
)

func main() {
	var (
		count  = flag.Int("count", 10, "Cases to generate per category slice")
		outDir = flag.String("out", "corpus", "Output directory for the slice files")
		seed   = flag.Int64("seed", 0, "Generation seed; 0 uses the current time")
	)
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	corpus := testutils.GenerateCorpus(*count, *seed)
	if err := testutils.SaveCorpus(corpus, *outDir); err != nil {
		log.Fatalf("Failed to save corpus: %v", err)
	}

	total := 0
	for _, cases := range corpus {
		total += len(cases)
	}
	fmt.Printf("Generated synthetic corpus:\n")
	fmt.Printf("- Path: %s\n", *outDir)
	fmt.Printf("- Total cases: %d (%d per slice)\n", total, *count)
	fmt.Printf("- Seed: %d\n", *seed)
}
