// jobmate-match-service
//
// Candidate ↔ job matching. Each discovery request fans out to three
// sources (employer postings, the cached external store, live Adzuna),
// deduplicates, scores and ranks the postings, and returns them in two
// sections: direct applications and discovered jobs. Live results are
// written back to the cached store so the next identical query is cheap.
//
//	match-service serve                         → HTTP + gRPC + cron warmer
//	match-service discover --candidate c.yaml   → one-shot query, JSON on stdout
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[match-service] %v\n", err)
		os.Exit(1)
	}
}
