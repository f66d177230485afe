// Checkresults validates the CSV written by loadtest.
//
// Usage:
//
//	go run ./scripts/checkresults -csv results.csv -expected 5000
//	go run ./scripts/checkresults -csv results.csv -sticky
//
// It verifies that no client index appears twice, that the row count matches
// -expected, and reports per-backend and per-status counts. With -sticky it
// also verifies that every client IP was served by a single backend, which
// holds for ip-hash while the healthy set does not change.
//
// Exit codes:
//
//	0 - Verification passed
//	2 - File errors or malformed CSV
//	3 - Duplicate indices found
//	4 - A client IP was spread over several backends
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
)

const (
	colIdx = iota
	colTimestamp
	colClientIP
	colBackend
	colStatus
	colDuration
)

func main() {
	csvPath := flag.String("csv", "results.csv", "Path to CSV produced by loadtest")
	expected := flag.Int("expected", 0, "Expected number of rows (optional)")
	sticky := flag.Bool("sticky", false, "Require one backend per client IP (ip-hash)")
	flag.Parse()

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open csv: %v\n", err)
		os.Exit(2)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read csv: %v\n", err)
		os.Exit(2)
	}

	if len(rows) == 0 || len(rows[0]) <= colDuration {
		fmt.Fprintf(os.Stderr, "csv empty or unexpected header\n")
		os.Exit(2)
	}

	idxSeen := map[int]bool{}
	backendCounts := map[string]int{}
	statusCounts := map[string]int{}
	ipBackends := map[string]map[string]bool{}
	duplicates := 0

	for i, row := range rows[1:] {
		if len(row) <= colDuration {
			fmt.Fprintf(os.Stderr, "malformed row %d: %v\n", i+1, row)
			os.Exit(2)
		}

		idx, err := strconv.Atoi(row[colIdx])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid idx at row %d: %v\n", i+1, err)
			os.Exit(2)
		}
		if idxSeen[idx] {
			fmt.Printf("DUPLICATE idx=%d at csv row %d\n", idx, i+1)
			duplicates++
		}
		idxSeen[idx] = true

		backendCounts[row[colBackend]]++
		statusCounts[row[colStatus]]++

		// Only connections that reached a backend say anything about stickiness.
		if row[colStatus] == "ok" {
			ip := row[colClientIP]
			if ipBackends[ip] == nil {
				ipBackends[ip] = map[string]bool{}
			}
			ipBackends[ip][row[colBackend]] = true
		}
	}

	totalRows := len(rows) - 1
	fmt.Printf("Total rows: %d  Unique idx: %d\n", totalRows, len(idxSeen))

	if *expected > 0 && totalRows != *expected {
		fmt.Printf("Warning: total rows (%d) != expected (%d)\n", totalRows, *expected)
	}

	fmt.Println("Per-backend counts:")
	printCounts(backendCounts)
	fmt.Println("Per-status counts:")
	printCounts(statusCounts)

	if duplicates > 0 {
		fmt.Printf("ERROR: found %d duplicate indices\n", duplicates)
		os.Exit(3)
	}

	if *sticky {
		spread := 0
		for ip, backends := range ipBackends {
			if len(backends) > 1 {
				fmt.Printf("NOT STICKY ip=%s served by %d backends\n", ip, len(backends))
				spread++
			}
		}
		if spread > 0 {
			fmt.Printf("ERROR: %d client IPs were spread over several backends\n", spread)
			os.Exit(4)
		}
		fmt.Printf("Stickiness holds for %d client IPs.\n", len(ipBackends))
	}

	fmt.Println("Verification passed.")
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s -> %d\n", k, counts[k])
	}
}
