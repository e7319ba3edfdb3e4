// Command effecttable writes the weather-code fixture consumed by downstream
// renderers. It runs the real mapper for every WMO code under each metric
// scenario so the fixture matches what the overlay renders.
//
// Usage:
//
//	go run ./cmd/effecttable -out data/fixtures/effect_table.json
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/effecttable"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the effect table JSON fixture")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rows := effecttable.Build()
	if err := effecttable.Write(*out, rows); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d rows to %s", len(rows), *out)

	printStats(rows)
	return nil
}

func printStats(rows []effecttable.Row) {
	counts := effecttable.Counts(rows)
	effects := make([]domain.WeatherEffect, 0, len(counts))
	for e := range counts {
		effects = append(effects, e)
	}
	sort.Slice(effects, func(i, j int) bool { return counts[effects[i]] > counts[effects[j]] })

	fmt.Println("\nRows per effect:")
	for _, e := range effects {
		fmt.Printf("  %-12s %4d\n", e, counts[e])
	}
}
