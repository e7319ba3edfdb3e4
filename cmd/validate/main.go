// Command validate checks an effect table fixture against the current mapper.
// It reports missing or duplicate codes, values that drifted since the fixture
// was generated, and render parameters out of bounds.
//
// Usage:
//
//	go run ./cmd/validate -fixture data/fixtures/effect_table.json
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/storm-ambiance/internal/effecttable"
)

func main() {
	fixture := flag.String("fixture", "", "path to the effect table JSON fixture")
	flag.Parse()

	if *fixture == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*fixture); code != 0 {
		os.Exit(code)
	}
}

func run(path string) int {
	fmt.Println("=== Effect Table Validation ===")
	fmt.Println()

	rows, err := effecttable.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}

	checks := effecttable.Validate(rows)

	allPassed := true
	for _, c := range checks {
		status := "\033[32mPASS\033[0m"
		if !c.Passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(c.Findings))
			allPassed = false
		}
		fmt.Printf("  %-46s %s\n", c.Name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d\n", len(rows))

	for _, c := range checks {
		if c.Passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", c.Name)
		for i, f := range c.Findings {
			fmt.Printf("  [%d] %s\n", i+1, f)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}
