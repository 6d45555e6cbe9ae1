//go:build ignore

// Command bench-compare diffs two `go test -bench` outputs and fails on
// time regressions.
// Usage: go run scripts/bench-compare.go [flags] <current.txt> <baseline.txt>
//
// Capture a baseline on main, then compare a branch against it:
//
//	go test -bench . -benchmem ./internal/... > baseline.txt
//	go test -bench . -benchmem ./internal/... > current.txt
//	go run scripts/bench-compare.go current.txt baseline.txt
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
)

var (
	threshold  = flag.Float64("threshold", 0.20, "Fractional ns/op slowdown that counts as a regression")
	jsonOutput = flag.Bool("json", false, "Emit the report as JSON")
	failOnSlow = flag.Bool("fail", true, "Exit nonzero when a regression is found")
)

// benchLine matches `go test -bench -benchmem` result rows:
// BenchmarkName-8   1000   1234 ns/op   456 B/op   7 allocs/op
var benchLine = regexp.MustCompile(
	`^(Benchmark\S+)\s+\d+\s+([\d.]+)\s+ns/op(?:\s+(\d+)\s+B/op)?(?:\s+(\d+)\s+allocs/op)?`)

type measurement struct {
	NsPerOp     float64 `json:"nsPerOp"`
	BytesPerOp  int     `json:"bytesPerOp"`
	AllocsPerOp int     `json:"allocsPerOp"`
}

type delta struct {
	Name     string  `json:"name"`
	Current  float64 `json:"currentNsPerOp"`
	Baseline float64 `json:"baselineNsPerOp"`
	Change   float64 `json:"changePercent"`
	Verdict  string  `json:"verdict"`
}

type report struct {
	Compared    int     `json:"compared"`
	Regressions int     `json:"regressions"`
	Improved    int     `json:"improved"`
	OnlyCurrent int     `json:"onlyInCurrent"`
	OnlyBase    int     `json:"onlyInBaseline"`
	Deltas      []delta `json:"deltas"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <current.txt> <baseline.txt>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := parseFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read current: %v\n", err)
		os.Exit(1)
	}
	baseline, err := parseFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read baseline: %v\n", err)
		os.Exit(1)
	}

	rep := diff(current, baseline, *threshold)
	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
	} else {
		printReport(rep)
	}

	if *failOnSlow && rep.Regressions > 0 {
		os.Exit(1)
	}
}

func parseFile(path string) (map[string]measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]measurement)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := benchLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		ns, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		meas := measurement{NsPerOp: ns}
		if m[3] != "" {
			meas.BytesPerOp, _ = strconv.Atoi(m[3])
		}
		if m[4] != "" {
			meas.AllocsPerOp, _ = strconv.Atoi(m[4])
		}
		out[m[1]] = meas
	}
	return out, sc.Err()
}

// diff pairs benchmarks by name. Names present on only one side are
// counted but never fail the run; renames should not break CI.
func diff(current, baseline map[string]measurement, threshold float64) *report {
	rep := &report{}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		base, ok := baseline[name]
		if !ok {
			rep.OnlyCurrent++
			continue
		}
		rep.Compared++

		cur := current[name]
		change := 0.0
		if base.NsPerOp > 0 {
			change = (cur.NsPerOp - base.NsPerOp) / base.NsPerOp
		}

		d := delta{
			Name:     name,
			Current:  cur.NsPerOp,
			Baseline: base.NsPerOp,
			Change:   change * 100,
		}
		switch {
		case change > threshold:
			d.Verdict = "regression"
			rep.Regressions++
		case change < -0.10:
			d.Verdict = "improved"
			rep.Improved++
		default:
			d.Verdict = "ok"
		}
		rep.Deltas = append(rep.Deltas, d)
	}

	for name := range baseline {
		if _, ok := current[name]; !ok {
			rep.OnlyBase++
		}
	}
	return rep
}

func printReport(rep *report) {
	for _, d := range rep.Deltas {
		if d.Verdict == "ok" {
			continue
		}
		fmt.Printf("%-12s %-60s %10.0f -> %10.0f ns/op (%+.1f%%)\n",
			d.Verdict, d.Name, d.Baseline, d.Current, d.Change)
	}
	fmt.Printf("compared %d benchmarks: %d regressions, %d improved, %d new, %d missing\n",
		rep.Compared, rep.Regressions, rep.Improved, rep.OnlyCurrent, rep.OnlyBase)
}
