// Command replay drives the rowing pipeline over a recorded impulse
// trace (CSV of monotonic microsecond timestamps, one per line) and
// prints a summary of the resulting metrics. Useful for reproducing a
// session offline from a logged trace.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"ergomonitor/internal/config"
	"ergomonitor/internal/pipeline"
)

func main() {
	tracePath := flag.String("trace", "", "CSV file with one monotonic microsecond timestamp per row")
	configPath := flag.String("config", "", "KEY=VALUE settings file (default: built-in Default())")
	stoppedCheckEveryN := flag.Int("tick-every", 1, "call Pipeline.Tick after every N impulses")
	flag.Parse()

	if *tracePath == "" {
		log.Fatalf("[replay] -trace is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("[replay] failed to load config: %v", err)
		}
		cfg = loaded
	}

	timestamps, err := readTrace(*tracePath)
	if err != nil {
		log.Fatalf("[replay] failed to read trace: %v", err)
	}

	p := pipeline.New(cfg)
	for i, tsUs := range timestamps {
		p.OnEdge(tsUs)
		p.Drain()
		if (i+1)%*stoppedCheckEveryN == 0 {
			p.Tick(tsUs)
		}
	}

	snap := p.Snapshot()
	fmt.Printf("impulses replayed:  %d\n", len(timestamps))
	fmt.Printf("revolutions:        %d\n", snap.RevCount)
	fmt.Printf("strokes:            %d\n", snap.StrokeCount)
	fmt.Printf("distance (m):       %.3f\n", snap.Distance)
	fmt.Printf("drag coefficient:   %.6f\n", snap.DragCoefficient)
	fmt.Printf("drive duration (s): %.3f\n", snap.DriveDuration)
	fmt.Printf("recovery dur. (s):  %.3f\n", snap.RecoveryDuration)
	fmt.Printf("avg stroke power:   %.1f W\n", snap.AvgStrokePower)
	fmt.Printf("final phase:        %s\n", p.Phase())

	if ev := p.LastEvent(); ev != nil {
		fmt.Printf("last stroke forced: %v, handle-force samples: %d\n", ev.Forced, len(ev.HandleForces))
	}
}

// readTrace reads one monotonic microsecond timestamp per CSV row. A
// single-column "ts_us" header, if present, is skipped.
func readTrace(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []float64
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		if first {
			first = false
			if _, err := strconv.ParseFloat(record[0], 64); err != nil {
				continue // header row
			}
		}
		v, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", record[0], err)
		}
		out = append(out, v)
	}
	return out, nil
}
