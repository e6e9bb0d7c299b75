package main

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/smartcontractkit/automation-registry/pkg/telemetry"
)

var (
	planFile  = flag.StringP("plan", "p", "", "path to a simulation plan file; defaults apply when empty")
	outDir    = flag.StringP("output", "o", "./runs", "directory to write charts and artifacts to")
	dbFile    = flag.String("db", "", "path to a bolt file for durable registry state; in-memory only when empty")
	gasLimit  = flag.Uint64P("gas-limit", "g", 30_000_000, "per-call gas budget for transmit calls")
	withCharts = flag.Bool("charts", false, "write perform charts to the output directory")
	profiler  = flag.Bool("pprof", false, "run pprof server on startup")
	pprofPort = flag.Int("pprof-port", 6060, "port to serve the profiler on")
)

func main() {
	flag.Parse()

	base := log.New(os.Stdout, "", telemetry.LogPkgStdFlags)

	if *profiler {
		base.Println("starting profiler; waiting 5 seconds to start simulation")
		go func() {
			base.Println(http.ListenAndServe(fmt.Sprintf("localhost:%d", *pprofPort), nil))
		}()
		<-time.After(5 * time.Second)
	}

	plan, err := loadPlan(*planFile)
	if err != nil {
		base.Fatalf("failed to load plan: %s", err)
	}

	results, err := runSimulation(plan, base, *dbFile, *outDir, *gasLimit)
	if err != nil {
		base.Fatalf("simulation failed: %s", err)
	}

	results.PrintTabularResults(os.Stdout)

	if *withCharts {
		if err := results.WriteCharts(*outDir); err != nil {
			base.Fatalf("failed to write charts: %s", err)
		}
		base.Printf("charts written to %s", *outDir)
	}
}

func loadPlan(path string) (SimulationPlan, error) {
	if path == "" {
		return defaultPlan(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return SimulationPlan{}, err
	}
	defer file.Close()

	return DecodeSimulationPlan(file)
}
