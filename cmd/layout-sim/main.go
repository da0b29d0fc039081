package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/signalsfoundry/graphlayout/core"
	"github.com/signalsfoundry/graphlayout/internal/logging"
	"github.com/signalsfoundry/graphlayout/protocol"
	"github.com/signalsfoundry/graphlayout/session"
)

func main() {
	scenarioPath := flag.String("scenario", "configs/graph_scenario.json", "path to a JSON graph scenario")
	maxIterations := flag.Int("max-iterations", 5000, "stop the layout after this many iterations if it has not settled")
	snapshotEvery := flag.Int("snapshot-every", 2, "emit a position snapshot every Nth iteration")
	progressEvery := flag.Int("progress-every", 100, "print a progress line every Nth snapshot (0 disables)")
	pinFirst := flag.Bool("pin-first", false, "pin the first node to the origin before running")

	flag.Parse()

	log := logging.NewFromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := os.Open(*scenarioPath)
	if err != nil {
		log.Error(ctx, "failed to open scenario", logging.String("path", *scenarioPath), logging.Err(err))
		os.Exit(1)
	}
	scenario, err := core.LoadGraphScenario(f)
	f.Close()
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.Err(err))
		os.Exit(1)
	}

	fmt.Printf("Loaded graph scenario: %d nodes, %d links\n", len(scenario.Nodes), len(scenario.Links))

	sess := session.New(session.Options{
		Mode:          session.Accelerated,
		SnapshotEvery: *snapshotEvery,
		Logger:        log,
	})
	sess.Start(ctx)

	sess.Post(protocol.InitCommand{Nodes: scenario.Nodes, Links: scenario.Links, Config: scenario.Overrides})
	if *pinFirst {
		zero := 0.0
		sess.Post(protocol.PinCommand{NodeIndex: 0, FX: &zero, FY: &zero})
	}

	start := time.Now()
	snapshots := 0
	for ev := range sess.Events() {
		switch e := ev.(type) {
		case protocol.TickEvent:
			snapshots++
			if *progressEvery > 0 && snapshots % *progressEvery == 0 {
				fmt.Printf("snapshot %d: alpha=%.4f spread=%.1f\n", snapshots, e.Alpha, spread(e.Positions))
			}
			// The snapshot cadence bounds iterations at snapshots × interval,
			// so this is the external convergence watchdog the engine itself
			// deliberately does not have.
			if snapshots*(*snapshotEvery) >= *maxIterations {
				fmt.Printf("iteration budget exhausted after %d snapshots; stopping\n", snapshots)
				sess.Post(protocol.StopCommand{})
				cancel()
			}
		case protocol.SettledEvent:
			fmt.Printf("Layout settled: alpha=%.5f snapshots=%d elapsed=%s\n",
				e.Alpha, snapshots, time.Since(start).Round(time.Millisecond))
			cancel()
		}
	}
	<-sess.Done()
}

// spread is the largest distance of any node from the origin, a cheap
// single-number view of how far the layout has expanded.
func spread(positions []float64) float64 {
	max := 0.0
	for i := 0; i+1 < len(positions); i += 2 {
		x, y := positions[i], positions[i+1]
		if d := x*x + y*y; d > max {
			max = d
		}
	}
	return math.Sqrt(max)
}
