// Command routerd is a demo/integration harness for the routing engine: it
// wires an Engine to the fake worker and fake backend and drives a scripted
// scenario end to end, printing the resulting snapshot. It never touches
// real hardware — sample I/O is out of scope (spec.md §1 Non-goals) — and
// exists to give the engine an entry point the way teacher/server/main.go
// gives the chat/voice server one.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"audiorouted"
	"audiorouted/internal/backend"
	"audiorouted/internal/model"
	"audiorouted/internal/worker"
)

func main() {
	stableDB := flag.String("stable-id-db", ":memory:", "path to the stable-id SQLite database")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	fakeBackend := backend.NewFake()
	fakeWorker := worker.NewFake()

	e, err := audiorouted.Init(audiorouted.Config{
		Backend:      fakeBackend,
		Worker:       fakeWorker,
		StableIDPath: *stableDB,
	})
	if err != nil {
		log.Fatalf("[routerd] init: %v", err)
	}
	defer e.Deinit()

	runDemoScenario(e, fakeBackend)

	snap := e.Snapshot.Current()
	fmt.Printf("snapshot version %d: %d device(s), %d node(s)\n", snap.Version, len(snap.Devices), len(snap.Nodes))
	for _, d := range snap.Devices {
		fmt.Printf("  device %d (%s): enabled=%v state=%s\n", d.Idx, d.Direction, d.Enabled, d.State)
	}
}

// runDemoScenario plays out spec.md §8 S1: add an output device, select its
// node, and attach a stream to it.
func runDemoScenario(e *audiorouted.Engine, fakeBackend *backend.Fake) {
	spk := &model.Device{
		Direction:            model.Playback,
		MaxSupportedChannels: 2,
		Nodes: []*model.Node{
			{Idx: 1, Name: "Speaker", Type: model.NodeTypeSpeaker, AECCapableSpeaker: true},
		},
	}
	idx, err := e.AddOutput(spk)
	if err != nil {
		log.Fatalf("[routerd] add_output: %v", err)
	}

	if err := e.SelectNode(model.Playback, idx, 1); err != nil {
		log.Fatalf("[routerd] select_node: %v", err)
	}

	s := &model.Stream{
		ID:        1,
		Direction: model.Playback,
		Format:    model.Format{NumChannels: 2, Rate: 48000, SampleType: "s16le"},
	}
	if err := e.AddStream(s); err != nil {
		log.Fatalf("[routerd] add_stream: %v", err)
	}
}
