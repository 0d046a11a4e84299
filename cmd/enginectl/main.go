// Command enginectl is the CLI entry point for a standalone loopforge
// engine host: it can serve the HTTP introspection API, launch the
// terminal status UI, or run a short headless demo against the in-memory
// Dummy port.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loopforge/engine/internal/api"
	"github.com/loopforge/engine/internal/elog"
	"github.com/loopforge/engine/internal/engine"
	"github.com/loopforge/engine/internal/event"
	"github.com/loopforge/engine/internal/pattern"
	"github.com/loopforge/engine/internal/port"
	"github.com/loopforge/engine/internal/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	serverPort int
	logLevel   string
	demoBars   int
	demoBPM    float64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "enginectl",
	Short: "Run and inspect a loopforge MIDI sequencer/looper engine",
	Long: `enginectl hosts a loopforge engine: a looping MIDI pattern arena, a
master bus, and the playback scheduler that walks every pattern in time.

Examples:
  enginectl serve --port 8080
  enginectl tui
  enginectl demo --bars 4 --bpm 120`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return elog.Init(logLevel) },
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP introspection/transport API",
	RunE:  runServe,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal status UI",
	RunE:  runTUI,
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Build a one-bar demo pattern and run it headless for N bars",
	RunE:  runDemo,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "HTTP server port")

	demoCmd.Flags().IntVar(&demoBars, "bars", 2, "number of bars to run")
	demoCmd.Flags().Float64Var(&demoBPM, "bpm", 120, "tempo in beats per minute")

	rootCmd.AddCommand(serveCmd, tuiCmd, demoCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	eng := demoEngine(demoBPM)
	fmt.Printf("Starting loopforge engine API on port %d...\n", serverPort)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", serverPort)
	return api.NewServer(eng).Run(serverPort)
}

func runTUI(cmd *cobra.Command, args []string) error {
	eng := demoEngine(demoBPM)
	return tui.Run(eng)
}

func runDemo(cmd *cobra.Command, args []string) error {
	eng := demoEngine(demoBPM)
	h, err := eng.NewPattern(pattern.Config{Name: "demo", Measures: 1})
	if err != nil {
		return err
	}
	p, err := eng.Pattern(h)
	if err != nil {
		return err
	}
	p.AddEvent(event.NewNoteOn(0, 0, 0x3C, 0x64))
	p.AddEvent(event.NewNoteOff(96, 0, 0x3C, 0))
	if err := eng.Play(h); err != nil {
		return err
	}

	barPulses := int64(4 * eng.PPQN())
	totalPulses := barPulses * int64(demoBars)

	eng.Start(0)
	for eng.CurrentTick() < totalPulses {
		eng.Tick()
		time.Sleep(time.Millisecond)
	}
	eng.Stop()
	eng.Tick()

	fmt.Printf("Ran %d bars at %.1f BPM, final tick=%d\n", demoBars, demoBPM, eng.CurrentTick())
	return nil
}

func demoEngine(bpm float64) *engine.Engine {
	eng := engine.New(engine.Config{PPQN: 192, BPM: bpm})
	eng.AddOutput(port.NewDummy("demo-monitor", 64), true)
	return eng
}
