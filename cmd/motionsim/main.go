package main

import (
	"fmt"
	"os"

	"github.com/agiangrant/motion/cmd/motionsim/commands"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = commands.Run(args)
	case "init":
		err = commands.Init(args)
	case "probe":
		err = commands.Probe(args)
	case "version", "-v", "--version":
		fmt.Printf("motionsim version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`motionsim - animated widget lifecycle simulator

Usage: motionsim <command> [options]

Commands:
  run       Simulate animated widgets against an in-memory engine
  init      Write a motion.toml with default configuration
  probe     Load the native engine library and print its version
  version   Print version information
  help      Show this help message

Examples:
  motionsim run                          Simulate 4 widgets for 10 seconds
  motionsim run --widgets 16 --for 30s   Heavier run with more widgets
  motionsim run --hide-after 3s          Hide widgets mid-run to watch
                                         the grace-period release
  motionsim run --screens 2 --switch-every 3s
                                         Cycle screens to watch the
                                         two-phase unload
  motionsim init                         Create motion.toml
  motionsim probe --lib ./libmotion_engine.so

Configuration:
  Timing and pool sizes are read from motion.toml in the working
  directory when present. Run 'motionsim init' to create one.`)
}
