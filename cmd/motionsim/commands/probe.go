package commands

import (
	"flag"
	"fmt"
	"os"

	"github.com/agiangrant/motion"
	"github.com/agiangrant/motion/internal/ffi"
)

// Probe implements the 'motionsim probe' command: load the native engine
// library and report its version, without starting any workers.
func Probe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	lib := fs.String("lib", "", "Path to the engine library (overrides discovery)")
	fs.Parse(args)

	if *lib != "" {
		os.Setenv(ffi.EnvLibPath, *lib)
	}

	eng, err := motion.OpenNativeEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	fmt.Printf("  ✓ engine loaded (version %s)\n", ffi.Version())
	return nil
}
