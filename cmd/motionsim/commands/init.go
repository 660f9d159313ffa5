package commands

import (
	"flag"
	"fmt"
	"os"

	"github.com/agiangrant/motion"
)

// Init implements the 'motionsim init' command.
func Init(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "motion.toml", "Where to write the configuration")
	force := fs.Bool("force", false, "Overwrite an existing file")
	fs.Parse(args)

	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *path)
	}

	if err := motion.SaveConfig(*path, motion.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("  ✓ Created %s\n", *path)
	return nil
}
