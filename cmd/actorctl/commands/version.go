package commands

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Println("actorctl (unknown build)")
		return
	}

	version := info.Main.Version
	if version == "" {
		version = "dev"
	}
	fmt.Printf("actorctl %s go=%s\n", version, info.GoVersion)
}
