package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/ppiankov/mopscov/internal/cli.Version=..."
var Version = "v0.3.0"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of mopscov.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mopscov %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
