package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including library and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s %s\n", binaryName, versionInfo.Version)

		if extended {
			fmt.Printf("Commit: %s\n", versionInfo.Commit)
			fmt.Printf("Built: %s\n", versionInfo.BuildDate)
			fmt.Printf("Go: %s\n", runtime.Version())
			fmt.Printf("\n")
			fmt.Printf("Gofulmen: %s\n", dependencyVersion("github.com/fulmenhq/gofulmen"))
			fmt.Printf("Chi: %s\n", dependencyVersion("github.com/go-chi/chi/v5"))
		}
		return nil
	},
}

func dependencyVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			return dep.Version
		}
	}
	return "unknown"
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
