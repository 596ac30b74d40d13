package internal

import (
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	srcDirFlag   string
	buildDirFlag string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "llbuild",
	Short: "llbuild builds C and C++ projects with clang",
	Long: `llbuild reads build.hcl from the project directory, turns its libraries and
executables into build rules and runs them incrementally.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutputLevel(log.Ldebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&srcDirFlag, "dir", "C", ".", "Project source directory")
	rootCmd.PersistentFlags().StringVarP(&buildDirFlag, "build-dir", "B", "", "Build output directory (default <dir>/build)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}
