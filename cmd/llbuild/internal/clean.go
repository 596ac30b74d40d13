package internal

import (
	"fmt"

	"github.com/goplus/llbuild/internal/runner"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove everything the build produced",
	RunE:  runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	s, err := loadSession(true)
	if err != nil {
		return err
	}
	n, err := runner.Clean(s.book)
	if err != nil {
		return fmt.Errorf("failed to clean %s: %w", s.book.BuildDir(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s)\n", n)
	return nil
}
