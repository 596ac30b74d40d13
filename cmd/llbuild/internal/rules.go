package internal

import (
	"fmt"

	"github.com/gookit/color"
	"github.com/goplus/llbuild/pkgs/build"
	"github.com/spf13/cobra"
)

var rulesVerbose bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the build rules of the project",
	RunE:  runRules,
}

func init() {
	rulesCmd.Flags().BoolVarP(&rulesVerbose, "long", "l", false, "Also list prerequisites and targets")
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	s, err := loadSession(true)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range s.book.Rules() {
		color.Fprintln(out, color.Info.Sprint(build.Describe(r)))
		if !rulesVerbose {
			continue
		}
		for _, p := range r.Prereqs() {
			fmt.Fprintf(out, "    < %s\n", p)
		}
		for _, p := range r.Targets() {
			fmt.Fprintf(out, "    > %s\n", p)
		}
	}
	return nil
}
