package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the tarstream command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tarstream",
		Short: "Streaming tar archive decoder",
		Long:  "Decodes tar archives in a single streaming pass without buffering entries in memory.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			configureLogging(verbose)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.SetOut(os.Stdout)
	cmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")

	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewCatCmd())
	cmd.AddCommand(NewJSONCmd())

	return cmd
}

func configureLogging(verbose bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.WarnLevel)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
