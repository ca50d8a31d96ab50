package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	coretree "github.com/malt3/abstractfs-core/tree"
	"github.com/spf13/cobra"
)

// NewJSONCmd creates a new json command.
func NewJSONCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "json",
		Short: "Converts a tar archive to a json file tree",
		Long:  "Converts a tar archive to a json file tree. Regular files are identified by the sri of their content.",
		Args:  cobra.ExactArgs(0),
		RunE:  runJSON,
	}

	addArchiveFlags(cmd)
	cmd.Flags().String("out", "", "Optional path to write the result to. If not set, the result is written to stdout.")

	return cmd
}

func runJSON(cmd *cobra.Command, args []string) error {
	flags, err := parseJSONFlags(cmd)
	if err != nil {
		return err
	}

	source, closeSource, err := getSource(flags.archiveFlags)
	if err != nil {
		return err
	}
	defer closeSource()

	tree, err := coretree.FromSource(source)
	if err != nil {
		return fmt.Errorf("json: reading archive: %w", err)
	}

	flat := coretree.Flatten(tree)

	out := cmd.OutOrStdout()
	if len(flags.Out) > 0 {
		outF, err := os.Create(flags.Out)
		if err != nil {
			return fmt.Errorf("json: opening output file: %w", err)
		}
		defer outF.Close()
		out = outF
	}
	return json.NewEncoder(out).Encode(flat.Files)
}

type jsonFlags struct {
	archiveFlags
	Out string
}

func parseJSONFlags(cmd *cobra.Command) (jsonFlags, error) {
	archive, err := parseArchiveFlags(cmd)
	if err != nil {
		return jsonFlags{}, err
	}
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return jsonFlags{}, err
	}

	return jsonFlags{
		archiveFlags: archive,
		Out:          out,
	}, nil
}
