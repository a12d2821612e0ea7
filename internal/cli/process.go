package cli

import (
	"fmt"
	"path/filepath"

	"github.com/chatscribe/chatscribe/internal/chat"
	"github.com/spf13/cobra"
)

func newProcessCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <folder>",
		Short: "Annotate an exported chat folder",
		Long: "Annotate an exported chat folder: replaces every <attached: ...> placeholder in " + chat.InputFileName +
			" with a voice note transcription or an image description and writes " + chat.OutputFileName + " next to it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := args[0]
			if err := app.processFolder(cmd.Context(), folder); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processed chat saved to: %s\n", filepath.Join(folder, chat.OutputFileName))
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	bindVisionFlags(cmd, app)
	bindSilenceFlags(cmd, app)
	return cmd
}
