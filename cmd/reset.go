package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/resilindex/internal/checkpoint"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset <document>",
	Short: "Delete the checkpoint of a document",
	Long: `Delete the checkpoint of a document so the next index run starts from the
beginning. Needed after a corrupt checkpoint or a settings change.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !resetConfirmed {
			return errors.New("refusing to delete progress without --yes")
		}

		store := checkpoint.NewStore(settings.WorkDir)
		unlock, err := store.Lock(id)
		if err != nil {
			if errors.Is(err, checkpoint.ErrLocked) {
				return fmt.Errorf("%s is being indexed by another process", id)
			}
			return err
		}
		defer unlock()

		exists, err := store.Exists(id)
		if err != nil {
			return err
		}
		if !exists {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No checkpoint for "+id))
			return nil
		}
		if err := store.Remove(id); err != nil {
			return err
		}

		logger.Info("checkpoint removed", "document", id, "path", store.Path(id))
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed checkpoint for %s\n", successStyle.Render("✓"), id)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "Confirm deletion")
	rootCmd.AddCommand(resetCmd)
}
