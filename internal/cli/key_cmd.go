package cli

import (
	"errors"
	"fmt"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/spf13/cobra"
)

// keyCmd represents the key command group
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the API key",
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		currentKey := apiKeyManager.GetCurrentKey()
		if currentKey == "" {
			return errors.New("no API key configured")
		}
		fmt.Println(currentKey)
		return nil
	},
}

var keyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Generate a new API key",
	Long:  `Generate a new API key. Clients using the old key lose access immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Current API key:")
		fmt.Println(apiKeyManager.GetCurrentKey())
		fmt.Println()

		if !confirm("Clients using the current key will be locked out. Reset the API key?") {
			fmt.Println("Cancelled.")
			return nil
		}

		newKey, err := apiKeyManager.ResetKey()
		if err != nil {
			return fmt.Errorf("reset key: %w", err)
		}
		_ = deps.Logs.LogWarn(0, models.LogModuleCLI, "key_reset", "API key reset from the command line", nil)

		fmt.Println()
		fmt.Println("New API key:")
		fmt.Println(newKey)
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyShowCmd)
	keyCmd.AddCommand(keyResetCmd)
}
