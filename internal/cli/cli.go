package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/clientcomm/core/internal/api/middleware"
	"github.com/clientcomm/core/internal/config"
	"github.com/clientcomm/core/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// Deps are the services the admin commands operate on
type Deps struct {
	DB          *gorm.DB
	Config      *config.Config
	Users       *services.UserService
	Departments *services.DepartmentService
	Court       *services.CourtReminderService
	Logs        *services.LogService
}

var (
	deps          Deps
	apiKeyManager *middleware.APIKeyManager
	stdin         = bufio.NewReader(os.Stdin)
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "clientcomm",
	Short: "ClientComm server and admin tools",
	Long: `ClientComm lets caseworkers text with the clients on their caseload.

Run without arguments to start the server. Admin commands:
  clientcomm key show|reset
  clientcomm user create|list|deactivate
  clientcomm department create|list|set-unclaimed
  clientcomm court import --dates FILE --locations FILE`,
	SilenceUsage: true,
}

// Execute runs the CLI with the provided services
func Execute(d Deps) {
	deps = d

	var err error
	apiKeyManager, err = middleware.NewAPIKeyManager(d.Config.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot initialize API key manager: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(departmentCmd)
	rootCmd.AddCommand(courtCmd)
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func confirm(label string) bool {
	answer, err := prompt(label + " (yes/no): ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func parseID(arg, what string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return uint(id), nil
}
