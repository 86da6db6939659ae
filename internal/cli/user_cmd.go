package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/clientcomm/core/internal/database/models"
	"github.com/clientcomm/core/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	userDepartmentID uint
	userEmailAlerts  bool
	userListDept     uint
)

// userCmd represents the user command group
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage caseworker accounts",
}

func readPassword(label string) (string, error) {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a caseworker",
	Long:  `Interactively create a caseworker account. Passwords are read without echo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := prompt("Email: ")
		if err != nil {
			return err
		}
		fullName, err := prompt("Full name: ")
		if err != nil {
			return err
		}
		phone, err := prompt("Phone number (optional): ")
		if err != nil {
			return err
		}

		password, err := readPassword("Password (at least 6 characters): ")
		if err != nil {
			return err
		}
		again, err := readPassword("Repeat password: ")
		if err != nil {
			return err
		}
		if password != again {
			return errors.New("passwords do not match")
		}

		in := services.CreateUserInput{
			Email:          email,
			Password:       password,
			FullName:       fullName,
			PhoneNumber:    phone,
			EmailSubscribe: userEmailAlerts,
		}
		if userDepartmentID != 0 {
			in.DepartmentID = &userDepartmentID
		}

		created, err := deps.Users.CreateUser(context.Background(), in)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		_ = deps.Logs.LogInfo(0, models.LogModuleCLI, "user_create", "Caseworker created", map[string]interface{}{
			"user_id": created.ID,
			"email":   created.Email,
		})

		fmt.Println()
		fmt.Println("Caseworker created:")
		fmt.Printf("  ID:    %d\n", created.ID)
		fmt.Printf("  Email: %s\n", created.Email)
		fmt.Printf("  Name:  %s\n", created.FullName)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List caseworkers",
	RunE: func(cmd *cobra.Command, args []string) error {
		var dept *uint
		if userListDept != 0 {
			dept = &userListDept
		}
		users, err := deps.Users.ListUsers(dept)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if len(users) == 0 {
			fmt.Println("No caseworkers yet.")
			return nil
		}

		fmt.Printf("%-6s %-30s %-24s %-6s %s\n", "ID", "Email", "Name", "Dept", "Active")
		for _, u := range users {
			dept := "-"
			if u.DepartmentID != nil {
				dept = fmt.Sprint(*u.DepartmentID)
			}
			fmt.Printf("%-6d %-30s %-24s %-6s %t\n", u.ID, u.Email, u.FullName, dept, u.Active)
		}
		fmt.Printf("%d caseworkers\n", len(users))
		return nil
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate USER_ID",
	Short: "Disable a caseworker's login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "user")
		if err != nil {
			return err
		}
		target, err := deps.Users.GetUserByID(id)
		if err != nil {
			return err
		}
		if !confirm(fmt.Sprintf("Deactivate %s (ID %d)?", target.Email, target.ID)) {
			fmt.Println("Cancelled.")
			return nil
		}
		if err := deps.Users.SetActive(id, false); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		_ = deps.Logs.LogWarn(0, models.LogModuleCLI, "user_deactivate", "Caseworker deactivated", map[string]interface{}{"user_id": id})
		fmt.Fprintf(os.Stdout, "%s can no longer sign in.\n", target.Email)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().UintVar(&userDepartmentID, "department", 0, "department ID")
	userCreateCmd.Flags().BoolVar(&userEmailAlerts, "email-alerts", false, "email the caseworker when clients text")
	userListCmd.Flags().UintVar(&userListDept, "department", 0, "only list this department")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeactivateCmd)
}
