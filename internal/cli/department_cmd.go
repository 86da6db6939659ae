package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	deptName              string
	deptPhone             string
	deptUnclaimedResponse string
)

var departmentCmd = &cobra.Command{
	Use:   "department",
	Short: "Manage departments",
}

var departmentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a department",
	RunE: func(cmd *cobra.Command, args []string) error {
		if deptPhone == "" {
			return errors.New("--phone is required")
		}
		dept, err := deps.Departments.Create(deptName, deptPhone, deptUnclaimedResponse)
		if err != nil {
			return fmt.Errorf("create department: %w", err)
		}
		fmt.Printf("Department %d created: %s (%s)\n", dept.ID, dept.Name, dept.PhoneNumber)
		return nil
	},
}

var departmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List departments",
	RunE: func(cmd *cobra.Command, args []string) error {
		depts, err := deps.Departments.List()
		if err != nil {
			return fmt.Errorf("list departments: %w", err)
		}
		if len(depts) == 0 {
			fmt.Println("No departments yet.")
			return nil
		}
		fmt.Printf("%-6s %-24s %-16s %s\n", "ID", "Name", "Phone", "Unclaimed user")
		for _, d := range depts {
			unclaimed := "-"
			if d.UnclaimedUserID != nil {
				unclaimed = fmt.Sprint(*d.UnclaimedUserID)
			}
			fmt.Printf("%-6d %-24s %-16s %s\n", d.ID, d.Name, d.PhoneNumber, unclaimed)
		}
		return nil
	},
}

var departmentSetUnclaimedCmd = &cobra.Command{
	Use:   "set-unclaimed DEPARTMENT_ID USER_ID",
	Short: "Route messages from unassigned clients to a caseworker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		deptID, err := parseID(args[0], "department")
		if err != nil {
			return err
		}
		userID, err := parseID(args[1], "user")
		if err != nil {
			return err
		}
		if err := deps.Departments.SetUnclaimedUser(deptID, userID); err != nil {
			return fmt.Errorf("set unclaimed user: %w", err)
		}
		fmt.Printf("User %d now receives unclaimed messages for department %d\n", userID, deptID)
		return nil
	},
}

func init() {
	departmentCreateCmd.Flags().StringVar(&deptName, "name", "", "department name")
	departmentCreateCmd.Flags().StringVar(&deptPhone, "phone", "", "provider phone number clients text, in E.164")
	departmentCreateCmd.Flags().StringVar(&deptUnclaimedResponse, "unclaimed-response", "", "auto-reply sent to clients nobody owns")

	departmentCmd.AddCommand(departmentCreateCmd)
	departmentCmd.AddCommand(departmentListCmd)
	departmentCmd.AddCommand(departmentSetUnclaimedCmd)
}
