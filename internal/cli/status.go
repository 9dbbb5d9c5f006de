package cli

import (
	"fmt"
	"time"

	"github.com/tidehook/authsess/pkg/jwtx"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cleanup, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		identity := session.Identity()
		fmt.Printf("Email:    %s\n", identity.Email)
		fmt.Printf("Account:  %s\n", identity.ID)

		if m := session.Membership(); m != nil {
			fmt.Printf("Tenant:   %s (%s)\n", m.TenantName, m.TenantID)
			fmt.Printf("Role:     %s\n", m.Role)
		} else {
			fmt.Println("Tenant:   none selected")
		}

		// Advisory only; the provider is the authority on expiry.
		if claims, err := jwtx.Peek(session.AccessCredential()); err == nil {
			if remaining := claims.ExpiresIn(time.Now()); remaining > 0 {
				fmt.Printf("Expires:  in %s\n", remaining.Round(time.Second))
			}
		}
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <tenant-id>",
	Short: "Switch the session to another organisation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cleanup, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if err := session.SwitchTenant(cmd.Context(), args[0]); err != nil {
			return err
		}
		m := session.Membership()
		fmt.Printf("Switched to %s (%s)\n", m.TenantName, m.Role)
		return nil
	},
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List the organisations this account belongs to",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cleanup, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		memberships, err := session.Memberships(cmd.Context())
		if err != nil {
			return err
		}
		current := session.Membership()
		for _, m := range memberships {
			marker := " "
			if current != nil && current.TenantID == m.TenantID {
				marker = "*"
			}
			fmt.Printf("%s %s\t%s\t%s\t%s\n", marker, m.TenantID, m.TenantName, m.Role, m.Status)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cleanup, err := openSession()
		if err != nil {
			return err
		}
		defer cleanup()

		session.Logout(cmd.Context())
		fmt.Println("Signed out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(tenantsCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(logoutCmd)
}
