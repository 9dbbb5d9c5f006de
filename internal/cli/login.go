package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidehook/authsess/pkg/authsess"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginTenant   string
	loginTOTP     string
	loginProvider string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session credential",
	Long: `Sign in with email and password, or with --provider through the system
browser. The password is read from AUTHCTL_PASSWORD or prompted on stdin.
Accounts in several organisations are prompted to pick one; use --tenant to
skip the prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cleanup, err := openSession()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		if loginProvider != "" {
			err = browserLogin(ctx, session, loginProvider)
		} else {
			err = passwordLogin(ctx, session)
		}
		if err != nil {
			var apiErr *authsess.APIError
			if ok := errors.As(err, &apiErr); ok {
				return fmt.Errorf("%s", apiErr.UserMessage())
			}
			return err
		}

		if flow, _ := session.Flow(); flow == authsess.FlowTenantSelection {
			if err := resolveSelection(ctx, session); err != nil {
				return err
			}
		}

		m := session.Membership()
		if m != nil {
			fmt.Printf("Signed in as %s (%s, %s)\n", session.Identity().Email, m.TenantName, m.Role)
		} else {
			fmt.Printf("Signed in as %s\n", session.Identity().Email)
		}
		return nil
	},
}

func passwordLogin(ctx context.Context, session *authsess.Session) error {
	email := loginEmail
	if email == "" {
		var err error
		if email, err = prompt("Email: "); err != nil {
			return err
		}
	}

	password := os.Getenv("AUTHCTL_PASSWORD")
	if password == "" {
		var err error
		if password, err = prompt("Password: "); err != nil {
			return err
		}
	}

	var opts []authsess.LoginOption
	if loginTenant != "" {
		opts = append(opts, authsess.WithTenantSlug(loginTenant))
	}
	if loginTOTP != "" {
		opts = append(opts, authsess.WithTOTP(loginTOTP))
	}
	return session.LoginWithPassword(ctx, email, password, opts...)
}

// resolveSelection prompts through a pending tenant-selection.
func resolveSelection(ctx context.Context, session *authsess.Session) error {
	sel := session.Prompt()
	if sel == nil {
		return fmt.Errorf("no pending organisation selection")
	}

	fmt.Println("Your account belongs to several organisations:")
	for i, m := range sel.Memberships {
		fmt.Printf("  %d) %s (%s)\n", i+1, m.TenantName, m.Role)
	}

	answer, err := prompt("Select: ")
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || idx < 1 || idx > len(sel.Memberships) {
		return fmt.Errorf("invalid selection %q", answer)
	}

	return session.SelectTenant(ctx, sel.SelectionToken, sel.Memberships[idx-1].TenantID)
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginTenant, "tenant", "", "organisation slug to sign into directly")
	loginCmd.Flags().StringVar(&loginTOTP, "totp", "", "one-time code for accounts with TOTP enrolled")
	loginCmd.Flags().StringVar(&loginProvider, "provider", "", "sign in through an OAuth provider (e.g. google)")
	rootCmd.AddCommand(loginCmd)
}
