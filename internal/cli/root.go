// Package cli implements the authctl command tree. Each subcommand builds a
// session over the encrypted on-disk credential store, so credentials
// established by one invocation carry over to the next.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidehook/authsess/pkg/authsess"
	"github.com/tidehook/authsess/pkg/credstore"
	"github.com/tidehook/authsess/pkg/cryptox"
	"github.com/tidehook/authsess/pkg/slogx"

	"github.com/spf13/cobra"
)

// Exit codes, for scripting against authctl.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no session and no restorable credential.
	ExitCodeAuthRequired = 2
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "Manage authentication sessions from the terminal",
	Long: `authctl signs in against the configured identity provider, stores the
renewal credential encrypted on disk, and keeps the session alive across
invocations. Set AUTHCTL_BASE_URL to the provider and, for encrypted
storage, AUTHCTL_STORE_PASSPHRASE.`,
	SilenceUsage: true,
}

// Execute runs the command tree and maps errors to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var apiErr *authsess.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case authsess.KindInvalidCredentials, authsess.KindInvalidToken:
			return ExitCodeAuthRequired
		}
	}
	return ExitCodeError
}

// openSession builds the session every subcommand works through. The store
// lives at the configured path; with a passphrase set, records on disk are
// sealed.
func openSession() (*authsess.Session, func(), error) {
	cfg := LoadConfig()
	if cfg.BaseURL == "" {
		return nil, nil, fmt.Errorf("AUTHCTL_BASE_URL is not set")
	}

	logger := slogx.New(slogx.Config{
		Service: "authctl",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  os.Stderr,
	})

	if err := os.MkdirAll(filepath.Dir(cfg.CredentialsFile), 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare credentials directory: %w", err)
	}

	var opts []credstore.FileOption
	if cfg.StorePassphrase != "" {
		box, err := cryptox.NewSealBox(cfg.StorePassphrase)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, credstore.WithSealBox(box))
	}
	driver, err := credstore.NewFile(cfg.CredentialsFile, opts...)
	if err != nil {
		return nil, nil, err
	}
	store := credstore.New(driver)

	client, err := authsess.NewClient(authsess.Config{
		BaseURL:      cfg.BaseURL,
		Platform:     cfg.Platform,
		Providers:    cfg.Providers,
		OAuthTimeout: cfg.OAuthTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}

	session := authsess.NewSession(client, store)
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close credential store", "error", err)
		}
	}
	return session, cleanup, nil
}

// requireSession restores an existing session or fails with an
// authentication-required error.
func requireSession(ctx context.Context) (*authsess.Session, func(), error) {
	session, cleanup, err := openSession()
	if err != nil {
		return nil, nil, err
	}
	if !session.Restore(ctx) {
		cleanup()
		return nil, nil, &authsess.APIError{
			Kind:    authsess.KindInvalidToken,
			Message: "not signed in; run `authctl login` first",
		}
	}
	return session, cleanup, nil
}
