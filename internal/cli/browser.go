package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"

	"github.com/tidehook/authsess/pkg/authsess"
)

// browserLogin runs the externalized OAuth flow: a loopback listener receives
// the provider redirect, relays it to the session as a completion message,
// and the session finishes the exchange.
func browserLogin(ctx context.Context, session *authsess.Session, provider string) error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start loopback listener: %w", err)
	}
	defer listener.Close()

	origin := "http://" + listener.Addr().String()

	intent, err := session.BeginOAuth(provider, origin+"/done")
	if err != nil {
		return err
	}

	inbox := make(chan authsess.OAuthMessage, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		select {
		case inbox <- authsess.OAuthMessage{
			Origin:   origin,
			Provider: provider,
			Code:     query.Get("code"),
			State:    query.Get("state"),
		}:
		default:
		}
		fmt.Fprintln(w, "Sign-in complete. You can close this window.")
	})}
	go func() { _ = server.Serve(listener) }()
	defer server.Close()

	fmt.Printf("Opening your browser to sign in with %s...\n", provider)
	if err := openBrowser(intent.AuthURL); err != nil {
		fmt.Printf("Could not open a browser. Visit:\n\n  %s\n\n", intent.AuthURL)
	}

	return session.AwaitOAuthMessage(ctx, inbox, origin)
}

// openBrowser opens url in the default web browser on Linux, macOS and
// Windows.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
