// Package authsess is a client-side authentication session manager for
// multi-tenant backends.
//
// A Session owns the full authentication lifecycle: password and OAuth
// sign-in, tenant selection and switching, credential persistence through a
// credstore.Store, proactive renewal ahead of expiry, and a renew-and-retry
// gateway for authenticated API calls. All mutable state lives on the one
// Session instance; observers follow along through Subscribe.
//
// Typical wiring:
//
//	client, err := authsess.NewClient(authsess.Config{
//		BaseURL:  "https://api.example.com",
//		Platform: "cli",
//	})
//	if err != nil {
//		return err
//	}
//	driver, err := credstore.NewFile(path)
//	if err != nil {
//		return err
//	}
//	session := authsess.NewSession(client, credstore.New(driver))
//	if !session.Restore(ctx) {
//		err = session.LoginWithPassword(ctx, email, password)
//	}
package authsess
