package cli

import (
	"context"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/casekeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getMultiline = GetMultiline

// Login authenticates a user offline. The user id comes from args or a
// prompt; the password is always read from the terminal and wiped after
// use. The first login of a user on this device sets their password.
func (a *App) Login(ctx context.Context, args []string) error {
	var userID string
	if len(args) > 0 {
		userID = args[0]
	} else {
		var err error
		if userID, err = getSimpleText(a.reader, "Enter user id", a.out); err != nil {
			return err
		}
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Login(ctx, userID, password); err != nil {
		return err
	}

	a.println(color.GreenString("Logged in as %s", userID))
	return nil
}

// Logout ends the session. The user's data stays on the device.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return common.ErrUnauthenticated
	}
	a.auth.Logout(ctx)
	a.println("Logged out")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	uid, err := a.sessions.CurrentUserID()
	if err != nil {
		return err
	}
	a.println(uid)
	return nil
}

// Forget deletes the current user's local records and key material after
// the user retypes their id.
func (a *App) Forget(ctx context.Context) error {
	uid, err := a.sessions.CurrentUserID()
	if err != nil {
		return err
	}

	a.println(color.YellowString("This deletes every local record and queued operation of %s.", uid))
	confirm, err := getSimpleText(a.reader, "Type the user id to confirm", a.out)
	if err != nil {
		return err
	}
	if confirm != uid {
		a.println("Cancelled")
		return nil
	}

	n, err := a.auth.ClearOfflineData(ctx)
	if err != nil {
		return err
	}
	a.printf("Removed %d records, logged out\n", n)
	return nil
}
