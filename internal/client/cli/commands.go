package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/client/registry"
	"github.com/dmitrijs2005/preshare/internal/client/selection"
	"github.com/dmitrijs2005/preshare/internal/common"
)

// getSimpleText, getPassword and getConfirmation are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText   = GetSimpleText
	getPassword     = GetPassword
	getConfirmation = GetConfirmation
)

var (
	errNoSelection = errors.New("no record selected, use 'select <id>' or pass an id")
	errNotLoggedIn = errors.New("not logged in")
)

// Register prompts for the account fields and creates the account. The
// passwords are wiped before returning.
func (a *App) Register(ctx context.Context, args []string) error {
	username, err := a.argOrPrompt(args, 0, "Enter username")
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if err := a.sessions.Register(ctx, username, email, string(password), string(confirm)); err != nil {
		return err
	}

	printSuccess(a.out, "Account %s created, you can log in now", username)
	return nil
}

// Login prompts for credentials and starts a session.
func (a *App) Login(ctx context.Context, args []string) error {
	username, err := a.argOrPrompt(args, 0, "Enter username")
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.sessions.Login(ctx, username, string(password))
	if err != nil {
		return err
	}

	a.resetListing()
	printSuccess(a.out, "Logged in as %s", s.Identity.Username)
	return nil
}

// Logout ends the session. Local credentials are dropped even when the
// server call fails.
func (a *App) Logout(ctx context.Context, _ []string) error {
	err := a.sessions.Logout(ctx)
	a.resetListing()
	if err != nil {
		return err
	}
	printSuccess(a.out, "Logged out")
	return nil
}

func (a *App) WhoAmI(_ context.Context, _ []string) error {
	id, ok := a.sessions.CurrentIdentity()
	if !ok {
		return errNotLoggedIn
	}
	fmt.Fprintf(a.out, "  username: %s\n  email:    %s\n", id.Username, id.Email)
	if name := strings.TrimSpace(id.FirstName + " " + id.LastName); name != "" {
		fmt.Fprintf(a.out, "  name:     %s\n", name)
	}
	return nil
}

// List fetches partition p, makes it the list selection works on and
// prints it. The previous listing is closed first.
func (a *App) List(ctx context.Context, p registry.Partition) error {
	a.closeView()
	a.view = a.records.Open(ctx, p)
	items, err := a.view.Refresh()
	if err != nil {
		return err
	}
	a.partition = p
	a.listed = selection.List(items)
	a.selection.SetAvailable(a.listed)
	a.printListed()
	return nil
}

// Select toggles the selection on the given id. Without an id it shows the
// current selection.
func (a *App) Select(_ context.Context, args []string) error {
	if len(args) == 0 {
		d, ok := a.selection.Selected()
		if !ok {
			fmt.Fprintln(a.out, "Nothing selected")
			return nil
		}
		printRecord(a.out, d)
		return nil
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if !a.selection.IsSelectable(id) && a.selection.Mode() == selection.ModeStrictToggle {
		printWarn(a.out, "Record %d is not selectable while another one is selected, clearing the selection", id)
	}

	d, ok := a.selection.Toggle(id)
	if !ok {
		fmt.Fprintln(a.out, "Selection cleared")
		return nil
	}
	printSuccess(a.out, "Selected record %d", d.ID)
	return nil
}

// Upload sends a local file and creates a record owned by the caller.
func (a *App) Upload(ctx context.Context, args []string) error {
	path, err := a.argOrPrompt(args, 0, "Enter file path")
	if err != nil {
		return err
	}

	d, err := a.actions.UploadFile(ctx, path)
	if err != nil {
		return err
	}
	if a.partition == registry.Owned && a.listed != nil {
		a.listed = append(a.listed, d)
		a.selection.SetAvailable(a.listed)
	}
	printSuccess(a.out, "Uploaded as record %d", d.ID)
	printRecord(a.out, d)
	return nil
}

// Download stores the payload of the target record in the download
// directory.
func (a *App) Download(ctx context.Context, args []string) error {
	id, _, err := a.target(args)
	if err != nil {
		return err
	}
	path, err := a.actions.Download(ctx, id, a.config.DownloadDir)
	if err != nil {
		return err
	}
	printSuccess(a.out, "Saved to %s", path)
	return nil
}

// Delete destroys the target record after confirmation.
func (a *App) Delete(ctx context.Context, args []string) error {
	id, _, err := a.target(args)
	if err != nil {
		return err
	}
	ok, err := getConfirmation(a.reader, fmt.Sprintf("Delete record %d?", id), a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}

	err = a.actions.Delete(ctx, id)
	a.dropListed(id)
	if err != nil {
		return err
	}
	printSuccess(a.out, "Deleted record %d", id)
	return nil
}

func (a *App) Grant(ctx context.Context, args []string) error {
	return a.changeReaders(ctx, args, "grant", a.actions.Grant)
}

func (a *App) Revoke(ctx context.Context, args []string) error {
	return a.changeReaders(ctx, args, "revoke", a.actions.Revoke)
}

func (a *App) changeReaders(
	ctx context.Context,
	args []string,
	verb string,
	apply func(context.Context, int64, []string) (models.DataAccess, error),
) error {
	id, names, err := a.target(args)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		line, err := getSimpleText(a.reader, "Enter usernames to "+verb+" (comma separated)", a.out)
		if err != nil {
			return err
		}
		names = splitNames(line)
	}
	if len(names) == 0 {
		return fmt.Errorf("%s: no usernames given", verb)
	}

	d, err := apply(ctx, id, names)
	if d.ID != 0 {
		a.replaceListed(d)
	}
	if err != nil {
		return err
	}
	printSuccess(a.out, "Readers of record %d updated", d.ID)
	printRecord(a.out, d)
	return nil
}

// Users prints the usernames known to the server.
func (a *App) Users(ctx context.Context, _ []string) error {
	names, err := a.directory.Usernames(ctx)
	if err != nil {
		return err
	}
	headerColor.Fprintf(a.out, "Users (%d)\n", len(names))
	for _, n := range names {
		fmt.Fprintf(a.out, "  %s\n", n)
	}
	return nil
}

// target resolves the record a command works on. A leading "#<id>" or
// numeric first argument wins over the selection; the remaining arguments
// are returned.
func (a *App) target(args []string) (int64, []string, error) {
	if len(args) > 0 {
		if id, err := parseID(args[0]); err == nil {
			return id, args[1:], nil
		} else if strings.HasPrefix(args[0], "#") {
			return 0, nil, err
		}
	}
	id, ok := a.selection.SelectedID()
	if !ok {
		return 0, nil, errNoSelection
	}
	return id, args, nil
}

func (a *App) argOrPrompt(args []string, i int, prompt string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}
	return getSimpleText(a.reader, prompt, a.out)
}

func (a *App) printListed() {
	selected, has := a.selection.SelectedID()
	title := "Owned records"
	if a.partition == registry.Granted {
		title = "Granted records"
	}
	printRecords(a.out, title, a.listed, a.selection.IsSelectable, selected, has)
}

func (a *App) replaceListed(d models.DataAccess) {
	i := slices.IndexFunc(a.listed, func(x models.DataAccess) bool { return x.ID == d.ID })
	if i >= 0 {
		a.listed[i] = d.Clone()
	}
}

func (a *App) dropListed(id int64) {
	a.listed = slices.DeleteFunc(a.listed, func(x models.DataAccess) bool { return x.ID == id })
	a.selection.SetAvailable(a.listed)
}

func (a *App) closeView() {
	if a.view != nil {
		a.view.Close()
		a.view = nil
	}
}

func (a *App) resetListing() {
	a.closeView()
	a.listed = nil
	a.selection.SetAvailable(a.listed)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}
