package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/gateway"
)

var (
	successColor = color.New(color.FgGreen)
	failureColor = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgCyan, color.Bold)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, format+"\n", args...)
}

func printWarn(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, format+"\n", args...)
}

func printError(w io.Writer, err error) {
	failureColor.Fprintln(w, describeError(err))
}

// errorLabels is checked in order; ErrNotOwner must precede ErrForbidden.
var errorLabels = []struct {
	kind  error
	label string
}{
	{client.ErrPartialFailure, "Readers updated, but re-encryption keys were not refreshed"},
	{client.ErrInvalidCredentials, "Wrong username or password"},
	{client.ErrInvalidToken, "Session expired, please log in again"},
	{client.ErrNotOwner, "Only the owner can do that"},
	{client.ErrForbidden, "Access denied"},
	{client.ErrNotFound, "Record not found"},
	{client.ErrValidation, "Invalid input"},
	{client.ErrTransport, "Server unreachable"},
	{gateway.ErrUnavailable, "Re-encryption gateway unreachable"},
	{client.ErrServer, "Server error"},
}

// describeError renders err as the failure kind followed by the server's
// message when one was returned.
func describeError(err error) string {
	label := "Error"
	for _, l := range errorLabels {
		if errors.Is(err, l.kind) {
			label = l.label
			break
		}
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return label + ": " + apiErr.Message()
	}
	return label + ": " + err.Error()
}

// printRecords writes items as a table. The first column marks the
// selection: "*" selected, blank selectable, "-" not selectable.
func printRecords(w io.Writer, title string, items []models.DataAccess, selectable func(int64) bool, selected int64, hasSelected bool) {
	headerColor.Fprintf(w, "%s (%d)\n", title, len(items))
	if len(items) == 0 {
		fmt.Fprintln(w, "  no records")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tDATA\tOWNER\tREADERS")
	for _, d := range items {
		mark := " "
		switch {
		case hasSelected && d.ID == selected:
			mark = "*"
		case !selectable(d.ID):
			mark = "-"
		}
		readers := strings.Join(d.Readers, ", ")
		if readers == "" {
			readers = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", mark, d.ID, d.DataID, d.Owner, readers)
	}
	tw.Flush()
}

func printRecord(w io.Writer, d models.DataAccess) {
	readers := strings.Join(d.Readers, ", ")
	if readers == "" {
		readers = "(none)"
	}
	fmt.Fprintf(w, "  id:      %d\n  data:    %d\n  owner:   %s\n  readers: %s\n", d.ID, d.DataID, d.Owner, readers)
}
