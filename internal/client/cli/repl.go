package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/preshare/internal/client/registry"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// errorFn reports a failed command. In tests, replace it with a stub.
var errorFn = func(err error) { printError(os.Stdout, err) }

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	WhoAmI(ctx context.Context, args []string) error
	List(ctx context.Context, p registry.Partition) error
	Select(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	Download(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Grant(ctx context.Context, args []string) error
	Revoke(ctx context.Context, args []string) error
	Users(ctx context.Context, args []string) error
}

const (
	anonymousHelp = `Available commands:
  register [username]        create an account
  login [username]           authenticate
  help                       show this help
  exit | quit                leave the program`

	authenticatedHelp = `Available commands:
  owned | granted            list your records or records shared with you
  select [id]                toggle the selection on a listed record
  upload [path]              upload a file as a new record
  download [id]              save the payload of a record
  delete [id]                delete a record you own
  grant [#id] <user>...      let users read a record you own
  revoke [#id] <user>...     withdraw read access
  users                      list known usernames
  whoami                     show the current user
  logout                     end the session
  help                       show this help
  exit | quit                leave the program
Without an id, record commands use the selected record.`
)

// runREPL starts a simple read-eval-print loop for the preshare CLI.
//
// It reads a line from in, parses the first token as the
// command and passes the remaining tokens to the matching method on a.
// Commands that need a session are refused while anonymous. Errors returned
// by handlers are reported through errorFn and the loop continues. The loop
// exits on EOF, context cancellation, or when the user types "exit"
// or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("preshare (%s)> ", statusFn()))
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(authenticatedHelp)
			} else {
				printlnFn(anonymousHelp)
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "register":
			report(a.Register(ctx, args))
			continue
		case "login":
			report(a.Login(ctx, args))
			continue
		}

		if !a.isLoggedIn() {
			if isSessionCommand(cmd) {
				printlnFn("Please log in first")
			} else {
				printlnFn("Unknown command:", cmd)
			}
			continue
		}

		switch cmd {
		case "logout":
			report(a.Logout(ctx, args))
		case "whoami":
			report(a.WhoAmI(ctx, args))
		case "owned", "ls":
			report(a.List(ctx, registry.Owned))
		case "granted":
			report(a.List(ctx, registry.Granted))
		case "select", "sel":
			report(a.Select(ctx, args))
		case "upload":
			report(a.Upload(ctx, args))
		case "download":
			report(a.Download(ctx, args))
		case "delete", "rm":
			report(a.Delete(ctx, args))
		case "grant":
			report(a.Grant(ctx, args))
		case "revoke":
			report(a.Revoke(ctx, args))
		case "users":
			report(a.Users(ctx, args))
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

var sessionCommands = map[string]bool{
	"logout": true, "whoami": true, "owned": true, "ls": true, "granted": true,
	"select": true, "sel": true, "upload": true, "download": true, "delete": true,
	"rm": true, "grant": true, "revoke": true, "users": true,
}

func isSessionCommand(cmd string) bool { return sessionCommands[cmd] }

func report(err error) {
	if err != nil {
		errorFn(err)
	}
}
