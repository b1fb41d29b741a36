// Package cli provides the interactive preshare command-line client.
//
// It wires configuration, the local session store, the REST client, the
// optional re-encryption gateway and an interactive REPL. Typical flow: the
// persisted session is restored, the user lists owned or granted records,
// selects one and grants, revokes, downloads or deletes it.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See Build, App and runREPL for details.
package cli
