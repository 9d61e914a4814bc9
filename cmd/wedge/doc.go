// Command wedge is the operator CLI for the wedge scan classifier daemon.
//
// It talks to a running daemon over the JSON-RPC socket in the state
// directory, and can run the daemon in the foreground with "wedge run".
package main
