// Envelope CLI for scripting and debugging.
//
// Reads envelope JSON from stdin, performs one operation, and writes the
// result to stdout. Useful for poking the gateway and the relay from shell
// scripts.
//
// Usage:
//
//	# Create a request envelope
//	echo '{"sender":"cli","receiver":"retrieval","payload":{"query":"hi"}}' | envelope create
//
//	# Validate an envelope
//	cat env.json | envelope validate
//
//	# Build the reply for an envelope
//	cat env.json | envelope reply
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ragmesh/ragmesh/mcp"
)

const (
	cmdCreate   = "create"
	cmdValidate = "validate"
	cmdReply    = "reply"
	cmdVersion  = "version"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "envelope %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// run executes one CLI command against the given streams.
func run(cmd string, in io.Reader, out io.Writer) error {
	switch cmd {
	case cmdVersion:
		_, err := fmt.Fprintln(out, version)
		return err
	case cmdCreate:
		return handleCreate(in, out)
	case cmdValidate:
		return handleValidate(in, out)
	case cmdReply:
		return handleReply(in, out)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type createInput struct {
	Type     string         `json:"type"`
	Sender   string         `json:"sender"`
	Receiver string         `json:"receiver"`
	Payload  map[string]any `json:"payload"`
}

func handleCreate(in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	var spec createInput
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	var env *mcp.Envelope
	switch mcp.MessageType(spec.Type) {
	case mcp.TypeBroadcast:
		env = mcp.NewBroadcast(spec.Sender, spec.Payload)
	case mcp.TypeSystem:
		env = mcp.NewSystem(spec.Receiver, spec.Payload)
	default:
		env = mcp.NewRequest(spec.Sender, spec.Receiver, spec.Payload)
	}
	if err := env.Validate(); err != nil {
		return err
	}
	return writeEnvelope(out, env)
}

func handleValidate(in io.Reader, out io.Writer) error {
	env, err := readEnvelope(in)
	if err != nil {
		return err
	}
	result := map[string]any{"valid": true}
	if err := env.Validate(); err != nil {
		result["valid"] = false
		result["error"] = err.Error()
	}
	return json.NewEncoder(out).Encode(result)
}

func handleReply(in io.Reader, out io.Writer) error {
	env, err := readEnvelope(in)
	if err != nil {
		return err
	}
	return writeEnvelope(out, env.Reply(map[string]any{}))
}

func readEnvelope(in io.Reader) (*mcp.Envelope, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	return mcp.FromJSON(data)
}

func writeEnvelope(out io.Writer, env *mcp.Envelope) error {
	data, err := env.ToJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: envelope <command>

Commands:
  create     build an envelope from {"type","sender","receiver","payload"} on stdin
  validate   check an envelope read from stdin
  reply      build the reply envelope for an envelope read from stdin
  version    print the CLI version`)
}
