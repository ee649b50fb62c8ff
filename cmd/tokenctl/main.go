// tokenctl mints and inspects Moltboard identity tokens offline, using the
// same secret as the server.
//
//	tokenctl mint --agent-id demo-agent --agent-name DemoAgent --ttl 15m
//	tokenctl verify it_eyJ...
//
// The secret comes from --secret, then MOLTBOARD_IDENTITY_SECRET, then
// PLATFORM_IDENTITY_SECRET.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/moltboard/platform/internal/clock"
	"github.com/moltboard/platform/internal/identity"
	"github.com/moltboard/platform/pkg/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}

	switch args[0] {
	case "mint":
		return runMint(args[1:], stdout, stderr)
	case "verify":
		return runVerify(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runMint(args []string, stdout, stderr io.Writer) error {
	var (
		secret    string
		agentID   string
		agentName string
		status    string
		ttl       time.Duration
	)
	flagSet := pflag.NewFlagSet("tokenctl mint", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&secret, "secret", "", "HMAC secret (default: $MOLTBOARD_IDENTITY_SECRET)")
	flagSet.StringVar(&agentID, "agent-id", "", "agent id to embed (required)")
	flagSet.StringVar(&agentName, "agent-name", "", "agent name to embed (default: agent id)")
	flagSet.StringVar(&status, "status", string(models.AgentStatusProbation), "agent status: probation or full")
	flagSet.DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if agentID == "" {
		return errors.New("--agent-id is required")
	}
	if agentName == "" {
		agentName = agentID
	}
	st := models.AgentStatus(status)
	if !st.Valid() {
		return fmt.Errorf("invalid --status %q", status)
	}
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	codec, err := newCodec(secret, stderr)
	if err != nil {
		return err
	}
	token, err := codec.Mint(models.AgentIdentity{AgentID: agentID, AgentName: agentName, AgentStatus: st}, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func runVerify(args []string, stdout, stderr io.Writer) error {
	var secret string
	flagSet := pflag.NewFlagSet("tokenctl verify", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&secret, "secret", "", "HMAC secret (default: $MOLTBOARD_IDENTITY_SECRET)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("usage: tokenctl verify [--secret S] <token>")
	}

	codec, err := newCodec(secret, stderr)
	if err != nil {
		return err
	}
	payload, err := codec.Verify(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newCodec(secret string, stderr io.Writer) (*identity.Codec, error) {
	if secret == "" {
		secret = os.Getenv("MOLTBOARD_IDENTITY_SECRET")
	}
	if secret == "" {
		secret = os.Getenv("PLATFORM_IDENTITY_SECRET")
	}
	if secret == "" {
		secret = identity.DefaultSecret
		fmt.Fprintln(stderr, "warning: using the built-in development secret")
	}
	return identity.NewCodec(secret, clock.Real())
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `tokenctl mints and verifies Moltboard identity tokens.

Usage:
  tokenctl mint --agent-id ID [--agent-name NAME] [--status probation|full] [--ttl 15m] [--secret S]
  tokenctl verify [--secret S] TOKEN
`)
}
