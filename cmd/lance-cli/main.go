package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"lancechain/config"
)

// cliOptions are the global flags accepted before the command name.
type cliOptions struct {
	endpoint string
	token    string
	output   string
	chainID  uint64
}

func defaultOptions(lookup func(string) (string, bool)) cliOptions {
	opts := cliOptions{
		endpoint: "http://localhost" + config.DefaultRPCAddress,
		output:   "json",
		chainID:  config.DefaultChainID,
	}
	if v, ok := lookup("LANCE_RPC_URL"); ok && strings.TrimSpace(v) != "" {
		opts.endpoint = strings.TrimSpace(v)
	}
	if v, ok := lookup("LANCE_RPC_TOKEN"); ok {
		opts.token = strings.TrimSpace(v)
	}
	if v, ok := lookup("LANCE_CHAIN_ID"); ok {
		if id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64); err == nil && id > 0 {
			opts.chainID = id
		}
	}
	return opts
}

// applyGlobalFlags strips --rpc, --token, --output and --chain-id from args.
func applyGlobalFlags(args []string, opts *cliOptions) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, inline := strings.Cut(arg, "=")
		switch name {
		case "--rpc", "--token", "--output", "--chain-id":
		default:
			out = append(out, arg)
			continue
		}
		if !inline {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", name)
			}
			value = args[i+1]
			i++
		}
		switch name {
		case "--rpc":
			opts.endpoint = value
		case "--token":
			opts.token = value
		case "--output":
			value = strings.ToLower(strings.TrimSpace(value))
			if value != "json" && value != "yaml" {
				return nil, fmt.Errorf("--output must be json or yaml")
			}
			opts.output = value
		case "--chain-id":
			id, err := strconv.ParseUint(value, 10, 64)
			if err != nil || id == 0 {
				return nil, fmt.Errorf("--chain-id must be a positive integer")
			}
			opts.chainID = id
		}
	}
	return out, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts := defaultOptions(os.LookupEnv)
	args, err := applyGlobalFlags(args, &opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	app := newApp(opts, stdout, stderr)

	switch args[0] {
	case "generate-key":
		return app.runGenerateKey(args[1:])
	case "address":
		return app.runAddress(args[1:])
	case "balance":
		return app.runBalance(args[1:])
	case "transfer":
		return app.runTransfer(args[1:])
	case "client":
		return app.runRegistry("client", args[1:])
	case "contractor":
		return app.runRegistry("contractor", args[1:])
	case "contract":
		return app.runContractCommand(args[1:])
	case "proposal":
		return app.runProposalCommand(args[1:])
	case "receipt":
		return app.runReceipt(args[1:])
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, strings.TrimSpace(`Usage:
  lance-cli [--rpc URL] [--token JWT] [--chain-id N] [--output json|yaml] <command> [flags]

Commands:
  generate-key --out FILE [--keystore]      Create a key (hex, or v3 keystore)
  address --kind KIND [...]                 Derive a record address offline
  balance ADDRESS                           Show an account
  transfer --key FILE --to ADDR --amount N  Move native units
  client init --key FILE                    Create the caller's client registry
  contractor init --key FILE                Create the caller's contractor registry
  contract create --key FILE --title T --topic T
  contract get ADDRESS
  contract list [--client REG] [--status S] [--limit N]
  contract choose --key FILE --contract ADDR --proposal ADDR
  contract done --key FILE --contract ADDR
  contract claim --key FILE --contract ADDR
  proposal create --key FILE --contract ADDR --amount N
  proposal update --key FILE --proposal ADDR --amount N
  proposal get ADDRESS
  proposal list [--contract ADDR] [--contractor REG] [--limit N]
  receipt TX_HASH

Keystore passphrases are read from LANCE_KEY_PASS or prompted for.`))
}
