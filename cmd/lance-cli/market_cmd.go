package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"lancechain/cmd/internal/passphrase"
	"lancechain/core/types"
	"lancechain/crypto"
	"lancechain/native/marketplace"
	"lancechain/rpc"
)

type app struct {
	opts   cliOptions
	client *rpcClient
	stdout io.Writer
	stderr io.Writer
	pass   func() (string, error)
}

func newApp(opts cliOptions, stdout, stderr io.Writer) *app {
	return &app{
		opts:   opts,
		client: newRPCClient(opts.endpoint, opts.token),
		stdout: stdout,
		stderr: stderr,
		pass:   passphrase.NewSource(keyPassEnv, "key").Get,
	}
}

var errUsage = errors.New("usage")

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parse parses args and rejects stray positional arguments beyond want.
func (a *app) parse(fs *flag.FlagSet, args []string, want int) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != want {
		if want == 0 {
			return fmt.Errorf("unexpected positional arguments")
		}
		return fmt.Errorf("expected %d positional argument(s)", want)
	}
	return nil
}

func (a *app) fail(err error) int {
	if !errors.Is(err, errUsage) {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	return 1
}

func (a *app) emit(result json.RawMessage) int {
	if err := writeResult(a.stdout, a.opts.output, result); err != nil {
		return a.fail(err)
	}
	return 0
}

func (a *app) emitValue(v interface{}) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return a.fail(err)
	}
	return a.emit(raw)
}

func (a *app) query(method string, params ...interface{}) int {
	result, err := a.client.call(method, nil, params...)
	if err != nil {
		return a.fail(err)
	}
	return a.emit(result)
}

func parseAddressFlag(name, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := crypto.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return addr, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

// submit signs payload with the key at keyPath at the signer's next nonce and
// prints the receipt.
func (a *app) submit(keyPath string, txType types.TxType, payload interface{}) int {
	key, err := loadKey(keyPath, a.pass)
	if err != nil {
		return a.fail(err)
	}
	return a.submitWith(key, txType, payload)
}

func (a *app) submitWith(key *crypto.PrivateKey, txType types.TxType, payload interface{}) int {
	signer := key.PubKey().Address()
	var nonce uint64
	if _, err := a.client.call("market_getNonce", &nonce, signer.String()); err != nil {
		return a.fail(fmt.Errorf("fetch nonce: %w", err))
	}
	tx, err := types.NewTransaction(a.opts.chainID, txType, nonce, payload)
	if err != nil {
		return a.fail(err)
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return a.fail(err)
	}
	return a.query("market_sendTransaction", tx)
}

func (a *app) runGenerateKey(args []string) int {
	fs := a.flagSet("generate-key")
	out := fs.String("out", "", "file to write the new key to")
	keystore := fs.Bool("keystore", false, "encrypt the key as a v3 keystore")
	if err := a.parse(fs, args, 0); err != nil {
		return a.fail(err)
	}
	if strings.TrimSpace(*out) == "" {
		return a.fail(fmt.Errorf("--out is required"))
	}
	key, err := writeNewKey(*out, *keystore, a.pass)
	if err != nil {
		return a.fail(err)
	}
	return a.emitValue(map[string]string{"address": key.PubKey().Address().String(), "file": *out})
}

// deriveRecordAddress computes a record address without contacting a node.
func deriveRecordAddress(kind, identity, registry, contract string, id uint64) ([20]byte, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client", "contractor":
		owner, err := parseAddressFlag("identity", identity)
		if err != nil {
			return owner, err
		}
		if strings.EqualFold(kind, "client") {
			return marketplace.ClientAddress(owner), nil
		}
		return marketplace.ContractorAddress(owner), nil
	case "contract", "proposal":
		reg, err := parseAddressFlag("registry", registry)
		if err != nil {
			return reg, err
		}
		if strings.EqualFold(kind, "contract") {
			return marketplace.ContractAddress(reg, id), nil
		}
		return marketplace.ProposalAddress(reg, id), nil
	case "vault":
		c, err := parseAddressFlag("contract", contract)
		if err != nil {
			return c, err
		}
		return marketplace.VaultAddress(c), nil
	}
	return [20]byte{}, fmt.Errorf("--kind must be one of client, contractor, contract, proposal, vault")
}

func (a *app) runAddress(args []string) int {
	fs := a.flagSet("address")
	kind := fs.String("kind", "", "client, contractor, contract, proposal or vault")
	identity := fs.String("identity", "", "owner identity (client, contractor)")
	registry := fs.String("registry", "", "registry record (contract, proposal)")
	id := fs.Uint64("id", 0, "counter value (contract, proposal)")
	contract := fs.String("contract", "", "contract record (vault)")
	if err := a.parse(fs, args, 0); err != nil {
		return a.fail(err)
	}
	addr, err := deriveRecordAddress(*kind, *identity, *registry, *contract, *id)
	if err != nil {
		return a.fail(err)
	}
	return a.emitValue(map[string]string{"address": crypto.FromArray(addr).String()})
}

func (a *app) runBalance(args []string) int {
	if len(args) != 1 {
		return a.fail(fmt.Errorf("usage: balance ADDRESS"))
	}
	return a.query("market_getAccount", args[0])
}

func (a *app) runReceipt(args []string) int {
	if len(args) != 1 {
		return a.fail(fmt.Errorf("usage: receipt TX_HASH"))
	}
	return a.query("market_getReceipt", args[0])
}

func (a *app) runTransfer(args []string) int {
	fs := a.flagSet("transfer")
	keyPath := fs.String("key", "", "sender key file")
	to := fs.String("to", "", "recipient address")
	amount := fs.Uint64("amount", 0, "native units to send")
	if err := a.parse(fs, args, 0); err != nil {
		return a.fail(err)
	}
	recipient, err := parseAddressFlag("to", *to)
	if err != nil {
		return a.fail(err)
	}
	if *amount == 0 {
		return a.fail(fmt.Errorf("--amount must be positive"))
	}
	return a.submit(*keyPath, types.TxTypeTransfer, types.TransferPayload{To: recipient, Amount: *amount})
}

func (a *app) runRegistry(kind string, args []string) int {
	if len(args) == 0 {
		return a.fail(fmt.Errorf("usage: %s init --key FILE | %s get ADDRESS", kind, kind))
	}
	switch args[0] {
	case "init":
		fs := a.flagSet(kind + " init")
		keyPath := fs.String("key", "", "owner key file")
		if err := a.parse(fs, args[1:], 0); err != nil {
			return a.fail(err)
		}
		txType := types.TxTypeInitializeClient
		if kind == "contractor" {
			txType = types.TxTypeInitializeContractor
		}
		return a.submit(*keyPath, txType, nil)
	case "get":
		if len(args) != 2 {
			return a.fail(fmt.Errorf("usage: %s get ADDRESS", kind))
		}
		method := "market_getClient"
		if kind == "contractor" {
			method = "market_getContractor"
		}
		return a.query(method, args[1])
	}
	return a.fail(fmt.Errorf("unknown %s subcommand %q", kind, args[0]))
}

func (a *app) runContractCommand(args []string) int {
	if len(args) == 0 {
		return a.fail(fmt.Errorf("usage: contract create|get|list|choose|done|claim"))
	}
	rest := args[1:]
	switch args[0] {
	case "create":
		fs := a.flagSet("contract create")
		keyPath := fs.String("key", "", "client key file")
		title := fs.String("title", "", "contract title")
		topic := fs.String("topic", "", "contract description")
		if err := a.parse(fs, rest, 0); err != nil {
			return a.fail(err)
		}
		key, err := loadKey(*keyPath, a.pass)
		if err != nil {
			return a.fail(err)
		}
		return a.submitWith(key, types.TxTypeInitializeContract, types.InitializeContractPayload{
			ClientAccount: marketplace.ClientAddress(key.PubKey().Address().Array()),
			Title:         *title,
			Topic:         *topic,
		})
	case "get":
		if len(rest) != 1 {
			return a.fail(fmt.Errorf("usage: contract get ADDRESS"))
		}
		return a.query("market_getContract", rest[0])
	case "list":
		fs := a.flagSet("contract list")
		client := fs.String("client", "", "client registry filter")
		status := fs.String("status", "", "opened, accepted or closed")
		limit := fs.Int("limit", 0, "maximum results")
		if err := a.parse(fs, rest, 0); err != nil {
			return a.fail(err)
		}
		return a.query("market_listContracts", map[string]interface{}{"client": *client, "status": *status, "limit": *limit})
	case "choose":
		return a.runChoose(rest)
	case "done":
		fs := a.flagSet("contract done")
		keyPath := fs.String("key", "", "contractor key file")
		contract := fs.String("contract", "", "contract address")
		if err := a.parse(fs, rest, 0); err != nil {
			return a.fail(err)
		}
		contractAddr, err := parseAddressFlag("contract", *contract)
		if err != nil {
			return a.fail(err)
		}
		key, err := loadKey(*keyPath, a.pass)
		if err != nil {
			return a.fail(err)
		}
		return a.submitWith(key, types.TxTypeMarkWorkDone, types.MarkWorkDonePayload{
			ContractorAccount: marketplace.ContractorAddress(key.PubKey().Address().Array()),
			Contract:          contractAddr,
		})
	case "claim":
		return a.runClaim(rest)
	}
	return a.fail(fmt.Errorf("unknown contract subcommand %q", args[0]))
}

func (a *app) runChoose(args []string) int {
	fs := a.flagSet("contract choose")
	keyPath := fs.String("key", "", "client key file")
	contract := fs.String("contract", "", "contract address")
	proposal := fs.String("proposal", "", "proposal address")
	if err := a.parse(fs, args, 0); err != nil {
		return a.fail(err)
	}
	contractAddr, err := parseAddressFlag("contract", *contract)
	if err != nil {
		return a.fail(err)
	}
	proposalAddr, err := parseAddressFlag("proposal", *proposal)
	if err != nil {
		return a.fail(err)
	}
	var p rpc.ProposalResult
	if _, err := a.client.call("market_getProposal", &p, *proposal); err != nil {
		return a.fail(fmt.Errorf("fetch proposal: %w", err))
	}
	contractorReg, err := crypto.ParseAddress(p.Contractor)
	if err != nil {
		return a.fail(err)
	}
	key, err := loadKey(*keyPath, a.pass)
	if err != nil {
		return a.fail(err)
	}
	return a.submitWith(key, types.TxTypeChooseProposal, types.ChooseProposalPayload{
		ClientAccount:     marketplace.ClientAddress(key.PubKey().Address().Array()),
		Contract:          contractAddr,
		Proposal:          proposalAddr,
		ContractorAccount: contractorReg,
	})
}

func (a *app) runClaim(args []string) int {
	fs := a.flagSet("contract claim")
	keyPath := fs.String("key", "", "client key file")
	contract := fs.String("contract", "", "contract address")
	if err := a.parse(fs, args, 0); err != nil {
		return a.fail(err)
	}
	contractAddr, err := parseAddressFlag("contract", *contract)
	if err != nil {
		return a.fail(err)
	}
	var c rpc.ContractResult
	if _, err := a.client.call("market_getContract", &c, *contract); err != nil {
		return a.fail(fmt.Errorf("fetch contract: %w", err))
	}
	if c.Contractor == nil {
		return a.fail(fmt.Errorf("contract %s has no accepted contractor", *contract))
	}
	var reg rpc.RegistryResult
	if _, err := a.client.call("market_getContractor", &reg, *c.Contractor); err != nil {
		return a.fail(fmt.Errorf("fetch contractor: %w", err))
	}
	contractorReg, err := crypto.ParseAddress(*c.Contractor)
	if err != nil {
		return a.fail(err)
	}
	contractor, err := crypto.ParseAddress(reg.Owner)
	if err != nil {
		return a.fail(err)
	}
	key, err := loadKey(*keyPath, a.pass)
	if err != nil {
		return a.fail(err)
	}
	return a.submitWith(key, types.TxTypeClaimPayment, types.ClaimPaymentPayload{
		ClientAccount:     marketplace.ClientAddress(key.PubKey().Address().Array()),
		Contractor:        contractor,
		ContractorAccount: contractorReg,
		Contract:          contractAddr,
		Vault:             marketplace.VaultAddress(contractAddr),
	})
}

func (a *app) runProposalCommand(args []string) int {
	if len(args) == 0 {
		return a.fail(fmt.Errorf("usage: proposal create|update|get|list"))
	}
	rest := args[1:]
	switch args[0] {
	case "create":
		fs := a.flagSet("proposal create")
		keyPath := fs.String("key", "", "contractor key file")
		contract := fs.String("contract", "", "contract address")
		amount := fs.Uint64("amount", 0, "requested native units")
		if err := a.parse(fs, rest, 0); err != nil {
			return a.fail(err)
		}
		contractAddr, err := parseAddressFlag("contract", *contract)
		if err != nil {
			return a.fail(err)
		}
		key, err := loadKey(*keyPath, a.pass)
		if err != nil {
			return a.fail(err)
		}
		return a.submitWith(key, types.TxTypeInitializeProposal, types.InitializeProposalPayload{
			ContractorAccount: marketplace.ContractorAddress(key.PubKey().Address().Array()),
			Contract:          contractAddr,
			Amount:            *amount,
		})
	case "update":
		fs := a.flagSet("proposal update")
		keyPath := fs.String("key", "", "contractor key file")
		proposal := fs.String("proposal", "", "proposal address")
		amount := fs.Uint64("amount", 0, "new requested native units")
		if err := a.parse(fs, rest, 0); err != nil {
			return a.fail(err)
		}
		proposalAddr, err := parseAddressFlag("proposal", *proposal)
		if err != nil {
			return a.fail(err)
		}
		var p rpc.ProposalResult
		if _, err := a.client.call("market_getProposal", &p, *proposal); err != nil {
			return a.fail(fmt.Errorf("fetch proposal: %w", err))
		}
		contractAddr, err := crypto.ParseAddress(p.Contract)
		if err != nil {
			return a.fail(err)
		}
		key, err := loadKey(*keyPath, a.pass)
		if err != nil {
			return a.fail(err)
		}
		return a.submitWith(key, types.TxTypeUpdateProposal, types.UpdateProposalPayload{
			ContractorAccount: marketplace.ContractorAddress(key.PubKey().Address().Array()),
			Proposal:          proposalAddr,
			Contract:          contractAddr,
			Amount:            *amount,
		})
	case "get":
		if len(rest) != 1 {
			return a.fail(fmt.Errorf("usage: proposal get ADDRESS"))
		}
		return a.query("market_getProposal", rest[0])
	case "list":
		fs := a.flagSet("proposal list")
		contract := fs.String("contract", "", "contract filter")
		contractor := fs.String("contractor", "", "contractor registry filter")
		limit := fs.Int("limit", 0, "maximum results")
		if err := a.parse(fs, rest, 0); err != nil {
			return a.fail(err)
		}
		return a.query("market_listProposals", map[string]interface{}{"contract": *contract, "contractor": *contractor, "limit": *limit})
	}
	return a.fail(fmt.Errorf("unknown proposal subcommand %q", args[0]))
}
