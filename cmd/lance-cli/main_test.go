package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"lancechain/core"
	"lancechain/core/genesis"
	"lancechain/crypto"
	"lancechain/native/marketplace"
	"lancechain/rpc"
	"lancechain/storage"
)

const testChainID = "31337"

func TestApplyGlobalFlags(t *testing.T) {
	opts := defaultOptions(func(string) (string, bool) { return "", false })
	args, err := applyGlobalFlags([]string{"--rpc", "http://node:1", "contract", "--output=yaml", "get", "--chain-id", "9", "x"}, &opts)
	if err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if strings.Join(args, " ") != "contract get x" {
		t.Fatalf("unexpected remaining args %v", args)
	}
	if opts.endpoint != "http://node:1" || opts.output != "yaml" || opts.chainID != 9 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := applyGlobalFlags([]string{"--output", "xml"}, &opts); err == nil {
		t.Fatalf("expected invalid output error")
	}
	if _, err := applyGlobalFlags([]string{"--rpc"}, &opts); err == nil {
		t.Fatalf("expected missing value error")
	}
}

func TestDefaultOptionsFromEnvironment(t *testing.T) {
	env := map[string]string{"LANCE_RPC_URL": "http://rpc:9", "LANCE_CHAIN_ID": "12", "LANCE_RPC_TOKEN": " tok "}
	opts := defaultOptions(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if opts.endpoint != "http://rpc:9" || opts.chainID != 12 || opts.token != "tok" {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestWriteResultFormats(t *testing.T) {
	raw := json.RawMessage(`{"address":"lnc1x","nonce":3}`)
	var out bytes.Buffer
	if err := writeResult(&out, "yaml", raw); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(out.String(), "address: lnc1x") || !strings.Contains(out.String(), "nonce: 3") {
		t.Fatalf("unexpected yaml %q", out.String())
	}
	out.Reset()
	if err := writeResult(&out, "json", raw); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(out.String(), "\n  \"nonce\": 3") {
		t.Fatalf("unexpected json %q", out.String())
	}
}

func TestDeriveRecordAddress(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	identity := key.PubKey().Address()
	got, err := deriveRecordAddress("client", identity.String(), "", "", 0)
	if err != nil || got != marketplace.ClientAddress(identity.Array()) {
		t.Fatalf("client derivation: %v", err)
	}
	reg := crypto.FromArray(got).String()
	got, err = deriveRecordAddress("proposal", "", reg, "", 4)
	if err != nil || got != marketplace.ProposalAddress(marketplace.ClientAddress(identity.Array()), 4) {
		t.Fatalf("proposal derivation: %v", err)
	}
	if _, err := deriveRecordAddress("vault", "", "", "", 0); err == nil {
		t.Fatalf("expected missing contract error")
	}
	if _, err := deriveRecordAddress("mint", "", "", "", 0); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

type cliHarness struct {
	t   *testing.T
	url string
}

func (h *cliHarness) run(args ...string) string {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--rpc", h.url, "--chain-id", testChainID}, args...)
	if code := run(full, &stdout, &stderr); code != 0 {
		h.t.Fatalf("lance-cli %s exited %d: %s", strings.Join(args, " "), code, stderr.String())
	}
	return stdout.String()
}

func (h *cliHarness) fails(args ...string) string {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--rpc", h.url, "--chain-id", testChainID}, args...)
	if code := run(full, &stdout, &stderr); code == 0 {
		h.t.Fatalf("lance-cli %s unexpectedly succeeded: %s", strings.Join(args, " "), stdout.String())
	}
	return stderr.String()
}

func TestMarketplaceCommandsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	clientKeyPath := filepath.Join(dir, "client.key")
	contractorKeyPath := filepath.Join(dir, "contractor.key")
	clientKey, err := writeNewKey(clientKeyPath, false, nil)
	if err != nil {
		t.Fatalf("client key: %v", err)
	}
	contractorKey, err := writeNewKey(contractorKeyPath, false, nil)
	if err != nil {
		t.Fatalf("contractor key: %v", err)
	}
	if _, err := writeNewKey(clientKeyPath, false, nil); err == nil {
		t.Fatalf("expected existing key file to be preserved")
	}

	spec := &genesis.Spec{Alloc: map[string]string{
		clientKey.PubKey().Address().String():     "20000000000",
		contractorKey.PubKey().Address().String(): "2000000000",
	}}
	node, err := core.NewNode(storage.NewMemDB(), core.NodeConfig{ChainID: 31337, Genesis: spec})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	server, err := rpc.NewServer(node, nil, rpc.ServerConfig{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()
	h := &cliHarness{t: t, url: httpServer.URL}

	clientReg := marketplace.ClientAddress(clientKey.PubKey().Address().Array())
	contract := crypto.FromArray(marketplace.ContractAddress(clientReg, 0)).String()
	contractorReg := marketplace.ContractorAddress(contractorKey.PubKey().Address().Array())
	proposal := crypto.FromArray(marketplace.ProposalAddress(contractorReg, 0)).String()

	h.run("client", "init", "--key", clientKeyPath)
	h.run("contractor", "init", "--key", contractorKeyPath)
	h.run("contract", "create", "--key", clientKeyPath, "--title", "Logo", "--topic", "Vector logo")
	h.run("proposal", "create", "--key", contractorKeyPath, "--contract", contract, "--amount", "700")
	h.run("proposal", "update", "--key", contractorKeyPath, "--proposal", proposal, "--amount", "900")
	h.run("contract", "choose", "--key", clientKeyPath, "--contract", contract, "--proposal", proposal)

	stderr := h.fails("contract", "claim", "--key", clientKeyPath, "--contract", contract)
	if !strings.Contains(stderr, "ContractNotClosed") {
		t.Fatalf("expected ContractNotClosed, got %q", stderr)
	}

	h.run("contract", "done", "--key", contractorKeyPath, "--contract", contract)
	out := h.run("contract", "claim", "--key", clientKeyPath, "--contract", contract)
	var receipt struct {
		Type   string `json:"type"`
		TxHash string `json:"txHash"`
	}
	if err := json.Unmarshal([]byte(out), &receipt); err != nil {
		t.Fatalf("decode receipt %q: %v", out, err)
	}
	if receipt.Type != "claim_payment" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	var c rpc.ContractResult
	if err := json.Unmarshal([]byte(h.run("contract", "get", contract)), &c); err != nil {
		t.Fatalf("decode contract: %v", err)
	}
	if c.Status != "closed" || c.Amount != nil {
		t.Fatalf("unexpected contract %+v", c)
	}

	yamlOut := h.run("--output", "yaml", "proposal", "list", "--contract", contract)
	if !strings.Contains(yamlOut, "amount: \"900\"") {
		t.Fatalf("unexpected yaml listing %q", yamlOut)
	}

	h.fails("contract", "create", "--key", filepath.Join(dir, "missing.key"), "--title", "x")
	h.fails("transfer", "--key", clientKeyPath, "--to", contract, "--amount", "0")
}
