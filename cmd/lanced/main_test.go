package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"lancechain/config"
	"lancechain/crypto"
)

func TestOpenServicesAppliesGenesisOnce(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Genesis.Allocations = []config.Allocation{{Address: addr.String(), Balance: "9000"}}
	cfg.Indexer.DSN = "file:" + filepath.Join(dir, "index.db")
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	svc, err := openServices(context.Background(), cfg, dir, logger)
	if err != nil {
		t.Fatalf("open services: %v", err)
	}
	if svc.index == nil {
		t.Fatalf("indexer not attached")
	}
	acc, err := svc.node.GetAccount(addr.Array())
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Balance.String() != "9000" {
		t.Fatalf("unexpected genesis balance %s", acc.Balance)
	}
	root := svc.node.Head().StateRoot
	indexDB, err := svc.indexDB.DB()
	if err != nil {
		t.Fatalf("index handle: %v", err)
	}
	svc.Close()
	if err := indexDB.Ping(); err == nil {
		t.Fatalf("index database left open after Close")
	}

	// A changed allocation must not be re-applied to an existing ledger.
	cfg.Genesis.Allocations[0].Balance = "1"
	svc, err = openServices(context.Background(), cfg, dir, logger)
	if err != nil {
		t.Fatalf("reopen services: %v", err)
	}
	defer svc.Close()
	acc, err = svc.node.GetAccount(addr.Array())
	if err != nil {
		t.Fatalf("get account after reopen: %v", err)
	}
	if acc.Balance.String() != "9000" {
		t.Fatalf("genesis re-applied: %s", acc.Balance)
	}
	if string(svc.node.Head().StateRoot) != string(root) {
		t.Fatalf("state root changed across restart")
	}
}

func TestOpenServicesRejectsBadGenesisFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Genesis.File = "missing.json"
	if _, err := openServices(context.Background(), cfg, dir, slog.New(slog.NewJSONHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected missing genesis file to fail")
	}
}
