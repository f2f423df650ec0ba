package events

import (
	"encoding/hex"
	"strconv"

	"lancechain/core/types"
	"lancechain/crypto"
)

const (
	// TypeTransfer is emitted for native unit movements between identities.
	TypeTransfer = "transfer.native"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount uint64
	TxHash [32]byte
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.FromArray(e.From).String(),
		"to":     crypto.FromArray(e.To).String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
	if e.TxHash != ([32]byte{}) {
		attrs["txHash"] = "0x" + hex.EncodeToString(e.TxHash[:])
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
