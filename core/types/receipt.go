package types

// Receipt records the outcome of an accepted transaction.
type Receipt struct {
	TxHash string  `json:"txHash"`
	Type   string  `json:"type"`
	Signer string  `json:"signer"`
	Nonce  uint64  `json:"nonce"`
	Height uint64  `json:"height"`
	Root   string  `json:"stateRoot"`
	Events []Event `json:"events"`
}
