package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lancechain/core"
	"lancechain/core/types"
	"lancechain/crypto"
	"lancechain/native/marketplace"
	"lancechain/observability/metrics"
)

const maxListLimit = 500

type deriveAddressParams struct {
	Kind     string `json:"kind"`
	Identity string `json:"identity,omitempty"`
	Registry string `json:"registry,omitempty"`
	ID       uint64 `json:"id,omitempty"`
	Contract string `json:"contract,omitempty"`
}

type listContractsParams struct {
	Client string `json:"client,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type listProposalsParams struct {
	Contract   string `json:"contract,omitempty"`
	Contractor string `json:"contractor,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type addressResult struct {
	Address string `json:"address"`
}

type minimumBalanceResult struct {
	Record  string `json:"record"`
	Space   uint64 `json:"space"`
	Minimum string `json:"minimum"`
}

func invalidParams(w http.ResponseWriter, req *RPCRequest, message string, data interface{}) {
	writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, message, data)
}

func parseAddressParam(req *RPCRequest, idx int) ([20]byte, error) {
	if len(req.Params) <= idx {
		return [20]byte{}, fmt.Errorf("address parameter required")
	}
	var raw string
	if err := json.Unmarshal(req.Params[idx], &raw); err != nil {
		return [20]byte{}, fmt.Errorf("address must be a string")
	}
	return crypto.ParseAddress(raw)
}

// decodeOptionalObject decodes params[0] into dst when present.
func decodeOptionalObject(req *RPCRequest, dst interface{}) error {
	if len(req.Params) == 0 {
		return nil
	}
	if len(req.Params) > 1 {
		return fmt.Errorf("at most one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], dst)
}

func optionalAddress(raw string) (*[20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	source := clientSource(r)
	if !s.limiter.Allow(source, time.Now()) {
		metrics.RPC().Throttled()
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "transaction rate limit exceeded", source)
		return
	}
	if len(req.Params) != 1 {
		invalidParams(w, req, "transaction parameter required", nil)
		return
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		invalidParams(w, req, "invalid transaction format", err.Error())
		return
	}
	receipt, err := s.node.SubmitTransaction(r.Context(), &tx)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err.Error(), nil)
		return
	}
	acc, err := s.node.GetAccount(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, accountResult(addr, acc))
}

func (s *Server) handleGetNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err.Error(), nil)
		return
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, nonce)
}

func (s *Server) handleDeriveAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deriveAddressParams
	if len(req.Params) != 1 {
		invalidParams(w, req, "parameter object required", nil)
		return
	}
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		invalidParams(w, req, "invalid parameter object", err.Error())
		return
	}
	parse := func(field, value string) ([20]byte, bool) {
		addr, err := crypto.ParseAddress(value)
		if err != nil {
			invalidParams(w, req, fmt.Sprintf("invalid %s", field), err.Error())
			return addr, false
		}
		return addr, true
	}
	var derived [20]byte
	switch strings.ToLower(strings.TrimSpace(params.Kind)) {
	case "client", "contractor":
		identity, ok := parse("identity", params.Identity)
		if !ok {
			return
		}
		if strings.EqualFold(params.Kind, "client") {
			derived = marketplace.ClientAddress(identity)
		} else {
			derived = marketplace.ContractorAddress(identity)
		}
	case "contract", "proposal":
		registry, ok := parse("registry", params.Registry)
		if !ok {
			return
		}
		if strings.EqualFold(params.Kind, "contract") {
			derived = marketplace.ContractAddress(registry, params.ID)
		} else {
			derived = marketplace.ProposalAddress(registry, params.ID)
		}
	case "vault":
		contract, ok := parse("contract", params.Contract)
		if !ok {
			return
		}
		derived = marketplace.VaultAddress(contract)
	default:
		invalidParams(w, req, "kind must be one of client, contractor, contract, proposal, vault", params.Kind)
		return
	}
	writeResult(w, req.ID, addressResult{Address: formatAddress(derived)})
}

func (s *Server) handleGetClient(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err.Error(), nil)
		return
	}
	reg, err := s.node.ClientRegistry(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, RegistryResult{Address: formatAddress(addr), Owner: formatAddress(reg.Owner), NextID: reg.NextContractID})
}

func (s *Server) handleGetContractor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err.Error(), nil)
		return
	}
	reg, err := s.node.ContractorRegistry(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, RegistryResult{Address: formatAddress(addr), Owner: formatAddress(reg.Owner), NextID: reg.NextProposalID})
}

func (s *Server) handleGetContract(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err.Error(), nil)
		return
	}
	contract, err := s.node.Contract(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, contractResult(addr, contract))
}

func (s *Server) handleGetProposal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err.Error(), nil)
		return
	}
	proposal, err := s.node.Proposal(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, proposalResult(addr, proposal))
}

func (s *Server) handleGetVault(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, err := parseAddressParam(req, 0)
	if err != nil {
		invalidParams(w, req, err.Error(), nil)
		return
	}
	vault, balance, err := s.node.Vault(addr)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, VaultResult{
		Address:  formatAddress(addr),
		Contract: formatAddress(vault.Contract),
		Balance:  formatBig(balance),
	})
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listContractsParams
	if err := decodeOptionalObject(req, &params); err != nil {
		invalidParams(w, req, "invalid parameter object", err.Error())
		return
	}
	client, err := optionalAddress(params.Client)
	if err != nil {
		invalidParams(w, req, "invalid client", err.Error())
		return
	}
	var status *marketplace.ContractStatus
	if strings.TrimSpace(params.Status) != "" {
		parsed, err := marketplace.ParseContractStatus(params.Status)
		if err != nil {
			invalidParams(w, req, "invalid status", err.Error())
			return
		}
		status = &parsed
	}
	limit := clampLimit(params.Limit)

	if s.index != nil && (client != nil || (status != nil && *status == marketplace.StatusOpened)) {
		var results []ContractResult
		if client != nil {
			rows, err := s.index.ContractsByClient(r.Context(), *client)
			if err != nil {
				writeMarketError(w, req.ID, err)
				return
			}
			for _, row := range rows {
				if status != nil && row.Status != status.String() {
					continue
				}
				results = append(results, contractResultFromRow(row))
				if len(results) >= limit {
					break
				}
			}
		} else {
			rows, err := s.index.OpenContracts(r.Context(), limit)
			if err != nil {
				writeMarketError(w, req.ID, err)
				return
			}
			for _, row := range rows {
				results = append(results, contractResultFromRow(row))
			}
		}
		writeResult(w, req.ID, nonNil(results))
		return
	}

	entries, err := s.node.ListContracts(core.ContractFilter{Client: client, Status: status, Limit: limit})
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	results := make([]ContractResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, contractResult(entry.Address, entry.Contract))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params listProposalsParams
	if err := decodeOptionalObject(req, &params); err != nil {
		invalidParams(w, req, "invalid parameter object", err.Error())
		return
	}
	contract, err := optionalAddress(params.Contract)
	if err != nil {
		invalidParams(w, req, "invalid contract", err.Error())
		return
	}
	contractor, err := optionalAddress(params.Contractor)
	if err != nil {
		invalidParams(w, req, "invalid contractor", err.Error())
		return
	}
	limit := clampLimit(params.Limit)

	if s.index != nil && contract != nil && contractor == nil {
		rows, err := s.index.ProposalsForContract(r.Context(), *contract)
		if err != nil {
			writeMarketError(w, req.ID, err)
			return
		}
		results := make([]ProposalResult, 0, len(rows))
		for _, row := range rows {
			results = append(results, proposalResultFromRow(row))
			if len(results) >= limit {
				break
			}
		}
		writeResult(w, req.ID, results)
		return
	}

	entries, err := s.node.ListProposals(core.ProposalFilter{Contract: contract, Contractor: contractor, Limit: limit})
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	results := make([]ProposalResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, proposalResult(entry.Address, entry.Proposal))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var hash string
	if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &hash) != nil || strings.TrimSpace(hash) == "" {
		invalidParams(w, req, "transaction hash required", nil)
		return
	}
	receipt, err := s.node.Receipt(hash)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleGetHead(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, headerResult(s.node.Head()))
}

func (s *Server) handleGetMinimumBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	spaces := []struct {
		name  string
		space uint64
	}{
		{"client", marketplace.RegistrySpace},
		{"contractor", marketplace.RegistrySpace},
		{"contract", marketplace.ContractSpace},
		{"proposal", marketplace.ProposalSpace},
		{"vault", marketplace.VaultSpace},
	}
	rent := s.node.RentParams()
	results := make([]minimumBalanceResult, 0, len(spaces))
	for _, entry := range spaces {
		minimum, err := rent.MinimumBalance(entry.space)
		if err != nil {
			writeMarketError(w, req.ID, err)
			return
		}
		results = append(results, minimumBalanceResult{Record: entry.name, Space: entry.space, Minimum: minimum.String()})
	}
	writeResult(w, req.ID, results)
}

func nonNil(results []ContractResult) []ContractResult {
	if results == nil {
		return []ContractResult{}
	}
	return results
}
