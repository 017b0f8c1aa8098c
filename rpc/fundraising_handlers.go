package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"fundchain/crypto"
	"fundchain/native/fundraising"
)

const (
	codeFundUnauthorized = -32021
	codeFundPaused       = -32022
	codeFundNotFound     = -32023
	codeFundOutOfRange   = -32024
	codeFundConflict     = -32025
	codeFundInsufficient = -32026
	codeFundTransfer     = -32027
)

type createProposalParams struct {
	Proposer string `json:"proposer"`
	Title    string `json:"title"`
	Metadata []byte `json:"metadata,omitempty"`
}

type getProposalParams struct {
	ID uint64 `json:"id"`
}

type donateParams struct {
	ProposalID uint64 `json:"proposalId"`
	Donor      string `json:"donor"`
	Amount     string `json:"amount"`
	Ref        string `json:"ref,omitempty"`
}

type donationCountParams struct {
	ProposalID uint64 `json:"proposalId"`
}

type donationAtParams struct {
	ProposalID uint64 `json:"proposalId"`
	Index      uint64 `json:"index"`
}

type donorTotalParams struct {
	ProposalID uint64 `json:"proposalId"`
	Donor      string `json:"donor"`
}

type calculateMatchParams struct {
	ProposalID uint64 `json:"proposalId"`
}

type getBalanceParams struct {
	Address string `json:"address"`
}

type topUpParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type withdrawParams struct {
	Caller    string `json:"caller"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type payOutParams struct {
	Caller     string `json:"caller"`
	ProposalID uint64 `json:"proposalId"`
	Recipient  string `json:"recipient"`
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type transferOwnershipParams struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type proposalResult struct {
	ID             uint64 `json:"id"`
	Proposer       string `json:"proposer"`
	Title          string `json:"title"`
	Metadata       []byte `json:"metadata,omitempty"`
	TotalDonations string `json:"totalDonations"`
	Funded         bool   `json:"funded"`
	PayoutAmount   string `json:"payoutAmount"`
	CreatedAt      int64  `json:"createdAt"`
}

type donationResult struct {
	Donor     string `json:"donor"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

func proposalToResult(p *fundraising.Proposal) proposalResult {
	return proposalResult{
		ID:             p.ID,
		Proposer:       crypto.NewAddress(crypto.FundPrefix, p.Proposer[:]).String(),
		Title:          p.Title,
		Metadata:       p.Metadata,
		TotalDonations: p.TotalDonations.String(),
		Funded:         p.Funded,
		PayoutAmount:   p.PayoutAmount.String(),
		CreatedAt:      p.CreatedAt,
	}
}

func donationToResult(d *fundraising.Donation) donationResult {
	return donationResult{
		Donor:     crypto.NewAddress(crypto.FundPrefix, d.Donor[:]).String(),
		Amount:    d.Amount.String(),
		Timestamp: d.Timestamp,
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected params array with a single object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid address: %w", err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

// writeFundraisingError maps engine sentinel errors onto RPC error codes so
// clients can distinguish rejection reasons without parsing message text.
func writeFundraisingError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, fundraising.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeFundUnauthorized, err.Error(), nil)
	case errors.Is(err, fundraising.ErrPaused):
		writeError(w, http.StatusConflict, id, codeFundPaused, err.Error(), nil)
	case errors.Is(err, fundraising.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeFundNotFound, err.Error(), nil)
	case errors.Is(err, fundraising.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, id, codeFundOutOfRange, err.Error(), nil)
	case errors.Is(err, fundraising.ErrInvalidAmount), errors.Is(err, fundraising.ErrInvalidRecipient):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, fundraising.ErrAlreadyFunded):
		writeError(w, http.StatusConflict, id, codeFundConflict, err.Error(), nil)
	case errors.Is(err, fundraising.ErrInsufficientFunds), errors.Is(err, fundraising.ErrInsufficientMatchingPool):
		writeError(w, http.StatusConflict, id, codeFundInsufficient, err.Error(), nil)
	case errors.Is(err, fundraising.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, id, codeFundTransfer, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createProposalParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proposer, err := parseAddress(params.Proposer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proposal, err := s.node.CreateProposal(proposer, params.Title, params.Metadata)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, proposalToResult(proposal))
}

func (s *Server) handleGetProposal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params getProposalParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proposal, err := s.node.GetProposal(params.ID)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, proposalToResult(proposal))
}

func (s *Server) handleDonate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params donateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	donor, err := parseAddress(params.Donor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	donation, err := s.node.Donate(params.ProposalID, donor, amount, params.Ref)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, donationToResult(donation))
}

func (s *Server) handleGetDonationCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params donationCountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	count, err := s.node.DonationCount(params.ProposalID)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"count": count})
}

func (s *Server) handleGetDonationAt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params donationAtParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	donation, err := s.node.DonationAt(params.ProposalID, params.Index)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, donationToResult(donation))
}

func (s *Server) handleGetDonorTotal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params donorTotalParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	donor, err := parseAddress(params.Donor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	total, err := s.node.DonorTotal(params.ProposalID, donor)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: total.String()})
}

func (s *Server) handleCalculateMatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params calculateMatchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	match, err := s.node.CalculateMatch(params.ProposalID)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: match.String()})
}

func (s *Server) handleGetMatchingPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	pool, err := s.node.MatchingPool()
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: pool.String()})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params getBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address: crypto.NewAddress(crypto.FundPrefix, addr[:]).String(),
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleTopUpMatchingPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params topUpParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pool, err := s.node.TopUpMatchingPool(caller, amount)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: pool.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Withdraw(caller, amount, recipient); err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handlePayOutProposal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params payOutParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proposal, err := s.node.PayOutProposal(caller, params.ProposalID, recipient)
	if err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, proposalToResult(proposal))
}

func (s *Server) handleSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setPausedParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetPaused(caller, params.Paused); err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": params.Paused})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params transferOwnershipParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	newOwner, err := parseAddress(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TransferOwnership(caller, newOwner); err != nil {
		writeFundraisingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"owner": crypto.NewAddress(crypto.FundPrefix, newOwner[:]).String(),
	})
}
