package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/events"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.HealthCheck(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}

// handleEvents returns emitted event records, optionally only those from ?since=N on
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		writeJSON(w, http.StatusOK, []events.Record{})
		return
	}
	since := uint64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q", v))
			return
		}
		since = parsed
	}
	records := s.eventLog.Since(since)
	if records == nil {
		records = []events.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) rootResponse(entry *types.DistributionRoot) (*types.RootResponse, error) {
	status, err := s.registry.Status(entry.ID)
	if err != nil {
		return nil, err
	}
	activatedAt, err := s.registry.ActivatedAt(entry.ID)
	if err != nil {
		return nil, err
	}
	return &types.RootResponse{DistributionRoot: entry, Status: status.String(), ActivatedAt: activatedAt}, nil
}

func (s *Server) handleListRoots(w http.ResponseWriter, _ *http.Request) {
	roots, err := s.registry.ListRoots()
	if err != nil {
		s.writeOperationError(w, "list_roots", err)
		return
	}
	out := make([]*types.RootResponse, 0, len(roots))
	for _, entry := range roots {
		resp, err := s.rootResponse(entry)
		if err != nil {
			s.writeOperationError(w, "list_roots", err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRootCount(w http.ResponseWriter, _ *http.Request) {
	count, err := s.registry.GetRootCount()
	if err != nil {
		s.writeOperationError(w, "root_count", err)
		return
	}
	writeJSON(w, http.StatusOK, types.RootCountResponse{Count: count})
}

func parseRootID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	v := r.PathValue("id")
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid root id %q", v))
		return 0, false
	}
	return uint32(id), true
}

func parseAccount(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := r.PathValue("account")
	if !common.IsHexAddress(v) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid account %q", v))
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRootID(w, r)
	if !ok {
		return
	}
	entry, err := s.registry.GetRoot(id)
	if err != nil {
		s.writeOperationError(w, "get_root", err)
		return
	}
	resp, err := s.rootResponse(entry)
	if err != nil {
		s.writeOperationError(w, "get_root", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitRoot(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitRootRequest
	caller, hash, ok := s.decodeSigned(w, r, types.ActionSubmitRoot, &req)
	if !ok {
		return
	}

	id, err := s.registry.SubmitRoot(r.Context(), caller, req.Root, req.EpochID, req.CalculationEndTimestamp)
	if err != nil {
		s.replay.forget(hash)
		s.writeOperationError(w, types.ActionSubmitRoot, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SubmitRootResponse{ID: id})
}

func (s *Server) handleToggleRoot(enabled bool) http.HandlerFunc {
	operation := types.ActionDisableRoot
	if enabled {
		operation = types.ActionEnableRoot
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseRootID(w, r)
		if !ok {
			return
		}
		var req types.ToggleRootRequest
		caller, hash, ok := s.decodeSigned(w, r, operation, &req)
		if !ok {
			return
		}
		if req.ID != id {
			s.replay.forget(hash)
			writeError(w, http.StatusBadRequest, fmt.Sprintf("signed root id %d does not match path id %d", req.ID, id))
			return
		}

		var err error
		if enabled {
			err = s.registry.EnableRoot(r.Context(), caller, id, req.Root)
		} else {
			err = s.registry.DisableRoot(r.Context(), caller, id, req.Root)
		}
		if err != nil {
			s.replay.forget(hash)
			s.writeOperationError(w, operation, err)
			return
		}
		entry, err := s.registry.GetRoot(id)
		if err != nil {
			s.writeOperationError(w, operation, err)
			return
		}
		resp, err := s.rootResponse(entry)
		if err != nil {
			s.writeOperationError(w, operation, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req types.ClaimRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.CumulativeAmount == nil {
		writeError(w, http.StatusBadRequest, "cumulativeAmount is required")
		return
	}
	proof, err := merkle.AuthenticationPathFromJSON(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// claims are permissionless, the caller is only recorded
	caller := common.HexToAddress(r.Header.Get(callerHeader))
	paid, err := s.distributor.Claim(r.Context(), caller, req.RootID, req.Root, req.Index, req.Account, req.CumulativeAmount, proof)
	if err != nil {
		s.writeOperationError(w, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, types.ClaimResponse{Account: req.Account, Paid: paid})
}

func (s *Server) handleCumulativeClaimed(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(w, r)
	if !ok {
		return
	}
	amount, err := s.distributor.CumulativeClaimed(account)
	if err != nil {
		s.writeOperationError(w, "cumulative_claimed", err)
		return
	}
	writeJSON(w, http.StatusOK, types.CumulativeClaimedResponse{Account: account, Amount: amount})
}

func (s *Server) handleSetRewarder(w http.ResponseWriter, r *http.Request) {
	var req types.SetRewarderRequest
	caller, hash, ok := s.decodeSigned(w, r, types.ActionSetRewarder, &req)
	if !ok {
		return
	}
	if err := s.distributor.SetRewarder(r.Context(), caller, req.Account, req.Enabled); err != nil {
		s.replay.forget(hash)
		s.writeOperationError(w, types.ActionSetRewarder, err)
		return
	}
	writeJSON(w, http.StatusOK, types.RewarderResponse{Account: req.Account, Rewarder: req.Enabled})
}

func (s *Server) handleIsRewarder(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(w, r)
	if !ok {
		return
	}
	rewarder, err := s.distributor.IsRewarder(account)
	if err != nil {
		s.writeOperationError(w, "is_rewarder", err)
		return
	}
	writeJSON(w, http.StatusOK, types.RewarderResponse{Account: account, Rewarder: rewarder})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req types.WithdrawRequest
	caller, hash, ok := s.decodeSigned(w, r, types.ActionWithdraw, &req)
	if !ok {
		return
	}
	if err := s.distributor.Withdraw(r.Context(), caller, req.To, req.Amount); err != nil {
		// a pending transfer may still pay out, so the request stays spent
		if !token.IsTransferPending(err) {
			s.replay.forget(hash)
		}
		s.writeOperationError(w, types.ActionWithdraw, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDistribution(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.DistributionResponse{
		Root:        s.artifact.Root,
		TotalAmount: s.artifact.TotalAmount,
		Claims:      len(s.artifact.Claims),
	})
}

func (s *Server) handleDistributionProof(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAccount(w, r)
	if !ok {
		return
	}
	proof, found := s.artifact.ClaimFor(account)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no claim for %s", account.Hex()))
		return
	}
	writeJSON(w, http.StatusOK, types.DistributionClaimRequest{
		Index:   proof.Position,
		Account: proof.Account,
		Amount:  proof.Amount,
		Proof:   proof.Proof.ToJSON(),
	})
}

func (s *Server) handleDistributionClaimed(w http.ResponseWriter, r *http.Request) {
	v := r.PathValue("index")
	index, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid index %q", v))
		return
	}
	claimed, err := s.oneShot.IsClaimed(index)
	if err != nil {
		s.writeOperationError(w, "distribution_claimed", err)
		return
	}
	writeJSON(w, http.StatusOK, types.DistributionClaimedResponse{Index: index, Claimed: claimed})
}

func (s *Server) handleDistributionClaim(w http.ResponseWriter, r *http.Request) {
	var req types.DistributionClaimRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	proof, err := merkle.AuthenticationPathFromJSON(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller := common.HexToAddress(r.Header.Get(callerHeader))
	if err := s.oneShot.Claim(r.Context(), caller, req.Index, req.Account, req.Amount, proof); err != nil {
		s.writeOperationError(w, "distribution_claim", err)
		return
	}
	writeJSON(w, http.StatusOK, types.ClaimResponse{Account: req.Account, Paid: req.Amount})
}
