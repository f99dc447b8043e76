package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/access"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkleDistributor"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rewardsDistributor"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rootRegistry"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
)

type errorCategory struct {
	target error
	status int
	reason string
}

var errorCategories = []errorCategory{
	{token.ErrTransferPending, http.StatusGatewayTimeout, "transfer_pending"},
	{access.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{rootRegistry.ErrRootNotFound, http.StatusNotFound, "root_not_found"},
	{rootRegistry.ErrRootHashMismatch, http.StatusConflict, "root_hash_mismatch"},
	{rootRegistry.ErrRootAlreadyActivated, http.StatusConflict, "root_already_activated"},
	{rootRegistry.ErrRootAlreadyEnabled, http.StatusConflict, "root_already_enabled"},
	{rootRegistry.ErrRootAlreadyDisabled, http.StatusConflict, "root_already_disabled"},
	{rewardsDistributor.ErrRootNotActivated, http.StatusConflict, "root_not_activated"},
	{merkleDistributor.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{merkle.ErrInvalidProof, http.StatusUnprocessableEntity, "invalid_proof"},
	{rewardsDistributor.ErrNothingToClaim, http.StatusUnprocessableEntity, "nothing_to_claim"},
	{token.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
	{rewardsDistributor.ErrZeroRecipient, http.StatusBadRequest, "zero_recipient"},
	{merkle.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{merkle.ErrUnknownPosition, http.StatusBadRequest, "unknown_position"},
}

// classify maps an operation error to its HTTP status and a metrics reason
func classify(err error) (int, string) {
	for _, c := range errorCategories {
		if errors.Is(err, c.target) {
			return c.status, c.reason
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeOperationError(w http.ResponseWriter, operation string, err error) {
	status, reason := classify(err)
	s.metrics.ObserveRejection(operation, reason)
	if status == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Sugar().Infow("Operation rejected", "operation", operation, "reason", reason, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, types.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
