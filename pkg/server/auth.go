package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/requestSigner"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"k8s.io/utils/clock"
)

const (
	// signedRequestTTL is how long a signed request stays valid after IssuedAt
	signedRequestTTL = 10 * time.Minute
	// maxClockSkew tolerates signers whose clock runs ahead of the server
	maxClockSkew   = 2 * time.Minute
	maxRequestBody = 1 << 20
)

var (
	ErrReplayedRequest = errors.New("signed request already processed")
	ErrMissingNonce    = errors.New("signed request has no nonce")
	ErrExpiredRequest  = errors.New("signed request expired")
	ErrWrongAction     = errors.New("signed request is for another action")
)

// replayGuard remembers accepted message hashes until the requests expire
type replayGuard struct {
	mu    sync.Mutex
	clock clock.PassiveClock
	seen  map[[32]byte]time.Time
}

func newReplayGuard(c clock.PassiveClock) *replayGuard {
	return &replayGuard{
		clock: c,
		seen:  make(map[[32]byte]time.Time),
	}
}

// mark records hash until expiresAt and reports whether it was new
func (g *replayGuard) mark(hash [32]byte, expiresAt time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	for h, exp := range g.seen {
		if now.After(exp) {
			delete(g.seen, h)
		}
	}
	if _, ok := g.seen[hash]; ok {
		return false
	}
	g.seen[hash] = expiresAt
	return true
}

// forget drops hash so a request rejected before any state change can be resent
func (g *replayGuard) forget(hash [32]byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, hash)
}

type signedPayload interface {
	GetAuth() *types.RequestAuth
}

// checkAuth validates the action and freshness of a signed payload and returns when it expires
func checkAuth(auth *types.RequestAuth, action string, now time.Time) (time.Time, error) {
	if auth.Nonce == "" {
		return time.Time{}, ErrMissingNonce
	}
	if auth.Action != action {
		return time.Time{}, fmt.Errorf("%w: signed for %q, used for %q", ErrWrongAction, auth.Action, action)
	}
	issuedAt := time.Unix(auth.IssuedAt, 0)
	expiresAt := issuedAt.Add(signedRequestTTL)
	if now.After(expiresAt) {
		return time.Time{}, fmt.Errorf("%w: issued at %d", ErrExpiredRequest, auth.IssuedAt)
	}
	if issuedAt.After(now.Add(maxClockSkew)) {
		return time.Time{}, fmt.Errorf("%w: issued at %d is in the future", ErrExpiredRequest, auth.IssuedAt)
	}
	return expiresAt, nil
}

// decodeSigned verifies a signed request body for action, decodes its payload into out
// and returns the signer. Errors are already written to w.
func (s *Server) decodeSigned(w http.ResponseWriter, r *http.Request, action string, out signedPayload) (common.Address, [32]byte, bool) {
	var msg requestSigner.SignedMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse signed message: %v", err))
		return common.Address{}, [32]byte{}, false
	}

	caller, err := requestSigner.RecoverSigner(&msg)
	if err != nil {
		s.metrics.ObserveRejection(action, "bad_signature")
		writeError(w, http.StatusUnauthorized, err.Error())
		return common.Address{}, [32]byte{}, false
	}

	if err := json.Unmarshal(msg.Payload, out); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse payload: %v", err))
		return common.Address{}, [32]byte{}, false
	}

	expiresAt, err := checkAuth(out.GetAuth(), action, s.clock.Now())
	switch {
	case errors.Is(err, ErrMissingNonce):
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, [32]byte{}, false
	case errors.Is(err, ErrWrongAction):
		s.metrics.ObserveRejection(action, "wrong_action")
		writeError(w, http.StatusUnauthorized, err.Error())
		return common.Address{}, [32]byte{}, false
	case err != nil:
		s.metrics.ObserveRejection(action, "expired")
		writeError(w, http.StatusUnauthorized, err.Error())
		return common.Address{}, [32]byte{}, false
	}

	if !s.replay.mark(msg.Hash, expiresAt) {
		s.metrics.ObserveRejection(action, "replayed")
		writeError(w, http.StatusConflict, ErrReplayedRequest.Error())
		return common.Address{}, [32]byte{}, false
	}
	return caller, msg.Hash, true
}
