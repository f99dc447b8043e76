package rewardsClient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/requestSigner"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientConfig holds the configuration for the rewards client
type ClientConfig struct {
	ServerURL string
	// Signer is required only for privileged operations
	Signer     requestSigner.IRequestSigner
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to a rewards server
type Client struct {
	serverURL  string
	signer     requestSigner.IRequestSigner
	httpClient *http.Client
	logger     *zap.Logger
}

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new rewards client instance
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		serverURL:  strings.TrimRight(config.ServerURL, "/"),
		signer:     config.Signer,
		httpClient: httpClient,
		logger:     config.Logger,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		req.Header.Set("X-Caller-Address", c.signer.Address().Hex())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Sugar().Debugw("Server responded",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"request_id", resp.Header.Get("X-Request-Id"),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr types.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) signed(payload interface{}) (*requestSigner.SignedMessage, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("a signer is required for privileged requests")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return c.signer.CreateAuthenticatedMessage(data)
}

// newAuth binds a signed payload to action and the current time
func newAuth(action string) types.RequestAuth {
	return types.RequestAuth{
		Action:   action,
		IssuedAt: time.Now().Unix(),
		Nonce:    uuid.NewString(),
	}
}

func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var out types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitRoot(ctx context.Context, root common.Hash, epochID uint64, calculationEndTimestamp int64) (uint32, error) {
	msg, err := c.signed(&types.SubmitRootRequest{
		Root:                    root,
		EpochID:                 epochID,
		CalculationEndTimestamp: calculationEndTimestamp,
		RequestAuth:             newAuth(types.ActionSubmitRoot),
	})
	if err != nil {
		return 0, err
	}

	var out types.SubmitRootResponse
	if err := c.do(ctx, http.MethodPost, "/roots", msg, &out); err != nil {
		return 0, err
	}
	c.logger.Sugar().Infow("Root submitted", "root_id", out.ID, "root", root.Hex())
	return out.ID, nil
}

func (c *Client) DisableRoot(ctx context.Context, id uint32, root common.Hash) (*types.RootResponse, error) {
	return c.toggleRoot(ctx, id, root, "disable", types.ActionDisableRoot)
}

func (c *Client) EnableRoot(ctx context.Context, id uint32, root common.Hash) (*types.RootResponse, error) {
	return c.toggleRoot(ctx, id, root, "enable", types.ActionEnableRoot)
}

func (c *Client) toggleRoot(ctx context.Context, id uint32, root common.Hash, route, action string) (*types.RootResponse, error) {
	msg, err := c.signed(&types.ToggleRootRequest{ID: id, Root: root, RequestAuth: newAuth(action)})
	if err != nil {
		return nil, err
	}
	var out types.RootResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/roots/%d/%s", id, route), msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRoots(ctx context.Context) ([]*types.RootResponse, error) {
	var out []*types.RootResponse
	if err := c.do(ctx, http.MethodGet, "/roots", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRoot(ctx context.Context, id uint32) (*types.RootResponse, error) {
	var out types.RootResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/roots/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRootCount(ctx context.Context) (uint32, error) {
	var out types.RootCountResponse
	if err := c.do(ctx, http.MethodGet, "/roots/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Claim redeems proof against registry root rootID and returns the amount paid
func (c *Client) Claim(ctx context.Context, rootID uint32, root common.Hash, proof *merkle.MerkleProof) (*big.Int, error) {
	req := &types.ClaimRequest{
		RootID:           rootID,
		Root:             root,
		Index:            proof.Position,
		Account:          proof.Account,
		CumulativeAmount: proof.Amount,
		Proof:            proof.Proof.ToJSON(),
	}
	var out types.ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/claim", req, &out); err != nil {
		return nil, err
	}
	return out.Paid, nil
}

func (c *Client) CumulativeClaimed(ctx context.Context, account common.Address) (*big.Int, error) {
	var out types.CumulativeClaimedResponse
	if err := c.do(ctx, http.MethodGet, "/claimed/"+account.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return out.Amount, nil
}

func (c *Client) SetRewarder(ctx context.Context, account common.Address, enabled bool) error {
	msg, err := c.signed(&types.SetRewarderRequest{Account: account, Enabled: enabled, RequestAuth: newAuth(types.ActionSetRewarder)})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/rewarders", msg, nil)
}

func (c *Client) IsRewarder(ctx context.Context, account common.Address) (bool, error) {
	var out types.RewarderResponse
	if err := c.do(ctx, http.MethodGet, "/rewarders/"+account.Hex(), nil, &out); err != nil {
		return false, err
	}
	return out.Rewarder, nil
}

func (c *Client) Withdraw(ctx context.Context, to common.Address, amount *big.Int) error {
	msg, err := c.signed(&types.WithdrawRequest{To: to, Amount: amount, RequestAuth: newAuth(types.ActionWithdraw)})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/withdraw", msg, nil)
}

// ClaimDistribution redeems a leaf of the server's one-shot distribution
func (c *Client) ClaimDistribution(ctx context.Context, proof *merkle.MerkleProof) error {
	req := &types.DistributionClaimRequest{
		Index:   proof.Position,
		Account: proof.Account,
		Amount:  proof.Amount,
		Proof:   proof.Proof.ToJSON(),
	}
	return c.do(ctx, http.MethodPost, "/distribution/claim", req, nil)
}
