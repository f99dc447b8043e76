package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/config"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/logger"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/merkle"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/requestSigner/inMemoryRequestSigner"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/rewardsClient"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/token"
	"github.com/Layr-Labs/rewards-distributor-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

// distributionInput is one row of the build-tree input file
type distributionInput struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// createClient creates a rewards client from CLI context
func createClient(c *cli.Context, requireKey bool) (*rewardsClient.Client, error) {
	cc := &config.ClientConfig{
		ServerURL:  c.String("server-url"),
		PrivateKey: c.String("private-key"),
	}
	if err := cc.Validate(requireKey); err != nil {
		return nil, err
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	clientCfg := &rewardsClient.ClientConfig{
		ServerURL: cc.ServerURL,
		Logger:    l,
	}
	if cc.PrivateKey != "" {
		signer, err := inMemoryRequestSigner.NewInMemoryRequestSigner(cc.PrivateKey, l)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		clientCfg.Signer = signer
	}
	return rewardsClient.NewClient(clientCfg)
}

func parseAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(value), nil
}

func parseHash(value string) (common.Hash, error) {
	b := common.FromHex(value)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid root %q: expected 32 bytes", value)
	}
	return common.BytesToHash(b), nil
}

func readArtifact(path string) (*merkle.TreeArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return merkle.UnmarshalTreeArtifact(data)
}

func readDistributions(path string, decimals uint8) ([]types.Distribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	var rows []distributionInput
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}

	out := make([]types.Distribution, 0, len(rows))
	for i, row := range rows {
		account, err := parseAddress(row.Account)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		amount, err := token.ParseUnits(row.Amount, decimals)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, types.Distribution{Account: account, Amount: amount})
	}
	return out, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	fmt.Printf("✅ Artifact written to: %s\n", path)
	return nil
}

func buildTreeCommand(c *cli.Context) error {
	decimals := c.Uint("decimals")
	if decimals > 77 {
		return fmt.Errorf("decimals cannot exceed 77")
	}
	distributions, err := readDistributions(c.String("input"), uint8(decimals))
	if err != nil {
		return err
	}

	tree, err := merkle.BuildBalanceTree(distributions)
	if err != nil {
		return fmt.Errorf("failed to build tree: %w", err)
	}
	artifact, err := tree.Export(c.Context, c.Int("concurrency"))
	if err != nil {
		return err
	}
	data, err := merkle.MarshalTreeArtifact(artifact)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🌳 Built tree with %d leaves, root %s\n", tree.Len(), tree.HexRoot())
	return writeOutput(c.String("output"), data)
}

func verifyProofCommand(c *cli.Context) error {
	artifact, err := readArtifact(c.String("artifact"))
	if err != nil {
		return err
	}
	account, err := parseAddress(c.String("account"))
	if err != nil {
		return err
	}
	proof, ok := artifact.ClaimFor(account)
	if !ok {
		return fmt.Errorf("account %s has no claim in the artifact", account.Hex())
	}
	if !proof.Verify(artifact.Root) {
		return fmt.Errorf("proof for %s does not verify against %s", account.Hex(), artifact.Root.Hex())
	}
	fmt.Printf("✅ Valid proof: index %d, amount %s, %d nodes\n", proof.Position, proof.Amount, len(proof.Proof))
	return nil
}

func submitRootCommand(c *cli.Context) error {
	var root common.Hash
	switch {
	case c.String("root") != "":
		r, err := parseHash(c.String("root"))
		if err != nil {
			return err
		}
		root = r
	case c.String("artifact") != "":
		artifact, err := readArtifact(c.String("artifact"))
		if err != nil {
			return err
		}
		root = artifact.Root
	default:
		return fmt.Errorf("either --root or --artifact is required")
	}

	calcEnd := c.Int64("calculation-end")
	if calcEnd == 0 {
		calcEnd = time.Now().Unix()
	}

	client, err := createClient(c, true)
	if err != nil {
		return err
	}
	id, err := client.SubmitRoot(c.Context, root, c.Uint64("epoch"), calcEnd)
	if err != nil {
		return fmt.Errorf("failed to submit root: %w", err)
	}
	fmt.Printf("✅ Submitted root %s as id %d\n", root.Hex(), id)
	return nil
}

func toggleRootCommand(enable bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		root, err := parseHash(c.String("root"))
		if err != nil {
			return err
		}
		client, err := createClient(c, true)
		if err != nil {
			return err
		}

		id := uint32(c.Uint64("id"))
		toggle := client.DisableRoot
		if enable {
			toggle = client.EnableRoot
		}
		resp, err := toggle(c.Context, id, root)
		if err != nil {
			return fmt.Errorf("failed to update root %d: %w", id, err)
		}
		fmt.Printf("✅ Root %d is now %s\n", id, resp.Status)
		return nil
	}
}

func listRootsCommand(c *cli.Context) error {
	client, err := createClient(c, false)
	if err != nil {
		return err
	}
	roots, err := client.ListRoots(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list roots: %w", err)
	}
	return printJSON(roots)
}

func claimCommand(c *cli.Context) error {
	artifact, err := readArtifact(c.String("artifact"))
	if err != nil {
		return err
	}
	account, err := parseAddress(c.String("account"))
	if err != nil {
		return err
	}
	proof, ok := artifact.ClaimFor(account)
	if !ok {
		return fmt.Errorf("account %s has no claim in the artifact", account.Hex())
	}

	client, err := createClient(c, false)
	if err != nil {
		return err
	}
	paid, err := client.Claim(c.Context, uint32(c.Uint64("id")), artifact.Root, proof)
	if err != nil {
		return fmt.Errorf("failed to claim: %w", err)
	}
	fmt.Printf("✅ Paid %s to %s\n", paid, account.Hex())
	return nil
}

func setRewarderCommand(c *cli.Context) error {
	account, err := parseAddress(c.String("account"))
	if err != nil {
		return err
	}
	client, err := createClient(c, true)
	if err != nil {
		return err
	}
	if err := client.SetRewarder(c.Context, account, c.Bool("enabled")); err != nil {
		return fmt.Errorf("failed to set rewarder: %w", err)
	}
	fmt.Printf("✅ Rewarder %s enabled=%t\n", account.Hex(), c.Bool("enabled"))
	return nil
}

func withdrawCommand(c *cli.Context) error {
	to, err := parseAddress(c.String("to"))
	if err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(c.String("amount"), 10)
	if !ok || amount.Sign() < 0 {
		return fmt.Errorf("invalid amount %q", c.String("amount"))
	}
	client, err := createClient(c, true)
	if err != nil {
		return err
	}
	if err := client.Withdraw(c.Context, to, amount); err != nil {
		return fmt.Errorf("failed to withdraw: %w", err)
	}
	fmt.Printf("✅ Withdrew %s to %s\n", amount, to.Hex())
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
