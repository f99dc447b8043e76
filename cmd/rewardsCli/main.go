package main

import (
	"log"
	"os"

	"github.com/Layr-Labs/rewards-distributor-go/pkg/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	rootFlags := []cli.Flag{
		&cli.Uint64Flag{
			Name:     "id",
			Usage:    "Distribution root id",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "root",
			Usage:    "Expected root hash (0x-prefixed)",
			Required: true,
		},
	}

	return &cli.App{
		Name:  "rewards-cli",
		Usage: "Build reward trees and operate a rewards server",
		Description: `A client for the rewards distributor.

Offline commands:
- build-tree turns a list of (account, amount) pairs into a tree artifact with every proof
- verify-proof checks one claim of an artifact against its root

Server commands sign privileged requests with --private-key.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Rewards server URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{config.EnvRewardsServerURL},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex private key used to sign requests",
				EnvVars: []string{config.EnvRewardsPrivateKey},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build-tree",
				Usage: "Build a tree artifact from a JSON list of distributions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Usage:    `JSON file of [{"account": "0x..", "amount": "1.5"}]`,
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output file for the artifact (stdout when empty)",
					},
					&cli.UintFlag{
						Name:  "decimals",
						Usage: "Decimals used to parse amounts, 0 for base units",
						Value: config.DefaultTokenDecimals,
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Proof generation workers",
						Value: 4,
					},
				},
				Action: buildTreeCommand,
			},
			{
				Name:  "verify-proof",
				Usage: "Verify the claim of an account against an artifact",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "artifact",
						Usage:    "Tree artifact file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "account",
						Usage:    "Claimant address",
						Required: true,
					},
				},
				Action: verifyProofCommand,
			},
			{
				Name:  "submit-root",
				Usage: "Submit a distribution root (rewarder only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "root",
						Usage: "Root hash (0x-prefixed), or read from --artifact",
					},
					&cli.StringFlag{
						Name:  "artifact",
						Usage: "Tree artifact to take the root from",
					},
					&cli.Uint64Flag{
						Name:  "epoch",
						Usage: "Epoch id",
					},
					&cli.Int64Flag{
						Name:  "calculation-end",
						Usage: "Calculation end timestamp (unix seconds), defaults to now",
					},
				},
				Action: submitRootCommand,
			},
			{
				Name:   "disable-root",
				Usage:  "Disable a pending root (owner only)",
				Flags:  rootFlags,
				Action: toggleRootCommand(false),
			},
			{
				Name:   "enable-root",
				Usage:  "Re-enable a pending root (owner only)",
				Flags:  rootFlags,
				Action: toggleRootCommand(true),
			},
			{
				Name:   "roots",
				Usage:  "List every submitted root",
				Action: listRootsCommand,
			},
			{
				Name:  "claim",
				Usage: "Claim cumulative rewards with a proof from an artifact",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "artifact",
						Usage:    "Tree artifact the root was built from",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:     "id",
						Usage:    "Distribution root id",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "account",
						Usage:    "Claimant address",
						Required: true,
					},
				},
				Action: claimCommand,
			},
			{
				Name:  "set-rewarder",
				Usage: "Grant or revoke the rewarder role (owner only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "account",
						Usage:    "Rewarder address",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "enabled",
						Usage: "Grant (true) or revoke (false)",
						Value: true,
					},
				},
				Action: setRewarderCommand,
			},
			{
				Name:  "withdraw",
				Usage: "Withdraw tokens from custody (owner only)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Recipient address",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Amount in base units",
						Required: true,
					},
				},
				Action: withdrawCommand,
			},
		},
	}
}
