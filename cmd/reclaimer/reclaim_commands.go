package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/solanare/reclaimer/client"
	"github.com/solanare/reclaimer/service/fees"
	"github.com/solanare/reclaimer/service/reclaim"
	"github.com/solanare/reclaimer/service/scanner"
	solclient "github.com/solanare/reclaimer/service/solana"
	"github.com/solanare/reclaimer/service/txbuilder"
)

func reclaimCommand() *cli.Command {
	return &cli.Command{
		Name:  "reclaim",
		Usage: "Close reclaimable accounts and sweep the rent back to the wallet",
		Flags: append(rpcFlags(),
			&cli.StringFlag{
				Name:     "keypair",
				Aliases:  []string{"k"},
				Usage:    "Path to the wallet keypair file (solana-keygen format)",
				EnvVars:  []string{"SOLANA_KEYPAIR"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "treasury",
				Usage:    "Treasury address receiving the platform fee",
				EnvVars:  []string{"TREASURY_ADDRESS"},
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "include-warned",
				Usage: "Also close accounts whose remaining balance will be burned (irreversible)",
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "Optional note stamped into the transaction memo",
			},
			&cli.Uint64Flag{
				Name:    "min-viable",
				Usage:   "Minimum net lamports per account worth closing",
				EnvVars: []string{"MIN_VIABLE_RECLAIM_LAMPORTS"},
			},
			&cli.StringFlag{
				Name:    "holder-mint",
				Usage:   "Platform token mint for the reduced-fee tier",
				EnvVars: []string{"HOLDER_TOKEN_MINT"},
			},
			&cli.Uint64Flag{
				Name:    "holder-min-tokens",
				Usage:   "Raw token amount required for the holder tier",
				EnvVars: []string{"HOLDER_MIN_TOKENS"},
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Record confirmed reclaims with the history server (uses --server-url)",
			},
		),
		Action: func(c *cli.Context) error {
			key, err := solana.PrivateKeyFromSolanaKeygenFile(c.String("keypair"))
			if err != nil {
				return fmt.Errorf("failed to load keypair: %w", err)
			}
			wallet := key.PublicKey()

			treasury, err := solana.PublicKeyFromBase58(c.String("treasury"))
			if err != nil {
				return fmt.Errorf("invalid treasury address: %w", err)
			}

			cfg := reclaim.Config{
				Treasury:          treasury,
				MinViableLamports: c.Uint64("min-viable"),
			}
			if mint := c.String("holder-mint"); mint != "" {
				pk, err := solana.PublicKeyFromBase58(mint)
				if err != nil {
					return fmt.Errorf("invalid holder mint: %w", err)
				}
				if c.Uint64("holder-min-tokens") == 0 {
					return fmt.Errorf("--holder-min-tokens is required with --holder-mint")
				}
				cfg.HolderMint = pk
				cfg.HolderMinRaw = c.Uint64("holder-min-tokens")
			}

			logger := cliLogger()
			cl, cleanup, err := newSolanaClient(c, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			var records reclaim.RecordSink
			if c.Bool("record") {
				records = &historySink{client: client.NewClient(c.String("server-url"), nil, logger)}
			}

			orch := newOrchestrator(cfg, cl, key, records, logger)
			summary, err := orch.Run(context.Background(), wallet, reclaim.Options{
				IncludeWarned: c.Bool("include-warned"),
				Message:       c.String("message"),
			})
			if errors.Is(err, reclaim.ErrNothingToClose) {
				fmt.Println("No closeable accounts found")
				return nil
			}
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printSummaryJSON(summary)
			}
			printSummary(summary)
			return nil
		},
	}
}

func holderCommand() *cli.Command {
	return &cli.Command{
		Name:      "holder",
		Usage:     "Check whether a wallet qualifies for the holder fee tier",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: append(rpcFlags(),
			&cli.StringFlag{
				Name:     "mint",
				Usage:    "Platform token mint",
				EnvVars:  []string{"HOLDER_TOKEN_MINT"},
				Required: true,
			},
			&cli.Uint64Flag{
				Name:     "min-tokens",
				Usage:    "Raw token amount required for the holder tier",
				EnvVars:  []string{"HOLDER_MIN_TOKENS"},
				Required: true,
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			wallet, err := solana.PublicKeyFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid wallet address: %w", err)
			}
			mint, err := solana.PublicKeyFromBase58(c.String("mint"))
			if err != nil {
				return fmt.Errorf("invalid mint address: %w", err)
			}

			logger := cliLogger()
			cl, cleanup, err := newSolanaClient(c, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			holder, err := cl.IsHolder(context.Background(), wallet, mint, c.Uint64("min-tokens"))
			if err != nil {
				return fmt.Errorf("failed to check holder status: %w", err)
			}

			tier := fees.TierStandard
			if holder {
				tier = fees.TierHolder
			}
			if c.Bool("json") {
				data, _ := json.MarshalIndent(map[string]interface{}{
					"wallet": wallet.String(),
					"holder": holder,
					"tier":   tier.String(),
					"rate":   tier.Rate(),
				}, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Wallet: %s\n", wallet)
			fmt.Printf("  Holder: %v\n", holder)
			fmt.Printf("  Tier:   %s (%.0f%% fee)\n", tier, tier.Rate()*100)
			return nil
		},
	}
}

// newOrchestrator wires the production scan and close pipeline around one
// Solana client and a local signing key.
func newOrchestrator(cfg reclaim.Config, cl *solclient.Client, key solana.PrivateKey, records reclaim.RecordSink, logger *slog.Logger) *reclaim.Orchestrator {
	probe := scanner.NewLiquidityProbe(cl, logger)
	signer := &walletSigner{key: key, client: cl}

	// The classifier's minimum-viable check nets out the tier's fee, so the
	// scanner is built per run once the wallet's tier is resolved.
	newScanner := func(tier fees.Tier) reclaim.WalletScanner {
		classifier := scanner.NewClassifier(probe, tier, cfg.MinViableLamports, logger)
		return scanner.NewScanner(cl, classifier, nil, logger)
	}
	newCloser := func(tier fees.Tier, message string) reclaim.Closer {
		builder := txbuilder.NewBuilder(cfg.Treasury, tier, message)
		return txbuilder.NewBatchCloser(builder, cl, signer, cl, nil, logger)
	}

	return reclaim.NewOrchestrator(cfg, cl, newScanner, newCloser, records, nil, nil, logger)
}

// walletSigner signs transactions with a local keypair and submits them
// through the failover client.
type walletSigner struct {
	key    solana.PrivateKey
	client *solclient.Client
}

func (s *walletSigner) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return s.client.SendTransaction(ctx, tx)
}

// historySink records confirmed reclaims with the history server.
type historySink struct {
	client *client.Client
}

func (s *historySink) Record(ctx context.Context, rec reclaim.Record) error {
	_, err := s.client.CreateReclaim(ctx, client.CreateReclaimParams{
		WalletAddress:     rec.Wallet,
		Signature:         rec.Signature,
		AccountsClosed:    rec.AccountsClosed,
		ReclaimedLamports: rec.ReclaimedLamports,
		Tier:              rec.Tier,
		Message:           rec.Message,
	})
	return err
}

func printSummaryJSON(summary *reclaim.Summary) error {
	failed := make([]string, len(summary.FailedAddresses))
	for i, addr := range summary.FailedAddresses {
		failed[i] = addr.String()
	}
	sigs := make([]string, len(summary.Signatures))
	for i, sig := range summary.Signatures {
		sigs[i] = sig.String()
	}
	data, err := json.MarshalIndent(map[string]interface{}{
		"wallet":             summary.Wallet.String(),
		"tier":               summary.Tier.String(),
		"closed":             summary.ClosedCount,
		"failed":             summary.FailedCount,
		"reclaimed_lamports": summary.TotalReclaimedLamports,
		"reclaimed_sol":      fees.SOL(summary.TotalReclaimedLamports),
		"failed_addresses":   failed,
		"signatures":         sigs,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printSummary(summary *reclaim.Summary) {
	fmt.Printf("Reclaim complete for %s\n", summary.Wallet)
	fmt.Printf("  Tier:      %s\n", summary.Tier)
	fmt.Printf("  Closed:    %d account(s)\n", summary.ClosedCount)
	if summary.FailedCount > 0 {
		fmt.Printf("  Failed:    %d account(s)\n", summary.FailedCount)
		for _, addr := range summary.FailedAddresses {
			fmt.Printf("    %s\n", addr)
		}
	}
	fmt.Printf("  Reclaimed: %.9f SOL\n", fees.SOL(summary.TotalReclaimedLamports))
	for _, sig := range summary.Signatures {
		fmt.Printf("  Signature: %s\n", sig)
	}
	if summary.PostScan != nil {
		fmt.Printf("  Remaining closeable after run: %d\n", len(summary.PostScan.Closeable(true)))
	}
}
