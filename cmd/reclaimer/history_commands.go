package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/solanare/reclaimer/client"
	"github.com/solanare/reclaimer/service/fees"
)

const defaultHealthTimeout = 5 * time.Second

func historyCommands() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Reclaim history commands (HTTP API)",
		Subcommands: []*cli.Command{
			listReclaimsCommand(),
			deleteReclaimsCommand(),
			listBumpsCommand(),
		},
	}
}

func listReclaimsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recorded reclaims",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Filter by wallet address (empty lists all wallets)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Maximum number of records to retrieve",
			},
			&cli.IntFlag{
				Name:    "offset",
				Aliases: []string{"o"},
				Usage:   "Number of records to skip",
			},
		},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			records, err := cl.ListReclaims(context.Background(), client.ListParams{
				Address: c.String("address"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list reclaims: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(records, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(records) == 0 {
				fmt.Println("No reclaims found")
				return nil
			}
			fmt.Printf("Found %d reclaim(s):\n\n", len(records))
			for i, rec := range records {
				fmt.Printf("[%d] Signature: %s\n", i+1, rec.Signature)
				fmt.Printf("    Wallet:    %s\n", rec.WalletAddress)
				fmt.Printf("    Closed:    %d account(s)\n", rec.AccountsClosed)
				fmt.Printf("    Reclaimed: %.9f SOL\n", fees.SOL(rec.ReclaimedLamports))
				fmt.Printf("    Tier:      %s\n", rec.Tier)
				if rec.Message != "" {
					fmt.Printf("    Note:      %s\n", rec.Message)
				}
				fmt.Printf("    At:        %s\n", rec.CreatedAt.Format(time.RFC3339))
				fmt.Println()
			}
			return nil
		},
	}
}

func deleteReclaimsCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a wallet's reclaim history",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			if err := cl.DeleteReclaims(context.Background(), address); err != nil {
				return fmt.Errorf("failed to delete reclaim history: %w", err)
			}

			fmt.Printf("Deleted reclaim history for %s\n", address)
			return nil
		},
	}
}

func listBumpsCommand() *cli.Command {
	return &cli.Command{
		Name:      "bumps",
		Usage:     "List a wallet's bump history",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Maximum number of records to retrieve",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())
			bumps, err := cl.ListBumps(context.Background(), client.ListParams{
				Address: address,
				Limit:   c.Int("limit"),
			})
			if err != nil {
				return fmt.Errorf("failed to list bumps: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(bumps, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(bumps) == 0 {
				fmt.Println("No bumps found")
				return nil
			}
			fmt.Printf("Found %d bump(s) for wallet %s:\n\n", len(bumps), address)
			for i, bump := range bumps {
				fmt.Printf("[%d] Signature: %s\n", i+1, bump.Signature)
				fmt.Printf("    Mint:     %s\n", bump.TokenMint)
				fmt.Printf("    Lamports: %d\n", bump.Lamports)
				fmt.Printf("    At:       %s\n", bump.CreatedAt.Format(time.RFC3339))
				fmt.Println()
			}
			return nil
		},
	}
}

func healthAction(c *cli.Context) error {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return fmt.Errorf("server-url is required (set RECLAIMER_SERVER_URL env var or use --server-url)")
	}

	httpClient := &http.Client{
		Timeout: c.Duration("timeout"),
	}

	resp, err := httpClient.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Printf("✓ Server is healthy (status: %d)\n", resp.StatusCode)
		fmt.Printf("  URL: %s\n", serverURL)
		return nil
	}

	return fmt.Errorf("server returned unhealthy status: %d", resp.StatusCode)
}
