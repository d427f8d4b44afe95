package main

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"dlanstake/core/types"
	"dlanstake/crypto"
	"dlanstake/native/stake"
	"dlanstake/sdk/client"
)

func (c *cli) keygenCmd() *cobra.Command {
	var outPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signer keypair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outPath == "" {
				outPath = c.v.GetString(keyKeypair)
			}
			if _, err := os.Stat(outPath); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", outPath)
			}
			key, err := crypto.GenerateKeypair()
			if err != nil {
				return err
			}
			if err := crypto.SaveKeypair(outPath, key); err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), map[string]string{
				"publicKey": key.PublicKey().String(),
				"path":      outPath,
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "keypair file to write (defaults to --keypair)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (c *cli) authoritiesCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "authorities",
		Short: "Show the program's derived mint and vault authorities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if offline {
				programID, err := c.address(keyProgram, true)
				if err != nil {
					return err
				}
				mint, mintBump, vault, vaultBump, err := stake.Authorities(programID)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), map[string]interface{}{
					"programId":      programID.String(),
					"mintAuthority":  mint.String(),
					"mintBump":       mintBump,
					"vaultAuthority": vault.String(),
					"vaultBump":      vaultBump,
				})
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			auth, err := cl.Authorities(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), auth)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "derive locally from --program instead of asking the node")
	return cmd
}

func (c *cli) stakeCmd() *cobra.Command {
	var lamports, mintAmount uint64
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Deposit lamports to the admin and mint tokens to the signer",
		Long: `Without --mint-amount the legacy entry point mints one unit per lamport.
With --mint-amount the priced entry point mints the quoted amount.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.deployment(true, false)
			if err != nil {
				return err
			}
			key, err := c.signer()
			if err != nil {
				return err
			}
			b := client.NewBuilder(d)
			var signed *types.SignedInstruction
			if cmd.Flags().Changed("mint-amount") {
				signed, err = b.StakeAndMintPriced(key, lamports, mintAmount)
			} else {
				signed, err = b.StakeAndMint(key, lamports)
			}
			if err != nil {
				return err
			}
			return c.send(cmd, signed)
		},
	}
	cmd.Flags().Uint64Var(&lamports, "lamports", 0, "lamports to deposit")
	cmd.Flags().Uint64Var(&mintAmount, "mint-amount", 0, "token units to mint (priced deposit)")
	_ = cmd.MarkFlagRequired("lamports")
	return cmd
}

func (c *cli) claimCmd() *cobra.Command {
	var track string
	var userAmount, feeAmount, days uint64
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Pay out from the vault to the signer and the fee recipient",
		Long: `Tracks: legacy (no time gate), standard, priority.
Timed tracks consume --days whole elapsed days from the signer's claim record.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := client.ClaimKind(track)
			if err != nil {
				return err
			}
			d, err := c.deployment(false, true)
			if err != nil {
				return err
			}
			key, err := c.signer()
			if err != nil {
				return err
			}
			signed, err := client.NewBuilder(d).Claim(key, kind, userAmount, feeAmount, days)
			if err != nil {
				return err
			}
			return c.send(cmd, signed)
		},
	}
	cmd.Flags().StringVar(&track, "track", "standard", "legacy, standard or priority")
	cmd.Flags().Uint64Var(&userAmount, "user-amount", 0, "units paid to the signer")
	cmd.Flags().Uint64Var(&feeAmount, "fee-amount", 0, "units paid to the fee recipient")
	cmd.Flags().Uint64Var(&days, "days", 0, "whole days to consume (timed tracks)")
	return cmd
}

// send submits and prints the receipt, including for rejections.
func (c *cli) send(cmd *cobra.Command, signed *types.SignedInstruction) error {
	cl, err := c.client()
	if err != nil {
		return err
	}
	receipt, err := cl.Send(cmd.Context(), signed)
	if receipt != nil {
		if printErr := c.print(cmd.OutOrStdout(), receipt); printErr != nil {
			return printErr
		}
	}
	if err != nil {
		if kind := client.RejectionKind(err); kind != "" {
			return fmt.Errorf("rejected: %s", kind)
		}
		return err
	}
	return nil
}

func (c *cli) participant(value string) (solana.PublicKey, error) {
	if value != "" {
		return crypto.ParsePublicKey(value)
	}
	key, err := c.signer()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return key.PublicKey(), nil
}

func (c *cli) statusCmd() *cobra.Command {
	var track, who string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a participant's claim window on a timed track",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := stake.ParseTrack(track)
			if err != nil {
				return err
			}
			participant, err := c.participant(who)
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			status, err := cl.ClaimStatus(cmd.Context(), parsed, participant)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&track, "track", "standard", "standard or priority")
	cmd.Flags().StringVar(&who, "participant", "", "participant address (defaults to the signer)")
	return cmd
}

type tokenView struct {
	Mint    string `json:"mint"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type balanceView struct {
	Owner    string      `json:"owner"`
	Lamports uint64      `json:"lamports"`
	Tokens   []tokenView `json:"tokens,omitempty"`
}

func (c *cli) balanceCmd() *cobra.Command {
	var who string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show lamports and configured token balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := c.participant(who)
			if err != nil {
				return err
			}
			d, err := c.deployment(false, false)
			if err != nil {
				return err
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			lamports, err := cl.Lamports(cmd.Context(), owner)
			if err != nil {
				return err
			}
			view := balanceView{Owner: owner.String(), Lamports: lamports}
			for _, mint := range []solana.PublicKey{d.Mint, d.USDTMint} {
				if mint.IsZero() {
					continue
				}
				bal, err := cl.TokenBalance(cmd.Context(), owner, mint)
				if err != nil {
					return err
				}
				view.Tokens = append(view.Tokens, tokenView{Mint: mint.String(), Account: bal.Account.String(), Amount: bal.Amount})
			}
			return c.print(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&who, "owner", "", "owner address (defaults to the signer)")
	return cmd
}

func (c *cli) mintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mints",
		Short: "List the mints registered on the node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := c.client()
			if err != nil {
				return err
			}
			mints, err := cl.Mints(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), mints)
		},
	}
}

func (c *cli) receiptsCmd() *cobra.Command {
	var q client.ReceiptQuery
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "List indexed receipts by id, authority or digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if q.ID == "" && q.Authority == "" && q.Digest == "" {
				key, err := c.signer()
				if err != nil {
					return err
				}
				q.Authority = key.PublicKey().String()
			}
			cl, err := c.client()
			if err != nil {
				return err
			}
			list, err := cl.Receipts(cmd.Context(), q)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&q.ID, "id", "", "receipt id")
	cmd.Flags().StringVar(&q.Authority, "authority", "", "signer address (defaults to the signer)")
	cmd.Flags().StringVar(&q.Digest, "digest", "", "instruction digest")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum receipts returned")
	return cmd
}
