package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dlanstake/crypto"
	"dlanstake/native/stake"
	"dlanstake/sdk/client"
)

const (
	keyRPC      = "rpc"
	keyToken    = "token"
	keyKeypair  = "keypair"
	keyProgram  = "program"
	keyAdmin    = "admin"
	keyMint     = "mint"
	keyUSDTMint = "usdt-mint"
	keyFeeOwner = "fee-owner"
	keyOutput   = "output"
)

type cli struct {
	v       *viper.Viper
	cfgFile string
}

// newRootCmd builds the command tree over v, or a fresh viper when nil.
func newRootCmd(v *viper.Viper) *cobra.Command {
	if v == nil {
		v = viper.New()
	}
	c := &cli{v: v}
	root := &cobra.Command{
		Use:           "dlan-cli",
		Short:         "Deposit, claim and inspect the dlan staking program",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: $HOME/.dlan/config.yaml)")
	flags.String(keyRPC, "http://127.0.0.1:8899/rpc", "node JSON-RPC endpoint")
	flags.String(keyToken, "", "bearer token for instruction submission")
	flags.String(keyKeypair, defaultKeypairPath(), "solana-keygen keypair file of the signer")
	flags.String(keyProgram, stake.DefaultProgramID.String(), "program id")
	flags.String(keyAdmin, "", "admin account receiving deposits")
	flags.String(keyMint, "", "token mint minted on deposit")
	flags.String(keyUSDTMint, "", "mint paid out by claims")
	flags.String(keyFeeOwner, "", "fee recipient of claims")
	flags.StringP(keyOutput, "o", "yaml", "output format (yaml or json)")
	for _, key := range []string{keyRPC, keyToken, keyKeypair, keyProgram, keyAdmin, keyMint, keyUSDTMint, keyFeeOwner, keyOutput} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}

	root.AddCommand(
		c.keygenCmd(),
		c.authoritiesCmd(),
		c.stakeCmd(),
		c.claimCmd(),
		c.statusCmd(),
		c.balanceCmd(),
		c.mintsCmd(),
		c.receiptsCmd(),
	)
	return root
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".dlan", "id.json")
}

// initConfig reads the config file and DLAN_* environment variables.
func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(filepath.Join(home, ".dlan"))
		}
		c.v.SetConfigType("yaml")
		c.v.SetConfigName("config")
	}
	c.v.SetEnvPrefix("DLAN")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (c *cli) client() (*client.Client, error) {
	return client.New(c.v.GetString(keyRPC), client.WithAuthToken(c.v.GetString(keyToken)))
}

func (c *cli) signer() (solana.PrivateKey, error) {
	key, err := crypto.LoadKeypair(c.v.GetString(keyKeypair))
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	return key, nil
}

// address parses an optional configured address; required ones fail when
// empty.
func (c *cli) address(key string, required bool) (solana.PublicKey, error) {
	value := strings.TrimSpace(c.v.GetString(key))
	if value == "" {
		if required {
			return solana.PublicKey{}, fmt.Errorf("--%s is required", key)
		}
		return solana.PublicKey{}, nil
	}
	addr, err := crypto.ParsePublicKey(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", key, err)
	}
	return addr, nil
}

func (c *cli) deployment(requireDeposit, requireClaim bool) (client.Deployment, error) {
	var d client.Deployment
	var err error
	if d.ProgramID, err = c.address(keyProgram, true); err != nil {
		return d, err
	}
	if d.Admin, err = c.address(keyAdmin, requireDeposit); err != nil {
		return d, err
	}
	if d.Mint, err = c.address(keyMint, requireDeposit); err != nil {
		return d, err
	}
	if d.USDTMint, err = c.address(keyUSDTMint, requireClaim); err != nil {
		return d, err
	}
	if d.FeeOwner, err = c.address(keyFeeOwner, requireClaim); err != nil {
		return d, err
	}
	return d, nil
}

func (c *cli) print(w io.Writer, value interface{}) error {
	switch strings.ToLower(c.v.GetString(keyOutput)) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml", "":
		// Round-trip through JSON so YAML keys follow the wire names.
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unknown output format %q", c.v.GetString(keyOutput))
	}
}
