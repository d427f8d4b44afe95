// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"dlanstake/crypto"
)

// programOwnerPrefix marks an owner or authority resolved to a derived
// program authority, e.g. "program:vault-auth".
const programOwnerPrefix = "program:"

type GenesisSpec struct {
	GenesisTime   string             `json:"genesisTime" yaml:"genesisTime"`
	ProgramID     string             `json:"programId" yaml:"programId"`
	Mints         []MintSpec         `json:"mints" yaml:"mints"`
	TokenAccounts []TokenAccountSpec `json:"tokenAccounts" yaml:"tokenAccounts"`
	Lamports      map[string]uint64  `json:"lamports" yaml:"lamports"` // addr -> balance

	genesisTimestamp time.Time
	programID        solana.PublicKey
	mints            map[solana.PublicKey]resolvedMint
	accounts         []resolvedTokenAccount
	lamports         map[solana.PublicKey]uint64
}

type MintSpec struct {
	Address   string `json:"address" yaml:"address"`
	Authority string `json:"authority" yaml:"authority"`
	Decimals  uint8  `json:"decimals" yaml:"decimals"`
}

// TokenAccountSpec seeds the associated token account of Owner for Mint.
type TokenAccountSpec struct {
	Owner  string `json:"owner" yaml:"owner"`
	Mint   string `json:"mint" yaml:"mint"`
	Amount uint64 `json:"amount" yaml:"amount"`
}

type resolvedMint struct {
	authority solana.PublicKey
	decimals  uint8
}

type resolvedTokenAccount struct {
	owner  solana.PublicKey
	mint   solana.PublicKey
	amount uint64
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec GenesisSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
		}
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// ProgramIDValue returns the parsed program id.
func (s *GenesisSpec) ProgramIDValue() solana.PublicKey { return s.programID }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	s.programID, err = crypto.ParsePublicKey(s.ProgramID)
	if err != nil {
		return fmt.Errorf("programId: %w", err)
	}

	// mints
	s.mints = make(map[solana.PublicKey]resolvedMint, len(s.Mints))
	for i, m := range s.Mints {
		addr, err := crypto.ParsePublicKey(m.Address)
		if err != nil {
			return fmt.Errorf("mint[%d]: address: %w", i, err)
		}
		if _, exists := s.mints[addr]; exists {
			return fmt.Errorf("mint[%d]: duplicate address %q", i, m.Address)
		}
		authority, err := s.resolveOwner(m.Authority)
		if err != nil {
			return fmt.Errorf("mint[%d]: authority: %w", i, err)
		}
		s.mints[addr] = resolvedMint{authority: authority, decimals: m.Decimals}
	}

	// token accounts
	s.accounts = make([]resolvedTokenAccount, 0, len(s.TokenAccounts))
	seen := make(map[[2]solana.PublicKey]struct{}, len(s.TokenAccounts))
	supply := make(map[solana.PublicKey]uint64, len(s.mints))
	for i, ta := range s.TokenAccounts {
		owner, err := s.resolveOwner(ta.Owner)
		if err != nil {
			return fmt.Errorf("tokenAccount[%d]: owner: %w", i, err)
		}
		mint, err := crypto.ParsePublicKey(ta.Mint)
		if err != nil {
			return fmt.Errorf("tokenAccount[%d]: mint: %w", i, err)
		}
		if _, ok := s.mints[mint]; !ok {
			return fmt.Errorf("tokenAccount[%d]: undefined mint %q", i, ta.Mint)
		}
		key := [2]solana.PublicKey{owner, mint}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("tokenAccount[%d]: duplicate account for owner %q", i, ta.Owner)
		}
		seen[key] = struct{}{}
		if supply[mint]+ta.Amount < supply[mint] {
			return fmt.Errorf("tokenAccount[%d]: supply of %q overflows", i, ta.Mint)
		}
		supply[mint] += ta.Amount
		s.accounts = append(s.accounts, resolvedTokenAccount{owner: owner, mint: mint, amount: ta.Amount})
	}
	sort.Slice(s.accounts, func(i, j int) bool {
		if c := bytes.Compare(s.accounts[i].mint[:], s.accounts[j].mint[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(s.accounts[i].owner[:], s.accounts[j].owner[:]) < 0
	})

	// lamports
	s.lamports = make(map[solana.PublicKey]uint64, len(s.Lamports))
	for account, amount := range s.Lamports {
		addr, err := s.resolveOwner(account)
		if err != nil {
			return fmt.Errorf("lamports[%q]: %w", account, err)
		}
		if _, dup := s.lamports[addr]; dup {
			return fmt.Errorf("lamports[%q]: duplicate account", account)
		}
		s.lamports[addr] = amount
	}
	return nil
}

// resolveOwner parses a base58 address or a program authority reference.
func (s *GenesisSpec) resolveOwner(value string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(value)
	if label, ok := strings.CutPrefix(trimmed, programOwnerPrefix); ok {
		switch label {
		case crypto.MintAuthoritySeed, crypto.VaultAuthoritySeed:
		default:
			return solana.PublicKey{}, fmt.Errorf("unknown program authority %q", label)
		}
		addr, _, err := crypto.FindProgramAddress(s.programID, []byte(label))
		return addr, err
	}
	return crypto.ParsePublicKey(trimmed)
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("genesisTime: %w", err)
	}
	return ts.UTC(), nil
}
