package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"
)

// InstructionKind selects the program entry point.
type InstructionKind uint8

const (
	KindStakeAndMint       InstructionKind = 0x01 // legacy: lamports == minted units
	KindStakeAndMintPriced InstructionKind = 0x02
	KindClaimSplit         InstructionKind = 0x03 // legacy: no time gate
	KindInvestClaimSplit   InstructionKind = 0x04 // standard track
	KindVIPClaimSplitTimed InstructionKind = 0x05 // priority track
)

var kindNames = map[InstructionKind]string{
	KindStakeAndMint:       "stake_and_mint",
	KindStakeAndMintPriced: "stake_and_mint_priced",
	KindClaimSplit:         "claim_usdt_split",
	KindInvestClaimSplit:   "invest_claim_split",
	KindVIPClaimSplitTimed: "vip_claim_split_timed",
}

func (k InstructionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k InstructionKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseInstructionKind accepts the entry point name.
func ParseInstructionKind(value string) (InstructionKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for kind, name := range kindNames {
		if name == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction %q", value)
}

func (k InstructionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *InstructionKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseInstructionKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// InstructionAccounts lists the accounts an instruction references. Unused
// entries stay zero.
type InstructionAccounts struct {
	Admin          solana.PublicKey `json:"admin,omitempty"`
	Mint           solana.PublicKey `json:"mint,omitempty"`
	MintAuthority  solana.PublicKey `json:"mintAuthority,omitempty"`
	VaultToken     solana.PublicKey `json:"vaultToken,omitempty"`
	VaultAuthority solana.PublicKey `json:"vaultAuthority,omitempty"`
	FeeOwner       solana.PublicKey `json:"feeOwner,omitempty"`
	USDTMint       solana.PublicKey `json:"usdtMint,omitempty"`
}

// InstructionArgs carries the caller-declared amounts.
type InstructionArgs struct {
	SolLamports uint64 `json:"solLamports,omitempty"`
	MintAmount  uint64 `json:"mintAmount,omitempty"`
	UserAmount  uint64 `json:"userAmount,omitempty"`
	FeeAmount   uint64 `json:"feeAmount,omitempty"`
	Days        uint64 `json:"days,omitempty"`
}

// Instruction is one atomic call into the program, signed by Authority.
// Nonce lets a signer submit otherwise identical instructions.
type Instruction struct {
	Kind      InstructionKind     `json:"kind"`
	Authority solana.PublicKey    `json:"authority"`
	Accounts  InstructionAccounts `json:"accounts"`
	Args      InstructionArgs     `json:"args"`
	Nonce     uint64              `json:"nonce"`
}

// Bytes returns the canonical RLP encoding that signatures cover.
func (ix *Instruction) Bytes() ([]byte, error) {
	return rlp.EncodeToBytes(ix)
}

// Digest is the base58 BLAKE3 hash of the canonical encoding.
func (ix *Instruction) Digest() (string, error) {
	raw, err := ix.Bytes()
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(raw)
	return base58.Encode(sum[:]), nil
}

// Sign produces a SignedInstruction using the authority's wallet key.
func (ix *Instruction) Sign(key solana.PrivateKey) (*SignedInstruction, error) {
	if !key.PublicKey().Equals(ix.Authority) {
		return nil, fmt.Errorf("signing key %s does not match authority %s", key.PublicKey(), ix.Authority)
	}
	raw, err := ix.Bytes()
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(raw)
	if err != nil {
		return nil, err
	}
	return &SignedInstruction{Instruction: *ix, Signature: sig}, nil
}

// SignedInstruction is what clients submit.
type SignedInstruction struct {
	Instruction Instruction      `json:"instruction"`
	Signature   solana.Signature `json:"signature"`
}
