package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Receipt records the outcome of one submitted instruction.
type Receipt struct {
	ID         string           `json:"id"`
	Digest     string           `json:"digest"`
	Kind       InstructionKind  `json:"kind"`
	Authority  solana.PublicKey `json:"authority"`
	Success    bool             `json:"success"`
	ErrorKind  string           `json:"errorKind,omitempty"`
	Error      string           `json:"error,omitempty"`
	Watermark  int64            `json:"watermark,omitempty"`
	Events     []Event          `json:"events,omitempty"`
	ExecutedAt time.Time        `json:"executedAt"`
}
