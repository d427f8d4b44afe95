package receipts

import (
	"encoding/json"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"dlanstake/core/types"
)

// Receipt is the persisted form of an instruction receipt.
type Receipt struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Digest     string    `gorm:"index;not null"`
	Kind       string    `gorm:"index;not null"`
	Authority  string    `gorm:"index;not null"`
	Success    bool      `gorm:"not null"`
	ErrorKind  string
	Error      string
	Watermark  int64
	Events     string `gorm:"type:text"`
	ExecutedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the receipt schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Receipt{})
}

func fromReceipt(r *types.Receipt) (*Receipt, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	evts, err := json.Marshal(r.Events)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		ID:         id,
		Digest:     r.Digest,
		Kind:       r.Kind.String(),
		Authority:  r.Authority.String(),
		Success:    r.Success,
		ErrorKind:  r.ErrorKind,
		Error:      r.Error,
		Watermark:  r.Watermark,
		Events:     string(evts),
		ExecutedAt: r.ExecutedAt.UTC(),
	}, nil
}

func (row *Receipt) toReceipt() (*types.Receipt, error) {
	kind, err := types.ParseInstructionKind(row.Kind)
	if err != nil {
		return nil, err
	}
	authority, err := solana.PublicKeyFromBase58(row.Authority)
	if err != nil {
		return nil, err
	}
	out := &types.Receipt{
		ID:         row.ID.String(),
		Digest:     row.Digest,
		Kind:       kind,
		Authority:  authority,
		Success:    row.Success,
		ErrorKind:  row.ErrorKind,
		Error:      row.Error,
		Watermark:  row.Watermark,
		ExecutedAt: row.ExecutedAt.UTC(),
	}
	if row.Events != "" && row.Events != "null" {
		if err := json.Unmarshal([]byte(row.Events), &out.Events); err != nil {
			return nil, err
		}
	}
	return out, nil
}
