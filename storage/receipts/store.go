package receipts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dlanstake/core/types"
)

var (
	// ErrDSNRequired is returned when no database DSN is configured.
	ErrDSNRequired = errors.New("receipts: dsn must be configured")
	// ErrNotFound is returned when a receipt id is unknown.
	ErrNotFound = errors.New("receipts: not found")
)

const defaultListLimit = 50

// Store indexes receipts in a relational database.
type Store struct {
	db *gorm.DB
}

// Open connects to postgres when the DSN is a postgres URL and to sqlite
// otherwise, then migrates the schema.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("receipts: open database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("receipts: database must not be nil")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("receipts: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record persists a receipt.
func (s *Store) Record(ctx context.Context, receipt *types.Receipt) error {
	if s == nil {
		return fmt.Errorf("receipts: store not configured")
	}
	if receipt == nil {
		return fmt.Errorf("receipts: receipt must not be nil")
	}
	row, err := fromReceipt(receipt)
	if err != nil {
		return fmt.Errorf("receipts: encode: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("receipts: insert: %w", err)
	}
	return nil
}

// Get loads a receipt by id.
func (s *Store) Get(ctx context.Context, id string) (*types.Receipt, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, fmt.Errorf("receipts: invalid id %q: %w", id, err)
	}
	var row Receipt
	if err := s.db.WithContext(ctx).First(&row, "id = ?", parsed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toReceipt()
}

// ByAuthority lists the newest receipts submitted by authority.
func (s *Store) ByAuthority(ctx context.Context, authority solana.PublicKey, limit int) ([]*types.Receipt, error) {
	return s.list(ctx, "authority = ?", authority.String(), limit)
}

// ByDigest lists receipts for an instruction digest, newest first.
func (s *Store) ByDigest(ctx context.Context, digest string, limit int) ([]*types.Receipt, error) {
	return s.list(ctx, "digest = ?", digest, limit)
}

func (s *Store) list(ctx context.Context, where string, arg interface{}, limit int) ([]*types.Receipt, error) {
	if s == nil {
		return nil, fmt.Errorf("receipts: store not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	var rows []Receipt
	if err := s.db.WithContext(ctx).Where(where, arg).Order("executed_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Receipt, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toReceipt()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
