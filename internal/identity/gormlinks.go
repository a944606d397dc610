package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkRecord mirrors the identity_links table.
type LinkRecord struct {
	Platform       string `gorm:"primaryKey;uniqueIndex:uniq_identity_links_platform_user,priority:1"`
	PlatformUserID string `gorm:"primaryKey;uniqueIndex:uniq_identity_links_platform_user,priority:2"`
	AccountID      string `gorm:"not null;index:idx_identity_links_account"`
	CreatedUnixUTC int64  `gorm:"not null"`
}

func (LinkRecord) TableName() string { return "identity_links" }

// GormLinkStore implements LinkStore using GORM.
type GormLinkStore struct {
	db *gorm.DB
}

// NewGormLinkStore returns a LinkStore backed by db.
func NewGormLinkStore(db *gorm.DB) *GormLinkStore {
	return &GormLinkStore{db: db}
}

// MigrateLinks creates or updates the identity_links table.
func MigrateLinks(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&LinkRecord{}); err != nil {
		return fmt.Errorf("auto migrate identity links: %w", err)
	}
	return nil
}

func (store *GormLinkStore) FindIdentityLink(ctx context.Context, platform ledger.SourcePlatform, platformUserID string) (ledger.AccountID, bool, error) {
	var model LinkRecord
	err := store.db.WithContext(ctx).
		Where("platform = ? AND platform_user_id = ?", platform.String(), platformUserID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.AccountID{}, false, nil
	}
	if err != nil {
		return ledger.AccountID{}, false, err
	}
	accountID, err := ledger.NewAccountID(model.AccountID)
	if err != nil {
		return ledger.AccountID{}, false, err
	}
	return accountID, true, nil
}

func (store *GormLinkStore) InsertIdentityLink(ctx context.Context, link Link) error {
	model := LinkRecord{
		Platform:       link.Platform.String(),
		PlatformUserID: link.PlatformUserID,
		AccountID:      link.AccountID.String(),
		CreatedUnixUTC: link.CreatedUnixUTC,
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkExists
	}
	return nil
}
