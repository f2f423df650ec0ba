package indexer

import (
	"time"

	"gorm.io/gorm"
)

// ContractRow is the query projection of a contract record. SortKey is the
// hex form of the raw address so listings follow the ledger's key order.
type ContractRow struct {
	Address            string `gorm:"primaryKey;size:64"`
	SortKey            string `gorm:"size:40;index"`
	Client             string `gorm:"size:64;index"`
	ContractID         uint64
	Title              string `gorm:"size:128"`
	Topic              string `gorm:"size:512"`
	Status             string `gorm:"size:16;index"`
	Contractor         string `gorm:"size:64;index"`
	Amount             string `gorm:"size:24"`
	AcceptedProposalID *uint64
	Height             uint64 `gorm:"index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProposalRow is the query projection of a proposal record.
type ProposalRow struct {
	Address    string `gorm:"primaryKey;size:64"`
	SortKey    string `gorm:"size:40;index"`
	Contractor string `gorm:"size:64;index"`
	ProposalID uint64
	Contract   string `gorm:"size:64;index"`
	Amount     string `gorm:"size:24"`
	Chosen     bool
	Height     uint64 `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IndexState holds the ledger height the projections reflect.
type IndexState struct {
	ID        uint `gorm:"primaryKey"`
	Height    uint64
	UpdatedAt time.Time
}

// AutoMigrate creates or updates the projection tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ContractRow{}, &ProposalRow{}, &IndexState{})
}
