// Package indexer projects committed marketplace events into a relational
// store so listing queries do not have to scan the state trie.
package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"lancechain/core"
	"lancechain/core/types"
	"lancechain/crypto"
	"lancechain/native/marketplace"
)

// RecordSource re-reads records from the ledger when an event references
// them.
type RecordSource interface {
	Contract(addr [20]byte) (*marketplace.Contract, error)
	Proposal(addr [20]byte) (*marketplace.Proposal, error)
}

// Backfiller lists every record so an empty index can be rebuilt.
type Backfiller interface {
	ListContracts(filter core.ContractFilter) ([]core.ContractEntry, error)
	ListProposals(filter core.ProposalFilter) ([]core.ProposalEntry, error)
	GetHeight() uint64
}

// Indexer maintains the contract and proposal projections.
type Indexer struct {
	db     *gorm.DB
	source RecordSource
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use the postgres
// driver; anything else is handed to sqlite.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("indexer dsn must be configured")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open indexer database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate indexer database: %w", err)
	}
	return db, nil
}

// New wraps an opened database. source resolves the records named by events.
func New(db *gorm.DB, source RecordSource) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: nil database")
	}
	if source == nil {
		return nil, errors.New("indexer: nil record source")
	}
	return &Indexer{db: db, source: source}, nil
}

// HandleReceipt projects the events of an accepted transaction. Its
// signature matches core.CommitHook. When an earlier receipt was missed and
// the source can list the ledger, the projections are rebuilt instead.
func (ix *Indexer) HandleReceipt(ctx context.Context, receipt *types.Receipt) error {
	if receipt == nil {
		return nil
	}
	if src, ok := ix.source.(Backfiller); ok {
		indexed, err := ix.Height(ctx)
		if err != nil {
			return err
		}
		if indexed+1 < receipt.Height {
			return ix.Rebuild(ctx, src)
		}
	}
	return ix.Apply(ctx, receipt.Height, receipt.Events)
}

// Apply projects evts observed at height.
func (ix *Indexer) Apply(ctx context.Context, height uint64, evts []types.Event) error {
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, evt := range evts {
			if err := ix.applyEvent(tx, height, evt); err != nil {
				return fmt.Errorf("%s: %w", evt.Type, err)
			}
		}
		return advanceHeight(tx, height)
	})
}

const indexStateID = 1

// Height returns the ledger height the projections were last brought to.
func (ix *Indexer) Height(ctx context.Context) (uint64, error) {
	var state IndexState
	err := ix.db.WithContext(ctx).Where("id = ?", indexStateID).Limit(1).Find(&state).Error
	return state.Height, err
}

func advanceHeight(tx *gorm.DB, height uint64) error {
	var state IndexState
	if err := tx.Where("id = ?", indexStateID).Limit(1).Find(&state).Error; err != nil {
		return err
	}
	if state.ID != 0 && state.Height >= height {
		return nil
	}
	return storeHeight(tx, height)
}

func storeHeight(tx *gorm.DB, height uint64) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"height", "updated_at"}),
	}).Create(&IndexState{ID: indexStateID, Height: height}).Error
}

func sortKey(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func (ix *Indexer) applyEvent(tx *gorm.DB, height uint64, evt types.Event) error {
	switch evt.Type {
	case marketplace.EventTypeContractInitialized,
		marketplace.EventTypeWorkDone,
		marketplace.EventTypePaymentClaimed:
		return ix.refreshContract(tx, height, evt.Attributes["contract"])
	case marketplace.EventTypeProposalChosen:
		if err := ix.refreshContract(tx, height, evt.Attributes["contract"]); err != nil {
			return err
		}
		if err := ix.refreshProposal(tx, height, evt.Attributes["proposal"]); err != nil {
			return err
		}
		return tx.Model(&ProposalRow{}).
			Where("address = ?", evt.Attributes["proposal"]).
			Update("chosen", true).Error
	case marketplace.EventTypeProposalInitialized,
		marketplace.EventTypeProposalUpdated:
		return ix.refreshProposal(tx, height, evt.Attributes["proposal"])
	}
	return nil
}

func (ix *Indexer) refreshContract(tx *gorm.DB, height uint64, addrStr string) error {
	addr, err := crypto.ParseAddress(addrStr)
	if err != nil {
		return err
	}
	contract, err := ix.source.Contract(addr)
	if err != nil {
		return err
	}
	return upsertContract(tx, height, addr, contract)
}

func (ix *Indexer) refreshProposal(tx *gorm.DB, height uint64, addrStr string) error {
	addr, err := crypto.ParseAddress(addrStr)
	if err != nil {
		return err
	}
	proposal, err := ix.source.Proposal(addr)
	if err != nil {
		return err
	}
	return upsertProposal(tx, height, addr, proposal, false)
}

func contractRow(height uint64, addr [20]byte, c *marketplace.Contract) *ContractRow {
	row := &ContractRow{
		Address:    crypto.FromArray(addr).String(),
		SortKey:    sortKey(addr),
		Client:     crypto.FromArray(c.Client).String(),
		ContractID: c.ContractID,
		Title:      c.Title,
		Topic:      c.Topic,
		Status:     c.Status.String(),
		Height:     height,
	}
	if c.Contractor != nil {
		row.Contractor = crypto.FromArray(*c.Contractor).String()
	}
	if c.Amount != nil {
		row.Amount = strconv.FormatUint(*c.Amount, 10)
	}
	if c.AcceptedProposalID != nil {
		id := *c.AcceptedProposalID
		row.AcceptedProposalID = &id
	}
	return row
}

func upsertContract(tx *gorm.DB, height uint64, addr [20]byte, c *marketplace.Contract) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "contractor", "amount", "accepted_proposal_id", "height", "updated_at"}),
	}).Create(contractRow(height, addr, c)).Error
}

func upsertProposal(tx *gorm.DB, height uint64, addr [20]byte, p *marketplace.Proposal, chosen bool) error {
	row := &ProposalRow{
		Address:    crypto.FromArray(addr).String(),
		SortKey:    sortKey(addr),
		Contractor: crypto.FromArray(p.Contractor).String(),
		ProposalID: p.ProposalID,
		Contract:   crypto.FromArray(p.Contract).String(),
		Amount:     strconv.FormatUint(p.Amount, 10),
		Chosen:     chosen,
		Height:     height,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "height", "updated_at"}),
	}).Create(row).Error
}

// Rebuild replaces the projections with the records currently in the ledger.
func (ix *Indexer) Rebuild(ctx context.Context, src Backfiller) error {
	contracts, err := src.ListContracts(core.ContractFilter{})
	if err != nil {
		return err
	}
	proposals, err := src.ListProposals(core.ProposalFilter{})
	if err != nil {
		return err
	}
	height := src.GetHeight()
	chosen := make(map[string]bool)
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ContractRow{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ProposalRow{}).Error; err != nil {
			return err
		}
		for _, entry := range contracts {
			if err := upsertContract(tx, height, entry.Address, entry.Contract); err != nil {
				return err
			}
			if entry.Contract.Contractor != nil && entry.Contract.AcceptedProposalID != nil {
				addr := marketplace.ProposalAddress(*entry.Contract.Contractor, *entry.Contract.AcceptedProposalID)
				chosen[crypto.FromArray(addr).String()] = true
			}
		}
		for _, entry := range proposals {
			key := crypto.FromArray(entry.Address).String()
			if err := upsertProposal(tx, height, entry.Address, entry.Proposal, chosen[key]); err != nil {
				return err
			}
		}
		return storeHeight(tx, height)
	})
}

// Empty reports whether nothing has been indexed yet.
func (ix *Indexer) Empty(ctx context.Context) (bool, error) {
	var count int64
	if err := ix.db.WithContext(ctx).Model(&ContractRow{}).Count(&count).Error; err != nil {
		return false, err
	}
	return count == 0, nil
}

// OpenContracts returns contracts still accepting proposals in address order,
// the order a ledger scan yields.
func (ix *Indexer) OpenContracts(ctx context.Context, limit int) ([]ContractRow, error) {
	var rows []ContractRow
	q := ix.db.WithContext(ctx).Where("status = ?", marketplace.StatusOpened.String()).Order("sort_key")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// ContractsByClient returns every contract posted under a client registry.
func (ix *Indexer) ContractsByClient(ctx context.Context, clientAccount [20]byte) ([]ContractRow, error) {
	var rows []ContractRow
	err := ix.db.WithContext(ctx).
		Where("client = ?", crypto.FromArray(clientAccount).String()).
		Order("sort_key").
		Find(&rows).Error
	return rows, err
}

// ProposalsForContract returns the proposals submitted to a contract.
func (ix *Indexer) ProposalsForContract(ctx context.Context, contract [20]byte) ([]ProposalRow, error) {
	var rows []ProposalRow
	err := ix.db.WithContext(ctx).
		Where("contract = ?", crypto.FromArray(contract).String()).
		Order("sort_key").
		Find(&rows).Error
	return rows, err
}
