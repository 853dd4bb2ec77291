package repositories

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"card-stock-tracker/domain"
	"card-stock-tracker/models"
)

// PrintingKey is the natural key used to resolve surrogate printing ids
// after a conflict-ignoring bulk insert.
func PrintingKey(cardName, setCode, collectorNumber string) string {
	return cardName + "|" + setCode + "|" + collectorNumber
}

type CatalogRepository interface {
	AddCardNames(names []string) error
	AddSetData(sets []domain.SetData) error
	BulkAddFinishes(finishes []string) error
	BulkAddPrintings(printings []domain.PrintingRecord) error
	BulkAddPrintingFinishAssociations(assocs []models.PrintingFinish) error
	PrintingsMap() (map[string]int, error)
	FinishesMap() (map[string]int, error)
	SetCodesByName() (map[string]string, error)
}

type PostgresCatalogRepository struct {
	DB        *gorm.DB
	BatchSize int
}

func NewCatalogRepository(db *gorm.DB, batchSize int) *PostgresCatalogRepository {
	if batchSize <= 0 {
		batchSize = 500 // Default
	}
	return &PostgresCatalogRepository{DB: db, BatchSize: batchSize}
}

// AddCardNames inserts card names, ignoring ones already present.
func (repo *PostgresCatalogRepository) AddCardNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	rows := make([]models.CardName, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		rows = append(rows, models.CardName{Name: name})
	}
	return repo.DB.
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, repo.BatchSize).Error
}

// AddSetData inserts set records, ignoring duplicate codes.
func (repo *PostgresCatalogRepository) AddSetData(sets []domain.SetData) error {
	if len(sets) == 0 {
		return nil
	}
	rows := make([]models.CardSet, 0, len(sets))
	for _, s := range sets {
		if s.Code == "" || s.Name == "" {
			continue
		}
		row := models.CardSet{Code: s.Code, Name: s.Name}
		if s.ReleaseDate != "" {
			if t, err := time.Parse("2006-01-02", s.ReleaseDate); err == nil {
				row.ReleaseDate = &t
			}
		}
		rows = append(rows, row)
	}
	return repo.DB.
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, repo.BatchSize).Error
}

func (repo *PostgresCatalogRepository) BulkAddFinishes(finishes []string) error {
	if len(finishes) == 0 {
		return nil
	}
	rows := make([]models.Finish, 0, len(finishes))
	for _, f := range finishes {
		if f == "" {
			continue
		}
		rows = append(rows, models.Finish{Name: f})
	}
	return repo.DB.
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, repo.BatchSize).Error
}

// BulkAddPrintings inserts printings ignoring duplicates on the natural
// key, which makes concurrent or replayed chunk processing safe.
func (repo *PostgresCatalogRepository) BulkAddPrintings(printings []domain.PrintingRecord) error {
	if len(printings) == 0 {
		return nil
	}
	rows := make([]models.CardPrinting, 0, len(printings))
	for _, p := range printings {
		if p.CardName == "" || p.SetCode == "" || p.CollectorNumber == "" {
			continue
		}
		rows = append(rows, models.CardPrinting{
			CardName:        p.CardName,
			SetCode:         p.SetCode,
			CollectorNumber: p.CollectorNumber,
		})
	}
	return repo.DB.
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, repo.BatchSize).Error
}

func (repo *PostgresCatalogRepository) BulkAddPrintingFinishAssociations(assocs []models.PrintingFinish) error {
	if len(assocs) == 0 {
		return nil
	}
	return repo.DB.
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(assocs, repo.BatchSize).Error
}

// PrintingsMap returns natural key -> surrogate id for all printings.
func (repo *PostgresCatalogRepository) PrintingsMap() (map[string]int, error) {
	var rows []models.CardPrinting
	if err := repo.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load printings map: %w", err)
	}
	m := make(map[string]int, len(rows))
	for _, row := range rows {
		m[PrintingKey(row.CardName, row.SetCode, row.CollectorNumber)] = row.ID
	}
	return m, nil
}

func (repo *PostgresCatalogRepository) FinishesMap() (map[string]int, error) {
	var rows []models.Finish
	if err := repo.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load finishes map: %w", err)
	}
	m := make(map[string]int, len(rows))
	for _, row := range rows {
		m[row.Name] = row.ID
	}
	return m, nil
}

// SetCodesByName returns lowercased set name -> set code.
func (repo *PostgresCatalogRepository) SetCodesByName() (map[string]string, error) {
	var rows []models.CardSet
	if err := repo.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load set codes: %w", err)
	}
	m := make(map[string]string, len(rows))
	for _, row := range rows {
		m[strings.ToLower(row.Name)] = row.Code
	}
	return m, nil
}

// SetCodeLookup resolves scraped set names to set codes, loading the
// mapping once on first use.
type SetCodeLookup struct {
	repo CatalogRepository

	once  sync.Once
	codes map[string]string
}

func NewSetCodeLookup(repo CatalogRepository) *SetCodeLookup {
	return &SetCodeLookup{repo: repo}
}

func (l *SetCodeLookup) SetCode(setName string) (string, bool) {
	l.once.Do(func() {
		codes, err := l.repo.SetCodesByName()
		if err != nil {
			log.Printf("failed to load set code lookup: %v", err)
			codes = map[string]string{}
		}
		l.codes = codes
	})
	code, ok := l.codes[strings.ToLower(strings.TrimSpace(setName))]
	return code, ok
}
