package models

import (
	"time"

	"gorm.io/gorm"
)

// CardName is one entry in the card-name catalog.
type CardName struct {
	ID   int    `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:text;not null;uniqueIndex:idx_card_names_name"`
}

// TableName overrides the table name
func (CardName) TableName() string {
	return "card_names"
}

// CardSet is one card set from the external catalog.
type CardSet struct {
	ID          int        `gorm:"primaryKey;autoIncrement"`
	Code        string     `gorm:"type:text;not null;uniqueIndex:idx_card_sets_code"`
	Name        string     `gorm:"type:text;not null"`
	ReleaseDate *time.Time `gorm:"type:date"`
}

// TableName overrides the table name
func (CardSet) TableName() string {
	return "card_sets"
}

// Finish is a distinct printing finish (foil, nonfoil, etched, ...).
type Finish struct {
	ID   int    `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:text;not null;uniqueIndex:idx_finishes_name"`
}

// TableName overrides the table name
func (Finish) TableName() string {
	return "finishes"
}

// CardPrinting is one printing of a card, unique by its natural key
// (card name, set code, collector number).
type CardPrinting struct {
	ID              int    `gorm:"primaryKey;autoIncrement"`
	CardName        string `gorm:"column:card_name;type:text;not null;uniqueIndex:idx_printings_natural_key,priority:1"`
	SetCode         string `gorm:"column:set_code;type:text;not null;uniqueIndex:idx_printings_natural_key,priority:2"`
	CollectorNumber string `gorm:"column:collector_number;type:text;not null;uniqueIndex:idx_printings_natural_key,priority:3"`
}

// TableName overrides the table name
func (CardPrinting) TableName() string {
	return "card_printings"
}

// PrintingFinish associates a printing with one of its finishes.
type PrintingFinish struct {
	ID         int `gorm:"primaryKey;autoIncrement"`
	PrintingID int `gorm:"column:printing_id;not null;uniqueIndex:idx_printing_finish,priority:1"`
	FinishID   int `gorm:"column:finish_id;not null;uniqueIndex:idx_printing_finish,priority:2"`

	// Relationships
	Printing CardPrinting `gorm:"foreignKey:PrintingID;constraint:OnDelete:CASCADE"`
	Finish   Finish       `gorm:"foreignKey:FinishID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name
func (PrintingFinish) TableName() string {
	return "printing_finishes"
}

// User tracks cards; thin collaborator model for the persistence queries
// the pipeline consumes.
type User struct {
	ID       int    `gorm:"primaryKey;autoIncrement"`
	Username string `gorm:"type:text;not null;uniqueIndex:idx_users_username"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// StoreRecord is a registered storefront.
type StoreRecord struct {
	ID             int    `gorm:"primaryKey;autoIncrement"`
	Name           string `gorm:"type:text;not null"`
	Slug           string `gorm:"type:text;not null;uniqueIndex:idx_stores_slug"`
	Homepage       string `gorm:"type:text;not null"`
	SearchURL      string `gorm:"column:search_url;type:text;not null"`
	TemplateFamily string `gorm:"column:template_family;type:text;not null"`
}

// TableName overrides the table name
func (StoreRecord) TableName() string {
	return "stores"
}

// UserStore links a user to a preferred storefront.
type UserStore struct {
	ID      int `gorm:"primaryKey;autoIncrement"`
	UserID  int `gorm:"column:user_id;not null;index"`
	StoreID int `gorm:"column:store_id;not null"`

	User  User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Store StoreRecord `gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name
func (UserStore) TableName() string {
	return "user_stores"
}

// UserCard is one tracked card on a user's list. Specifications narrow
// which printings the user cares about and are stored as JSON.
type UserCard struct {
	ID             int    `gorm:"primaryKey;autoIncrement"`
	UserID         int    `gorm:"column:user_id;not null;index"`
	CardName       string `gorm:"column:card_name;type:text;not null;index:idx_user_cards_name"`
	Specifications []byte `gorm:"column:specifications;type:jsonb"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name
func (UserCard) TableName() string {
	return "user_cards"
}

// AutoMigrate creates or updates every table. Run once at server start.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CardName{},
		&CardSet{},
		&Finish{},
		&CardPrinting{},
		&PrintingFinish{},
		&User{},
		&StoreRecord{},
		&UserStore{},
		&UserCard{},
	)
}
