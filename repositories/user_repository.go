package repositories

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"card-stock-tracker/domain"
	"card-stock-tracker/models"
)

// UserRepository exposes the thin persistence queries the availability
// pipeline consumes. These are plain CRUD reads; the pipeline treats them
// as external collaborators.
type UserRepository interface {
	GetUserByUsername(username string) (*domain.User, error)
	GetAllUsers() ([]domain.User, error)
	GetUserStores(username string) ([]domain.Store, error)
	LoadCardList(username string) ([]domain.CardData, error)
	GetTrackingUsersForCards(cardNames []string) (map[string][]domain.User, error)
	AllStores() ([]domain.Store, error)
}

type PostgresUserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

func (repo *PostgresUserRepository) GetUserByUsername(username string) (*domain.User, error) {
	var row models.User
	err := repo.DB.Where("username = ?", username).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", username, err)
	}
	return &domain.User{ID: row.ID, Username: row.Username}, nil
}

func (repo *PostgresUserRepository) GetAllUsers() ([]domain.User, error) {
	var rows []models.User
	if err := repo.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, domain.User{ID: row.ID, Username: row.Username})
	}
	return users, nil
}

func (repo *PostgresUserRepository) GetUserStores(username string) ([]domain.Store, error) {
	var rows []models.StoreRecord
	err := repo.DB.
		Joins("JOIN user_stores ON user_stores.store_id = stores.id").
		Joins("JOIN users ON users.id = user_stores.user_id").
		Where("users.username = ?", username).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load stores for %s: %w", username, err)
	}
	return toDomainStores(rows), nil
}

func (repo *PostgresUserRepository) AllStores() ([]domain.Store, error) {
	var rows []models.StoreRecord
	if err := repo.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load stores: %w", err)
	}
	return toDomainStores(rows), nil
}

func (repo *PostgresUserRepository) LoadCardList(username string) ([]domain.CardData, error) {
	var rows []models.UserCard
	err := repo.DB.
		Joins("JOIN users ON users.id = user_cards.user_id").
		Where("users.username = ?", username).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load card list for %s: %w", username, err)
	}

	cards := make([]domain.CardData, 0, len(rows))
	for _, row := range rows {
		card := domain.CardData{CardName: row.CardName}
		if len(row.Specifications) > 0 {
			// Malformed specifications degrade to a name-only card.
			_ = json.Unmarshal(row.Specifications, &card.Specifications)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// GetTrackingUsersForCards returns, for each changed card, the users that
// track it. One query for the whole change set.
func (repo *PostgresUserRepository) GetTrackingUsersForCards(cardNames []string) (map[string][]domain.User, error) {
	if len(cardNames) == 0 {
		return map[string][]domain.User{}, nil
	}

	type trackingRow struct {
		CardName string
		ID       int
		Username string
	}
	var rows []trackingRow
	err := repo.DB.
		Table("user_cards").
		Select("user_cards.card_name, users.id, users.username").
		Joins("JOIN users ON users.id = user_cards.user_id").
		Where("user_cards.card_name IN ?", cardNames).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load tracking users: %w", err)
	}

	tracking := make(map[string][]domain.User)
	for _, row := range rows {
		tracking[row.CardName] = append(tracking[row.CardName], domain.User{ID: row.ID, Username: row.Username})
	}
	return tracking, nil
}

func toDomainStores(rows []models.StoreRecord) []domain.Store {
	stores := make([]domain.Store, 0, len(rows))
	for _, row := range rows {
		stores = append(stores, domain.Store{
			ID:             row.ID,
			Name:           row.Name,
			Slug:           row.Slug,
			Homepage:       row.Homepage,
			SearchURL:      row.SearchURL,
			TemplateFamily: row.TemplateFamily,
		})
	}
	return stores
}
