package handlers

import (
	"mining_webapp/internal/repository"
	"mining_webapp/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	DB              *pgxpool.Pool
	BotToken        string
	Mining          *service.MiningService
	UserRepo        *repository.UserRepository
	TransactionRepo *repository.TransactionRepository
}

func NewHandler(db *pgxpool.Pool, botToken string, miningSvc *service.MiningService) *Handler {
	return &Handler{
		DB:              db,
		BotToken:        botToken,
		Mining:          miningSvc,
		UserRepo:        repository.NewUserRepository(db),
		TransactionRepo: repository.NewTransactionRepository(db),
	}
}

// getUserID извлекает user_id из контекста Gin
func getUserID(c interface{ Get(string) (any, bool) }) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
