package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"mining_webapp/internal/domain"
	"mining_webapp/internal/logger"
	"mining_webapp/internal/mining"
	"mining_webapp/internal/notify"
	"mining_webapp/internal/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminBot handles admin commands via Telegram
type AdminBot struct {
	bot          *tgbotapi.BotAPI
	db           *pgxpool.Pool
	users        *repository.UserRepository
	sessions     *repository.SessionRepository
	transactions *repository.TransactionRepository
	notifier     *notify.Notifier
	adminIDs     []int64 // Telegram user IDs who can use admin commands
	stopCh       chan struct{}
	wg           sync.WaitGroup
	log          *slog.Logger
}

// NewAdminBot creates a new admin bot
func NewAdminBot(token string, db *pgxpool.Pool, notifier *notify.Notifier, adminIDs []int64) (*AdminBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log := logger.With("component", "admin_bot")
	log.Info("admin bot authorized", "username", bot.Self.UserName)

	return &AdminBot{
		bot:          bot,
		db:           db,
		users:        repository.NewUserRepository(db),
		sessions:     repository.NewSessionRepository(db),
		transactions: repository.NewTransactionRepository(db),
		notifier:     notifier,
		adminIDs:     adminIDs,
		stopCh:       make(chan struct{}),
		log:          log,
	}, nil
}

// Start starts listening for commands
func (b *AdminBot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.bot.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}

			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			if !b.isAdmin(update.Message.From.ID) {
				continue
			}

			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleCommand(msg)
			}(update.Message)
		}
	}
}

// Stop gracefully stops the bot
func (b *AdminBot) Stop() {
	b.log.Info("stopping admin bot...")
	close(b.stopCh)
	b.bot.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		b.log.Warn("timed out waiting for command handlers")
	}
}

func (b *AdminBot) isAdmin(userID int64) bool {
	for _, id := range b.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// handleCommand processes admin commands
func (b *AdminBot) handleCommand(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var response string

	switch msg.Command() {
	case "start", "help":
		response = b.helpMessage()

	case "stats":
		response = b.handleStats(ctx)

	case "user":
		response = b.handleUser(ctx, msg.CommandArguments())

	case "addcoins":
		response = b.handleAddCoins(ctx, msg.CommandArguments())

	case "addgold":
		response = b.handleAddGold(ctx, msg.CommandArguments())

	default:
		response = "❌ Неизвестная команда. Используйте /help для списка команд."
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, response)
	reply.ParseMode = "HTML"
	reply.ReplyToMessageID = msg.MessageID

	if _, err := b.bot.Send(reply); err != nil {
		b.log.Error("error sending message", "error", err)
	}
}

func (b *AdminBot) helpMessage() string {
	return `<b>🤖 Команды администратора</b>

<b>📊 Статистика:</b>
/stats - Статистика платформы

<b>👤 Управление пользователями:</b>
/user &lt;tg_id&gt; - Информация о пользователе
/addcoins &lt;tg_id&gt; &lt;сумма&gt; - Добавить коины
/addgold &lt;tg_id&gt; &lt;сумма&gt; - Начислить добытое золото`
}

func (b *AdminBot) handleStats(ctx context.Context) string {
	var users, sessions, purchases int64
	var totalMined float64

	if err := b.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}
	_ = b.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_mined), 0) FROM mining_sessions`).Scan(&sessions, &totalMined)
	_ = b.db.QueryRow(ctx, `SELECT COUNT(*) FROM package_purchases`).Scan(&purchases)

	return fmt.Sprintf(`<b>📊 Статистика платформы</b>

• 👥 Пользователей: %d
• ⛏ Сессий майнинга: %d
• 📦 Куплено пакетов: %d
• 🏆 Всего добыто: %.2f`,
		users, sessions, purchases, totalMined)
}

func (b *AdminBot) handleUser(ctx context.Context, args string) string {
	if args == "" {
		return "❌ Использование: /user <tg_id>"
	}

	tgID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return "❌ Неверный Telegram ID"
	}

	user, err := b.users.GetByTgID(ctx, tgID)
	if err != nil {
		return fmt.Sprintf("❌ Пользователь не найден: %v", err)
	}

	info := fmt.Sprintf(`<b>👤 Информация о пользователе</b>

• ID: %d
• Telegram ID: %d
• Username: @%s
• Имя: %s
• 🪙 Коины: %d
• 📅 Регистрация: %s`,
		user.ID,
		user.TgID,
		user.Username,
		user.FirstName,
		user.Coins,
		user.CreatedAt.Format("02.01.2006 15:04"),
	)

	if sess, err := b.sessions.GetSession(ctx, user.ID); err == nil {
		info += fmt.Sprintf("\n• ⛏ Тариф: %d\n• 💰 На балансе: %.4f\n• 🏆 Всего добыто: %.4f",
			sess.TierID, sess.MiningBalance, sess.TotalMined)
	}

	return info
}

func (b *AdminBot) handleAddCoins(ctx context.Context, args string) string {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "❌ Использование: /addcoins <tg_id> <сумма>"
	}

	tgID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "❌ Неверный Telegram ID"
	}

	amount, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "❌ Неверная сумма"
	}

	user, err := b.users.GetByTgID(ctx, tgID)
	if err != nil {
		return fmt.Sprintf("❌ Пользователь не найден: %v", err)
	}

	newBalance, err := b.users.UpdateCoins(ctx, user.ID, amount)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}

	ledger := &domain.Transaction{
		UserID: user.ID,
		Type:   domain.TxAdminAdjust,
		Amount: amount,
		Meta:   map[string]interface{}{"admin": true},
	}
	if err := b.transactions.Create(ctx, ledger); err != nil {
		b.log.Warn("admin adjust ledger entry failed", "user_id", user.ID, "error", err)
	}

	return fmt.Sprintf("✅ Добавлено %d 🪙 коинов пользователю (TG: %d). Новый баланс: %d", amount, tgID, newBalance)
}

// handleAddGold adjusts the mined balance behind the reconciler's back, then
// announces the change so an active session reloads instead of overwriting it.
func (b *AdminBot) handleAddGold(ctx context.Context, args string) string {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "❌ Использование: /addgold <tg_id> <сумма>"
	}

	tgID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "❌ Неверный Telegram ID"
	}

	amount, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "❌ Неверная сумма"
	}

	user, err := b.users.GetByTgID(ctx, tgID)
	if err != nil {
		return fmt.Sprintf("❌ Пользователь не найден: %v", err)
	}

	sess, err := b.sessions.GetSession(ctx, user.ID)
	if err != nil {
		return fmt.Sprintf("❌ Сессия не найдена: %v", err)
	}

	newBalance := sess.MiningBalance + amount
	upd := mining.SessionUpdate{
		MiningBalance: &newBalance,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := b.sessions.UpdateSession(ctx, user.ID, upd); err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}

	if err := b.notifier.PublishSessionChanged(ctx, user.ID); err != nil {
		b.log.Warn("session change publish failed", "user_id", user.ID, "error", err)
	}

	return fmt.Sprintf("✅ Начислено %.4f золота пользователю (TG: %d). Баланс: %.4f", amount, tgID, newBalance)
}

// SendNotification sends a notification to a specific user
func (b *AdminBot) SendNotification(tgID int64, message string) error {
	msg := tgbotapi.NewMessage(tgID, message)
	msg.ParseMode = "HTML"
	_, err := b.bot.Send(msg)
	return err
}
