package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/example/campusdelivery/internal/models"
)

// TelegramNotifier posts order notices to the operations chat.
type TelegramNotifier struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
}

func NewTelegramNotifier(botToken, adminChatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     "https://api.telegram.org",
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether both the token and chat are configured.
func (s *TelegramNotifier) Enabled() bool {
	return s.botToken != "" && s.adminChatID != ""
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends an HTML message to chatID.
func (s *TelegramNotifier) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Debug().Msg("telegram bot token not configured")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "telegram request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends to the operations chat.
func (s *TelegramNotifier) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Debug().Msg("telegram admin chat not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice renders a whole amount with thousand separators, e.g. "8,000 MWK".
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "MWK"
	}

	str := amount.Truncate(0).String()
	sign := ""
	if strings.HasPrefix(str, "-") {
		sign, str = "-", str[1:]
	}

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return sign + result.String() + " " + currency
}

func (s *TelegramNotifier) SendOrderConfirmation(ctx context.Context, n Notification) error {
	currency := html.EscapeString(n.Currency)
	var items strings.Builder
	for i, item := range n.Items {
		line := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		items.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(item.Name),
			item.Quantity,
			FormatPrice(item.Price, currency),
			FormatPrice(line, currency),
		))
	}

	payment := "Cash on delivery"
	if n.PaymentMethod == models.PaymentMethodMobileMoney {
		payment = "Mobile money"
	}

	message := fmt.Sprintf(`<b>🛒 NEW ORDER</b>
<b>📋 Order:</b> %s
<b>👤 Customer:</b> %s
<b>📞 Phone:</b> %s
<b>📍 Zone:</b> %s
<b>📦 Items:</b>
%s
<b>💰 Total:</b> %s
<b>💳 Payment:</b> %s
━━━━━━━━━━━━━━━━━━`,
		html.EscapeString(n.Reference),
		html.EscapeString(n.CustomerName),
		html.EscapeString(n.CustomerPhone),
		html.EscapeString(n.ZoneName),
		items.String(),
		FormatPrice(n.TotalAmount, currency),
		payment,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

func (s *TelegramNotifier) SendOrderStatusUpdate(ctx context.Context, n Notification, status string) error {
	message := fmt.Sprintf("<b>🔄 %s</b> is now <b>%s</b>", html.EscapeString(n.Reference), html.EscapeString(statusLabel(status)))
	if n.StaffName != "" {
		message += fmt.Sprintf("\n<b>🚚 Courier:</b> %s", html.EscapeString(n.StaffName))
	}
	return s.SendToAdmin(ctx, message)
}

func (s *TelegramNotifier) SendDeliveryConfirmation(ctx context.Context, n Notification) error {
	message := fmt.Sprintf(`<b>✅ DELIVERED</b>
<b>📋 Order:</b> %s
<b>👤 Customer:</b> %s
<b>💰 Collected:</b> %s`,
		html.EscapeString(n.Reference),
		html.EscapeString(n.CustomerName),
		FormatPrice(n.TotalAmount, html.EscapeString(n.Currency)),
	)
	return s.SendToAdmin(ctx, message)
}

func (s *TelegramNotifier) SendStaffAssignment(ctx context.Context, n Notification) error {
	message := fmt.Sprintf("<b>📦 %s</b> assigned to <b>%s</b> (%s)",
		html.EscapeString(n.Reference), html.EscapeString(n.StaffName), html.EscapeString(n.ZoneName))
	return s.SendToAdmin(ctx, message)
}

func statusLabel(status string) string {
	switch status {
	case models.OrderStatusPending:
		return "⏳ pending"
	case models.OrderStatusProcessing:
		return "🧾 processing"
	case models.OrderStatusOutForDelivery:
		return "🚚 out for delivery"
	case models.OrderStatusDelivered:
		return "✅ delivered"
	case models.OrderStatusCancelled:
		return "❌ cancelled"
	default:
		return status
	}
}
