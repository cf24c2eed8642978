package notify

import (
	"errors"
	"fmt"
	"strings"

	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// NewBot connects to the Telegram Bot API.
func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

// StaffNotifier tells staff chats about bookings and cancellations.
type StaffNotifier struct {
	bot    domain.TelegramSender
	chats  []int64
	logger *zerolog.Logger
}

func NewStaffNotifier(bot domain.TelegramSender, chats []int64, logger *zerolog.Logger) *StaffNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &StaffNotifier{bot: bot, chats: chats, logger: logger}
}

// Subscribe attaches the notifier to reservation events.
func (n *StaffNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventReservationCreated, n.Handle)
	bus.Subscribe(events.EventReservationCancelled, n.Handle)
}

func (n *StaffNotifier) Handle(event *events.Event) error {
	var p events.ReservationEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}

	text := FormatReservation(event.Type, p)
	var errs []error
	for _, chatID := range n.chats {
		if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Int64("reservation_id", p.ReservationID).Msg("telegram send failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatReservation renders the staff message for a reservation event.
func FormatReservation(eventType string, p events.ReservationEventPayload) string {
	var b strings.Builder
	switch eventType {
	case events.EventReservationCreated:
		b.WriteString("New booking\n")
	case events.EventReservationCancelled:
		b.WriteString("Booking cancelled\n")
	default:
		b.WriteString(eventType + "\n")
	}
	fmt.Fprintf(&b, "%s (%s)\n", p.ClientName, p.ClientEmail)
	fmt.Fprintf(&b, "Class: %s %s-%s\n", p.Date, p.StartTime, p.EndTime)
	fmt.Fprintf(&b, "Occupancy: %d/%d", p.CapacityCurrent, p.CapacityMax)
	if p.CapacityMax > 0 && p.CapacityCurrent >= p.CapacityMax {
		b.WriteString(" (full)")
	}
	if p.Status == models.ReservationConfirmed {
		fmt.Fprintf(&b, "\nClasses left: %d", p.ClassesRemaining)
	}
	return b.String()
}
