package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-service/internal/logging"
	"health-service/internal/models"
)

type fakeSender struct {
	failures int
	calls    int
	last     *bot.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.calls++
	f.last = p
	if f.calls <= f.failures {
		return nil, errors.New("bad gateway")
	}
	return &tgmodels.Message{ID: f.calls}, nil
}

func alert() models.Alert {
	return models.Alert{
		ID:        42,
		MachineID: "mac_01",
		Severity:  models.SeverityCritical,
		Category:  models.CategoryCPU,
		Message:   "CPU usage at 97.5%",
		Value:     97.5,
		Threshold: 95,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTelegramSend(t *testing.T) {
	sender := &fakeSender{}
	tg := newTelegram(sender, 1001, 10, logging.Discard())

	require.NoError(t, tg.Send(context.Background(), alert()))
	require.NotNil(t, sender.last)
	assert.Equal(t, int64(1001), sender.last.ChatID)
	assert.Equal(t, tgmodels.ParseModeMarkdown, sender.last.ParseMode)
	assert.Contains(t, sender.last.Text, `*Device:* mac\_01`)
	assert.Contains(t, sender.last.Text, `CPU usage at 97\.5%`)
	assert.Contains(t, sender.last.Text, `97\.5 \(threshold 95\)`)
	assert.Contains(t, sender.last.Text, `2026\-03\-01T12:00:00Z`)
	assert.Contains(t, sender.last.Text, "*Alert ID:* 42")
}

func TestTelegramEscapesMarkup(t *testing.T) {
	sender := &fakeSender{}
	tg := newTelegram(sender, 1001, 10, logging.Discard())

	a := alert()
	a.MachineID = "mac_`*[01]\\"
	a.Message = "disk (sda1) > 95.0%!"
	require.NoError(t, tg.Send(context.Background(), a))

	text := sender.last.Text
	assert.Contains(t, text, "*Device:* mac\\_\\`\\*\\[01\\]\\\\\n")
	assert.Contains(t, text, `disk \(sda1\) \> 95\.0%\!`)
	assert.NotContains(t, text, "`*")
}

func TestTelegramRetries(t *testing.T) {
	sender := &fakeSender{failures: 2}
	tg := newTelegram(sender, 1, 10, logging.Discard())
	tg.delay = time.Millisecond

	require.NoError(t, tg.Send(context.Background(), alert()))
	assert.Equal(t, 3, sender.calls)

	sender = &fakeSender{failures: 5}
	tg = newTelegram(sender, 1, 10, logging.Discard())
	tg.delay = time.Millisecond
	assert.Error(t, tg.Send(context.Background(), alert()))
	assert.Equal(t, 3, sender.calls)
}

func TestNewTelegramRequiresSettings(t *testing.T) {
	_, err := NewTelegram("", 1, 1, logging.Discard())
	assert.Error(t, err)
	_, err = NewTelegram("token", 0, 1, logging.Discard())
	assert.Error(t, err)
}
