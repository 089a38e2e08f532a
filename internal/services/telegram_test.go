package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// telegramStub records the messages posted to it.
func telegramStub(t *testing.T, status int) (*TelegramNotifier, *[]telegramMessage) {
	t.Helper()

	var received []telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botsecret-token/sendMessage", r.URL.Path)
		var msg telegramMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		received = append(received, msg)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	notifier := NewTelegramNotifier("secret-token", "-100200")
	notifier.baseURL = srv.URL
	return notifier, &received
}

func TestTelegramEscapesCustomerText(t *testing.T) {
	notifier, received := telegramStub(t, http.StatusOK)

	order := sampleOrder()
	order.CustomerName = "Tom & <Jerry>"
	order.ZoneName = "Hostels <B>"
	order.Items[0].ProductName = "Fish & chips"
	n := NewNotification(EventOrderConfirmation, order)

	require.NoError(t, notifier.SendOrderConfirmation(context.Background(), n))
	require.Len(t, *received, 1)

	msg := (*received)[0]
	assert.Equal(t, "-100200", msg.ChatID)
	assert.Equal(t, "HTML", msg.ParseMode)
	assert.Contains(t, msg.Text, "Tom &amp; &lt;Jerry&gt;")
	assert.Contains(t, msg.Text, "Hostels &lt;B&gt;")
	assert.Contains(t, msg.Text, "<b>Fish &amp; chips</b>")
	assert.NotContains(t, msg.Text, "<Jerry>")

	n.StaffName = "<i>Chikondi</i>"
	require.NoError(t, notifier.SendStaffAssignment(context.Background(), n))
	require.Len(t, *received, 2)
	assert.Contains(t, (*received)[1].Text, "&lt;i&gt;Chikondi&lt;/i&gt;")
}

func TestTelegramReportsRejectedMessages(t *testing.T) {
	notifier, _ := telegramStub(t, http.StatusBadRequest)

	err := notifier.SendDeliveryConfirmation(context.Background(), NewNotification(EventDeliveryConfirmed, sampleOrder()))
	assert.EqualError(t, err, "telegram returned status 400")
}
