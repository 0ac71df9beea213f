// internal/notify/notifier_test.go
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyAdminsDeliversToEachAdmin(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var chatIDs []int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "order is in", body.Text)

		mu.Lock()
		paths = append(paths, r.URL.Path)
		chatIDs = append(chatIDs, body.ChatID)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	n := NewBotNotifier(server.URL, "secret-token", []int64{101, 202}, time.Second, logger)

	n.NotifyAdmins(context.Background(), "order is in")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, chatIDs, 2)
	assert.ElementsMatch(t, []int64{101, 202}, chatIDs)
	for _, p := range paths {
		assert.Equal(t, "/botsecret-token/sendMessage", p)
	}
}

func TestNotifyAdminsSwallowsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	n := NewBotNotifier(server.URL, "secret-token", []int64{101}, time.Second, logger)

	// Must not panic or propagate anything.
	n.NotifyAdmins(context.Background(), "order is in")
}
