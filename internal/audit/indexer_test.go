package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"notification-system/internal/common/logger"
	"notification-system/internal/models"
)

func newTestIndexer(t *testing.T, handler http.HandlerFunc) *Indexer {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the client's product check requires this header on every response
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)

	idx := NewIndexer(client, "notifications", logger.NewZapAdapter(zaptest.NewLogger(t)))
	idx.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return idx
}

func TestIndexer_IndexTerminal(t *testing.T) {
	var gotPath string
	var gotDoc Document

	idx := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	})

	n := &models.Notification{
		ID:           55,
		UserID:       101,
		Variant:      models.VariantWhatsApp,
		Type:         "otp",
		Status:       models.StatusFailed,
		FailedReason: "provider rejected template",
	}
	idx.IndexTerminal(context.Background(), n, models.QueueWhatsApp, 3)

	assert.Equal(t, "/notifications-2025.06.01/_doc/55", gotPath)
	assert.Equal(t, int64(55), gotDoc.NotificationID)
	assert.Equal(t, models.StatusFailed, gotDoc.Status)
	assert.Equal(t, "WHATSAPP_QUEUE", gotDoc.Queue)
	assert.Equal(t, "provider rejected template", gotDoc.FailedReason)
	assert.Equal(t, 3, gotDoc.RetryAttempts)
}

func TestIndexer_FailuresAreSwallowed(t *testing.T) {
	idx := newTestIndexer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	n := &models.Notification{ID: 1, Status: models.StatusSent}
	// must not panic or propagate
	idx.IndexTerminal(context.Background(), n, models.QueueEmail, 0)
}

func TestIndexer_NilIndexerIsNoOp(t *testing.T) {
	var idx *Indexer
	idx.IndexTerminal(context.Background(), &models.Notification{ID: 1}, models.QueueEmail, 0)
}
