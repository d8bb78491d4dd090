// internal/audit/indexer.go
// Package audit indexes terminal notification transitions into Elasticsearch
// for operational search. Indexing is best effort: a failure is logged and
// never affects dispatch.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"notification-system/internal/common/logger"
	"notification-system/internal/models"
)

// Document is one indexed terminal transition.
type Document struct {
	NotificationID int64          `json:"notificationId"`
	UserID         int64          `json:"userId"`
	Variant        models.Variant `json:"variant"`
	Type           string         `json:"type"`
	Status         models.Status  `json:"status"`
	Queue          string         `json:"queue"`
	FailedReason   string         `json:"failedReason,omitempty"`
	RetryAttempts  int            `json:"retryAttempts"`
	IndexedAt      time.Time      `json:"indexedAt"`
}

// Indexer writes audit documents into a per-day index.
type Indexer struct {
	client      *elasticsearch.Client
	indexPrefix string
	logger      logger.Logger
	now         func() time.Time
}

func NewIndexer(client *elasticsearch.Client, indexPrefix string, log logger.Logger) *Indexer {
	return &Indexer{
		client:      client,
		indexPrefix: indexPrefix,
		logger:      log.WithFields(map[string]interface{}{"component": "audit"}),
		now:         time.Now,
	}
}

func (i *Indexer) indexName() string {
	return fmt.Sprintf("%s-%s", i.indexPrefix, i.now().UTC().Format("2006.01.02"))
}

// IndexTerminal records one SENT or FAILED notification. A nil indexer is a
// no-op so callers need no enabled-check.
func (i *Indexer) IndexTerminal(ctx context.Context, n *models.Notification, queue models.QueueType, retryAttempts int) {
	if i == nil || i.client == nil {
		return
	}

	doc := Document{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Variant:        n.Variant,
		Type:           n.Type,
		Status:         n.Status,
		Queue:          string(queue),
		FailedReason:   n.FailedReason,
		RetryAttempts:  retryAttempts,
		IndexedAt:      i.now().UTC(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		i.logger.Warn("audit document marshal failed", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
		return
	}

	res, err := i.client.Index(
		i.indexName(),
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(fmt.Sprintf("%d", n.ID)),
	)
	if err != nil {
		i.logger.Warn("audit indexing failed", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		i.logger.Warn("audit indexing rejected", map[string]interface{}{
			"notificationId": n.ID,
			"status":         res.Status(),
		})
	}
}
