// internal/dispatch/audit.go
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"pcots-notifications/internal/common/logger"

	"github.com/google/uuid"
)

// ESIndexer is the slice of the Elasticsearch client the auditor needs.
type ESIndexer interface {
	Index(ctx context.Context, index, docID, body string) error
}

// auditDocument is what gets indexed per dispatch for the dashboard's
// delivery search.
type auditDocument struct {
	UserID    string            `json:"userId"`
	SentByID  string            `json:"sentById"`
	Title     string            `json:"title"`
	Channels  []string          `json:"channels"`
	Statuses  map[string]string `json:"statuses"`
	PermitID  string            `json:"permitId,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Auditor indexes one document per dispatch into Elasticsearch. Indexing is
// best-effort: failures are logged and never affect the dispatch result.
type Auditor struct {
	es     ESIndexer
	index  string
	logger logger.Logger
}

func NewAuditor(es ESIndexer, index string, log logger.Logger) *Auditor {
	return &Auditor{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

func (a *Auditor) Record(ctx context.Context, req Request, result Result) {
	if a.es == nil {
		return
	}

	statuses := make(map[string]string, len(result))
	for ch, res := range result {
		if res.Err != nil {
			statuses[ch] = "failed"
		} else {
			statuses[ch] = "sent"
		}
	}

	doc := auditDocument{
		UserID:    req.UserID,
		SentByID:  req.SentByID,
		Title:     req.Title,
		Channels:  req.Channels,
		Statuses:  statuses,
		PermitID:  req.PermitID,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		a.logger.Error("marshal audit document", map[string]interface{}{"error": err.Error()})
		return
	}

	if err := a.es.Index(ctx, a.index, uuid.New().String(), string(body)); err != nil {
		a.logger.Error("index audit document", map[string]interface{}{
			"error":  err.Error(),
			"userId": req.UserID,
		})
	}
}
