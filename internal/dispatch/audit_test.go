// internal/dispatch/audit_test.go
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"pcots-notifications/internal/common/logger"
	"pcots-notifications/internal/models"

	"github.com/stretchr/testify/assert"
)

type fakeIndexer struct {
	index string
	docID string
	body  string
	calls int
	err   error
}

func (f *fakeIndexer) Index(ctx context.Context, index, docID, body string) error {
	f.calls++
	f.index = index
	f.docID = docID
	f.body = body
	return f.err
}

func TestAuditor_RecordIndexesDocument(t *testing.T) {
	indexer := &fakeIndexer{}
	a := NewAuditor(indexer, "notification-audit", logger.NewTestLogger(t))

	req := createTestRequest(models.ChannelInApp, models.ChannelEmail)
	req.PermitID = "permit-001"
	result := Result{
		models.ChannelInApp: {MessageID: "n-001"},
		models.ChannelEmail: {Err: errors.New("ses throttled")},
	}

	a.Record(context.Background(), req, result)

	assert.Equal(t, 1, indexer.calls)
	assert.Equal(t, "notification-audit", indexer.index)
	assert.NotEmpty(t, indexer.docID)

	var doc map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(indexer.body), &doc))
	assert.Equal(t, "user-001", doc["userId"])
	assert.Equal(t, "permit-001", doc["permitId"])

	statuses := doc["statuses"].(map[string]interface{})
	assert.Equal(t, "sent", statuses[models.ChannelInApp])
	assert.Equal(t, "failed", statuses[models.ChannelEmail])
}

func TestAuditor_IndexFailureIsBestEffort(t *testing.T) {
	indexer := &fakeIndexer{err: errors.New("cluster red")}
	a := NewAuditor(indexer, "notification-audit", logger.NewTestLogger(t))

	// Must not panic or propagate; the dispatch result is already final.
	a.Record(context.Background(), createTestRequest(models.ChannelInApp), Result{})
	assert.Equal(t, 1, indexer.calls)
}

func TestDispatch_RecordsAuditTrail(t *testing.T) {
	indexer := &fakeIndexer{}
	writer := &memoryWriter{}
	d := New(createTestConfig(), writer, nil, nil, NewAuditor(indexer, "notification-audit", logger.NewTestLogger(t)), logger.NewTestLogger(t))

	result := d.Dispatch(context.Background(), createTestRequest(models.ChannelInApp))

	assert.NoError(t, result.Err())
	assert.Equal(t, 1, indexer.calls)
}
