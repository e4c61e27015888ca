package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

// IndexMapping is applied when the embeddings index is created.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "receipt_id":  {"type": "keyword"},
      "category":    {"type": "keyword"},
      "seq":         {"type": "long"},
      "has_record":  {"type": "boolean"},
      "inserted_at": {"type": "date"},
      "vector":      {"type": "float", "index": false},
      "metadata":    {"type": "object", "enabled": false},
      "record":      {"type": "object", "enabled": false}
    }
  }
}`

type esDoc struct {
	ReceiptID  string                `json:"receipt_id"`
	Category   models.Category       `json:"category"`
	Seq        int64                 `json:"seq"`
	HasRecord  bool                  `json:"has_record"`
	InsertedAt time.Time             `json:"inserted_at"`
	Vector     []float32             `json:"vector"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
	Record     *models.ReceiptRecord `json:"record,omitempty"`
}

type esHit struct {
	Source esDoc             `json:"_source"`
	Sort   []json.RawMessage `json:"sort"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// ElasticStore keeps one document per entry. Writes use refresh=wait_for so that an entry is
// searchable before Insert returns. Commit stores the record inside the entry document, which
// makes the pair a single atomic write. Query pages through a category maxScan hits at a time,
// ordered by inserted_at and then seq.
type ElasticStore struct {
	client  *elasticsearch.Client
	index   string
	maxScan int
	// breaks ties between entries with the same inserted_at
	seq atomic.Int64
}

func NewElasticStore(client *elasticsearch.Client, index string, maxScan int) *ElasticStore {
	if maxScan <= 0 {
		maxScan = 10000
	}
	s := &ElasticStore{client: client, index: index, maxScan: maxScan}
	s.seq.Store(time.Now().UnixNano())
	return s
}

func (s *ElasticStore) Insert(ctx context.Context, entry *models.EmbeddingEntry) error {
	return s.write(ctx, "insert", s.doc(entry, nil))
}

func (s *ElasticStore) Commit(ctx context.Context, record *models.ReceiptRecord, entry *models.EmbeddingEntry) error {
	return s.write(ctx, "commit", s.doc(entry, record))
}

func (s *ElasticStore) doc(entry *models.EmbeddingEntry, record *models.ReceiptRecord) esDoc {
	return esDoc{
		ReceiptID:  entry.ReceiptID,
		Category:   entry.Category,
		Seq:        s.seq.Add(1),
		HasRecord:  record != nil,
		InsertedAt: entry.InsertedAt,
		Vector:     entry.Vector,
		Metadata:   entry.Metadata,
		Record:     record,
	}
}

func (s *ElasticStore) write(ctx context.Context, op string, doc esDoc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return apperrors.NewStorageFaultError(op, err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return apperrors.NewStorageFaultError(op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return apperrors.NewStorageFaultError(op, fmt.Errorf("elasticsearch %s: %s", res.Status(), msg))
	}
	return nil
}

func (s *ElasticStore) Query(ctx context.Context, category models.Category, vector []float32) ([]Match, error) {
	var entries []models.EmbeddingEntry
	var after []json.RawMessage
	for {
		query := map[string]interface{}{
			"size":  s.maxScan,
			"query": map[string]interface{}{"term": map[string]interface{}{"category": string(category)}},
			"sort": []interface{}{
				map[string]interface{}{"inserted_at": "asc"},
				map[string]interface{}{"seq": "asc"},
			},
			"_source": []string{"receipt_id", "category", "seq", "inserted_at", "vector", "metadata"},
		}
		if after != nil {
			query["search_after"] = after
		}

		hits, err := s.search(ctx, "query", query)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			d := h.Source
			entries = append(entries, models.EmbeddingEntry{
				ReceiptID:  d.ReceiptID,
				Category:   d.Category,
				Vector:     d.Vector,
				Metadata:   d.Metadata,
				InsertedAt: d.InsertedAt,
			})
		}

		if len(hits) < s.maxScan {
			break
		}
		after = hits[len(hits)-1].Sort
		if len(after) == 0 {
			return nil, apperrors.NewStorageFaultError("query", fmt.Errorf("elasticsearch hit without sort values"))
		}
	}
	return score(entries, vector), nil
}

func (s *ElasticStore) Record(ctx context.Context, id string) (*models.ReceiptRecord, error) {
	query := map[string]interface{}{
		"size": 1,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"receipt_id": id}},
					map[string]interface{}{"term": map[string]interface{}{"has_record": true}},
				},
			},
		},
	}
	hits, err := s.search(ctx, "record", query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 || hits[0].Source.Record == nil {
		return nil, ErrRecordNotFound
	}
	return hits[0].Source.Record, nil
}

func (s *ElasticStore) search(ctx context.Context, op string, query map[string]interface{}) ([]esHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, apperrors.NewStorageFaultError(op, err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, apperrors.NewStorageFaultError(op, err)
	}
	defer res.Body.Close()

	// a missing index means nothing was ever stored
	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		msg, _ := io.ReadAll(res.Body)
		return nil, apperrors.NewStorageFaultError(op, fmt.Errorf("elasticsearch %s: %s", res.Status(), msg))
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewStorageFaultError(op, err)
	}

	return parsed.Hits.Hits, nil
}
