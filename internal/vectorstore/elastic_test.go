package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"receipt-agent/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElastic is a minimal index/search server covering the requests ElasticStore makes.
type fakeElastic struct {
	mu       sync.Mutex
	docs     []map[string]interface{}
	searches atomic.Int32
	t        *testing.T
}

// sortKey mirrors the sort values Elasticsearch returns for inserted_at (epoch millis) and seq.
func (f *fakeElastic) sortKey(d map[string]interface{}) []int64 {
	at, err := time.Parse(time.RFC3339Nano, d["inserted_at"].(string))
	require.NoError(f.t, err)
	seq, err := d["seq"].(json.Number).Int64()
	require.NoError(f.t, err)
	return []int64{at.UnixMilli(), seq}
}

func keyLess(a, b []int64) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func (f *fakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/_doc"):
		if r.URL.Query().Get("refresh") != "wait_for" {
			f.t.Errorf("expected refresh=wait_for, got %q", r.URL.RawQuery)
		}
		var doc map[string]interface{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(f.t, dec.Decode(&doc))
		f.mu.Lock()
		f.docs = append(f.docs, doc)
		id := len(f.docs)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"_id":"%d","result":"created"}`, id)

	case strings.HasSuffix(r.URL.Path, "/_search"):
		var q struct {
			Size        int     `json:"size"`
			SearchAfter []int64 `json:"search_after"`
			Query       struct {
				Term map[string]string `json:"term"`
				Bool struct {
					Filter []map[string]map[string]interface{} `json:"filter"`
				} `json:"bool"`
			} `json:"query"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&q))
		f.searches.Add(1)

		f.mu.Lock()
		var hits []map[string]interface{}
		for _, d := range f.docs {
			if c, ok := q.Query.Term["category"]; ok && d["category"] != c {
				continue
			}
			if len(q.Query.Bool.Filter) > 0 {
				id := q.Query.Bool.Filter[0]["term"]["receipt_id"]
				if d["receipt_id"] != id || d["has_record"] != true {
					continue
				}
			}
			hits = append(hits, map[string]interface{}{"_source": d, "sort": f.sortKey(d)})
		}
		f.mu.Unlock()

		sort.Slice(hits, func(i, j int) bool {
			return keyLess(hits[i]["sort"].([]int64), hits[j]["sort"].([]int64))
		})
		if q.SearchAfter != nil {
			i := 0
			for i < len(hits) && !keyLess(q.SearchAfter, hits[i]["sort"].([]int64)) {
				i++
			}
			hits = hits[i:]
		}
		if q.Size > 0 && len(hits) > q.Size {
			hits = hits[:q.Size]
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{"hits": hits},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{}`)
	}
}

func TestElasticStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		srv := httptest.NewServer(&fakeElastic{t: t})
		t.Cleanup(srv.Close)

		client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
		require.NoError(t, err)
		return NewElasticStore(client, "receipt-embeddings", 100)
	})
}

func TestElasticStore_QueryPagesPastMaxScan(t *testing.T) {
	fake := &fakeElastic{t: t}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	s := NewElasticStore(client, "receipt-embeddings", 2)
	ctx := context.Background()

	// c is inserted first but carries the latest timestamp, so it lands on the second page
	late := entry("c", models.CategoryTravel, 0, 1)
	late.InsertedAt = late.InsertedAt.Add(time.Hour)
	require.NoError(t, s.Insert(ctx, late))
	require.NoError(t, s.Insert(ctx, entry("a", models.CategoryTravel, 1, 0)))
	require.NoError(t, s.Insert(ctx, entry("b", models.CategoryTravel, 1, 1)))

	matches, err := s.Query(ctx, models.CategoryTravel, []float32{0, 1})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "a", matches[0].Entry.ReceiptID)
	assert.Equal(t, "b", matches[1].Entry.ReceiptID)
	assert.Equal(t, "c", matches[2].Entry.ReceiptID)
	assert.InDelta(t, 1.0, matches[2].Score, 1e-6)
	assert.Equal(t, int32(2), fake.searches.Load())
}
