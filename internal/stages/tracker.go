// Package stages records the processing stage history of each intake file in Redis.
package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrUnknownFile is returned by Get for a file id with no recorded stages.
var ErrUnknownFile = errors.New("no stages recorded for file")

type Tracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

// NewTracker keeps stage history for ttl after the last update. A zero ttl keeps it forever.
func NewTracker(client *redis.Client, prefix string, ttl time.Duration, log logger.Logger) *Tracker {
	if prefix == "" {
		prefix = "receipts"
	}
	return &Tracker{client: client, prefix: prefix, ttl: ttl, logger: log, now: time.Now}
}

func (t *Tracker) statusKey(fileID string) string {
	return fmt.Sprintf("%s:stages:%s", t.prefix, fileID)
}

func (t *Tracker) eventsKey(fileID string) string {
	return fmt.Sprintf("%s:stages:%s:events", t.prefix, fileID)
}

func (t *Tracker) indexKey() string {
	return t.prefix + ":stages:index"
}

// Record appends a stage event and moves the file to that stage.
func (t *Tracker) Record(ctx context.Context, fileID, employeeID string, stage int, details map[string]interface{}) error {
	at := t.now().UTC()
	event := models.StageEvent{Stage: stage, Name: models.StageNames[stage], Details: details, At: at}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode stage event: %w", err)
	}

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, t.statusKey(fileID), map[string]interface{}{
			"employeeId": employeeID,
			"stage":      stage,
			"updatedAt":  at.Format(time.RFC3339Nano),
		})
		pipe.RPush(ctx, t.eventsKey(fileID), raw)
		pipe.ZAdd(ctx, t.indexKey(), redis.Z{Score: float64(at.UnixNano()), Member: fileID})
		if t.ttl > 0 {
			pipe.Expire(ctx, t.statusKey(fileID), t.ttl)
			pipe.Expire(ctx, t.eventsKey(fileID), t.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record stage %d for %s: %w", stage, fileID, err)
	}

	t.logger.Debug("stage recorded", map[string]interface{}{
		"fileId": fileID,
		"stage":  stage,
		"name":   event.Name,
	})
	return nil
}

// Get returns the stage history of one file.
func (t *Tracker) Get(ctx context.Context, fileID string) (*models.FileStatus, error) {
	fields, err := t.client.HGetAll(ctx, t.statusKey(fileID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get stages for %s: %w", fileID, err)
	}
	if len(fields) == 0 {
		return nil, ErrUnknownFile
	}

	status := &models.FileStatus{FileID: fileID, EmployeeID: fields["employeeId"], Events: []models.StageEvent{}}
	status.Stage, _ = strconv.Atoi(fields["stage"])
	status.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updatedAt"])

	raws, err := t.client.LRange(ctx, t.eventsKey(fileID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get stage events for %s: %w", fileID, err)
	}
	for _, r := range raws {
		var ev models.StageEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			t.logger.Warn("skipping corrupt stage event", map[string]interface{}{"fileId": fileID, "error": err})
			continue
		}
		status.Events = append(status.Events, ev)
	}
	return status, nil
}

// List returns up to limit files, most recently updated first. Expired files are skipped.
func (t *Tracker) List(ctx context.Context, limit int) ([]*models.FileStatus, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := t.client.ZRevRange(ctx, t.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}

	out := make([]*models.FileStatus, 0, len(ids))
	for _, id := range ids {
		st, err := t.Get(ctx, id)
		if errors.Is(err, ErrUnknownFile) {
			t.client.ZRem(ctx, t.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
