package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"mantrip/internal/attendance/models"
	"mantrip/pkg/platform/sentinel"
)

const (
	recordKeyPrefix = "attendance:record:"
	indexKeyPrefix  = "attendance:key:"
	idsSetKey       = "attendance:ids"
)

// RedisStore keeps each record as a JSON string, a (person, year) -> id index
// claimed with SETNX, and a set of all ids for listing.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}

func indexKey(k models.Key) string {
	return indexKeyPrefix + k.PersonName + ":" + strconv.Itoa(k.Year)
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Record, error) {
	ids, err := s.client.SMembers(ctx, idsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list attendance ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load attendance records: %w", err)
	}
	records := make([]*models.Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// id in the set whose record vanished between SMEMBERS and MGET
			continue
		}
		r, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	sortRecords(records)
	return records, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*models.Record, error) {
	raw, err := s.client.Get(ctx, recordKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return decodeRecord(raw)
}

func (s *RedisStore) Create(ctx context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	claimed, err := s.client.SetNX(ctx, indexKey(r.Key()), r.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim attendance key: %w", err)
	}
	if !claimed {
		return fmt.Errorf("record for %s/%d: %w", r.PersonName, r.Year, sentinel.ErrConflict)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode attendance: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(r.ID), payload, 0)
		pipe.SAdd(ctx, idsSetKey, r.ID)
		return nil
	})
	if err != nil {
		// release the key so a retry is not blocked by a half-written create
		_ = s.client.Del(ctx, indexKey(r.Key())).Err()
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// Update uses WATCH on the record key so a concurrent delete cannot be
// resurrected by a stale write.
func (s *RedisStore) Update(ctx context.Context, r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is required")
	}
	key := recordKey(r.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrNotFound)
		}
		if err != nil {
			return err
		}
		existing, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		existing.Attended = r.Attended
		existing.UpdatedAt = r.UpdatedAt
		payload, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(id), indexKey(existing.Key()))
		pipe.SRem(ctx, idsSetKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return nil
}

func decodeRecord(raw string) (*models.Record, error) {
	var r models.Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}
	return &r, nil
}
