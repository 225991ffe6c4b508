package lifecycle

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cshealth/internal/clock"
	"cshealth/internal/domain"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	maxCASAttempts = 16
	plainKeyPrefix = "alert."
	hexKeyPrefix   = "alerthex."
)

// NATSSettings configures JetStream KV lifecycle backend.
type NATSSettings struct {
	URL                []string
	Bucket             string
	AllowCreateBuckets bool
}

// NATSStore persists lifecycle state in one JetStream KV bucket.
// Params: NATS connection and KV bucket handle.
// Returns: shared store usable by several service replicas.
type NATSStore struct {
	nc    *nats.Conn
	kv    nats.KeyValue
	clock clock.Clock
	newID func() string
}

// NewNATSStore opens (or creates) lifecycle KV bucket.
// Params: connection settings and clock.
// Returns: initialized store or setup error.
func NewNATSStore(settings NATSSettings, clk clock.Clock) (*NATSStore, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open lifecycle bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      settings.Bucket,
			Description: "alert lifecycle state",
			History:     5,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create lifecycle bucket %q: %w", settings.Bucket, err)
		}
	}

	return &NATSStore{nc: nc, kv: kv, clock: clk, newID: uuid.NewString}, nil
}

// Get reads stored state for alert ID.
// Params: alert ID.
// Returns: state or ErrNotFound.
func (s *NATSStore) Get(_ context.Context, alertID string) (domain.StoredUpdate, error) {
	stored, _, err := s.read(alertID)
	return stored, err
}

// Upsert merges update with compare-and-set retries on the KV revision.
// Params: context for cancellation between attempts, alert ID, and update.
// Returns: merge result or ErrConflict after repeated concurrent writes.
func (s *NATSStore) Upsert(ctx context.Context, alertID string, update domain.AlertUpdate) (UpsertResult, error) {
	key := kvKey(alertID)
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return UpsertResult{}, err
		}

		current, revision, err := s.read(alertID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return UpsertResult{}, err
		}
		next, changed, note := ApplyUpdate(current, alertID, update, s.clock.Now(), s.newID)
		body, err := json.Marshal(next)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("encode lifecycle state: %w", err)
		}

		if revision == 0 {
			_, err = s.kv.Create(key, body)
		} else {
			_, err = s.kv.Update(key, body, revision)
		}
		if err == nil {
			return UpsertResult{Changed: changed, Note: note, Stored: next}, nil
		}
		if !isRevisionConflict(err) {
			return UpsertResult{}, fmt.Errorf("write lifecycle state: %w", err)
		}
	}
	return UpsertResult{}, ErrConflict
}

// List reads every stored state in the bucket.
func (s *NATSStore) List(_ context.Context) ([]domain.StoredUpdate, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	out := make([]domain.StoredUpdate, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(key)
		if err != nil {
			if errors.Is(err, nats.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("get %q: %w", key, err)
		}
		var stored domain.StoredUpdate
		if err := json.Unmarshal(entry.Value(), &stored); err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		out = append(out, stored)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertID < out[j].AlertID })
	return out, nil
}

// Close closes underlying NATS connection.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}

func (s *NATSStore) read(alertID string) (domain.StoredUpdate, uint64, error) {
	entry, err := s.kv.Get(kvKey(alertID))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return domain.StoredUpdate{}, 0, ErrNotFound
		}
		return domain.StoredUpdate{}, 0, fmt.Errorf("get lifecycle state: %w", err)
	}
	var stored domain.StoredUpdate
	if err := json.Unmarshal(entry.Value(), &stored); err != nil {
		return domain.StoredUpdate{}, 0, fmt.Errorf("decode lifecycle state: %w", err)
	}
	return stored, entry.Revision(), nil
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, nats.ErrKeyExists) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "wrong last sequence")
}

// kvKey maps alert ID onto KV-safe key; IDs with unsupported characters are hex encoded.
func kvKey(alertID string) string {
	for _, r := range alertID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '=':
		default:
			return hexKeyPrefix + hex.EncodeToString([]byte(alertID))
		}
	}
	if alertID == "" {
		return hexKeyPrefix + "00"
	}
	return plainKeyPrefix + alertID
}
