package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCacheEvict retries a permission cache eviction that failed inline.
	TaskCacheEvict = "rbac:cache:evict"
)

// EvictPayload names the entries to evict. All clears the keyspace and ignores Keys.
type EvictPayload struct {
	Keyspace string   `json:"keyspace"`
	Keys     []string `json:"keys,omitempty"`
	All      bool     `json:"all,omitempty"`
}

// Validate rejects payloads that would evict nothing.
func (p EvictPayload) Validate() error {
	if p.Keyspace == "" {
		return errors.New("evict payload: keyspace required")
	}
	if !p.All && len(p.Keys) == 0 {
		return errors.New("evict payload: keys or all required")
	}
	return nil
}

// NewCacheEvictTask constructs an Asynq task.
func NewCacheEvictTask(payload EvictPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheEvict, data), nil
}
