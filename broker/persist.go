package broker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists messages as one file per message-id under a
// directory, named message-id + ".msg". It is the default Store
// implementation: simple enough that a corrupt or missing directory
// degrades to "nothing to replay" rather than a fatal startup error.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore ensures dir exists and returns a Store backed by it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".msg")
}

// record is the on-disk shape of a persisted message: priority and status
// as their string names, timestamp as ISO-8601, per spec.
type record struct {
	ID           string            `json:"message_id"`
	Topic        string            `json:"topic"`
	Payload      []byte            `json:"payload"`
	Priority     string            `json:"priority"`
	Status       string            `json:"status"`
	Timestamp    string            `json:"timestamp"`
	PublisherID  string            `json:"publisher_id"`
	SubscriberID string            `json:"subscriber_id"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func toRecord(msg Message) record {
	return record{
		ID:           msg.ID,
		Topic:        msg.Topic,
		Payload:      msg.Payload,
		Priority:     priorityName(msg.Priority),
		Status:       msg.Status.String(),
		Timestamp:    msg.CreatedAt.Format(time.RFC3339),
		PublisherID:  msg.PublisherID,
		SubscriberID: msg.SubscriberID,
		RetryCount:   msg.RetryCount,
		MaxRetries:   msg.MaxRetries,
		Metadata:     msg.Metadata,
	}
}

func fromRecord(r record) (Message, error) {
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:           r.ID,
		Topic:        r.Topic,
		Payload:      r.Payload,
		Priority:     priorityValue(r.Priority),
		PublisherID:  r.PublisherID,
		SubscriberID: r.SubscriberID,
		Metadata:     r.Metadata,
		Status:       statusValue(r.Status),
		CreatedAt:    ts,
		RetryCount:   r.RetryCount,
		MaxRetries:   r.MaxRetries,
	}, nil
}

func statusValue(name string) Status {
	switch name {
	case "pending":
		return Pending
	case "processing":
		return Processing
	case "acknowledged":
		return Acknowledged
	case "failed":
		return Failed
	default:
		return Pending
	}
}

// Save implements Store.Save.
func (f *FileStore) Save(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(toRecord(msg))
	if err != nil {
		return err
	}
	return os.WriteFile(f.path(msg.ID), data, 0o644)
}

// Remove implements Store.Remove.
func (f *FileStore) Remove(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadAll implements Store.LoadAll, reading back every persisted message.
// A file that fails to parse is skipped rather than aborting the replay.
func (f *FileStore) LoadAll() ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".msg" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			continue
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		msg, err := fromRecord(r)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
