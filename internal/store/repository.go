package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"parley/internal/types"
)

var (
	bucketRecents = []byte("recents")
	bucketDrafts  = []byte("drafts")
)

// Repository is the local persistence for state the gateway does not own:
// which sessions the user opened recently and their unsent input drafts.
type Repository struct {
	db *bolt.DB
}

func Open(path string) (*Repository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func initSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecents); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketDrafts)
		return err
	})
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// TouchRecent records a navigation to a session, keeping the title fresh.
func (r *Repository) TouchRecent(sessionKey, title string, openedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("store is closed")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return errors.New("session key is required")
	}
	if openedAt.IsZero() {
		openedAt = time.Now().UTC()
	}
	record := types.RecentSession{Key: sessionKey, Title: title, LastOpened: openedAt.UTC()}
	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecents).Put([]byte(sessionKey), data)
	})
}

// Recents lists recorded sessions, most recently opened first.
func (r *Repository) Recents() ([]types.RecentSession, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("store is closed")
	}
	var records []types.RecentSession
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecents).ForEach(func(_, value []byte) error {
			var record types.RecentSession
			if err := json.Unmarshal(value, &record); err != nil {
				return nil // skip corrupt rows
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastOpened.After(records[j].LastOpened)
	})
	return records, nil
}

func (r *Repository) DeleteRecent(sessionKey string) error {
	if r == nil || r.db == nil {
		return errors.New("store is closed")
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecents).Delete([]byte(sessionKey))
	})
}

// SaveDraft persists unsent input for a session. An empty draft deletes
// the row.
func (r *Repository) SaveDraft(sessionKey, text string) error {
	if r == nil || r.db == nil {
		return errors.New("store is closed")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return errors.New("session key is required")
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDrafts)
		if strings.TrimSpace(text) == "" {
			return bucket.Delete([]byte(sessionKey))
		}
		return bucket.Put([]byte(sessionKey), []byte(text))
	})
}

// Draft returns the saved input for a session, if any.
func (r *Repository) Draft(sessionKey string) (string, bool, error) {
	if r == nil || r.db == nil {
		return "", false, errors.New("store is closed")
	}
	var draft string
	var found bool
	err := r.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketDrafts).Get([]byte(strings.TrimSpace(sessionKey)))
		if value != nil {
			draft = string(value)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return draft, found, nil
}
