package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSessions = []byte("sessions")
	bucketOvens    = []byte("ovens")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSessions, bucketOvens} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveSession(account string, sess *Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return b.Put([]byte(account), data)
	})
}

func (s *BoltStore) GetSession(account string) (*Session, error) {
	var sess Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		data := b.Get([]byte(account))
		if data == nil {
			return fmt.Errorf("session %s: %w", account, ErrNotFound)
		}
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BoltStore) DeleteSession(account string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		return b.Delete([]byte(account))
	})
}

func (s *BoltStore) SaveOven(oven *Oven) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOvens)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketOvens)
		}
		data, err := json.Marshal(oven)
		if err != nil {
			return err
		}
		return b.Put([]byte(oven.ID), data)
	})
}

func (s *BoltStore) GetOven(id string) (*Oven, error) {
	var oven Oven
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOvens)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketOvens)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("oven %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &oven)
	})
	if err != nil {
		return nil, err
	}
	return &oven, nil
}

func (s *BoltStore) DeleteOven(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOvens)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketOvens)
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) ListOvens() ([]*Oven, error) {
	var ovens []*Oven
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOvens)
		if b == nil {
			return nil // no bucket = no ovens
		}
		ovens = make([]*Oven, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var oven Oven
			if err := json.Unmarshal(v, &oven); err != nil {
				return err
			}
			ovens = append(ovens, &oven)
			return nil
		})
	})
	return ovens, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
