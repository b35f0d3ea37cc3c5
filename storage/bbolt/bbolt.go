// Package bbolt provides a BBolt-backed configuration store.
package bbolt

import (
	"errors"
	"fmt"

	"github.com/jmcleod/remotehand/storage"
	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

const configBucket = "config"

// Store implements storage.Store backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore returns a Store backed by the given BBolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(configBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating config bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a new Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Has(key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(configBucket)).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, wrap(err)
	}
	return found, nil
}

func (s *Store) Get(key, def string) (string, error) {
	value := def
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(configBucket)).Get([]byte(key)); data != nil {
			value = string(data)
		}
		return nil
	})
	if err != nil {
		return def, wrap(err)
	}
	return value, nil
}

func (s *Store) Set(key, value string) error {
	return wrap(s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(configBucket)).Put([]byte(key), []byte(value))
	}))
}

func (s *Store) Delete(key string) error {
	return wrap(s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(configBucket))
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return b.Delete([]byte(key))
	}))
}

func wrap(err error) error {
	if errors.Is(err, berrors.ErrDatabaseNotOpen) {
		return storage.ErrClosed
	}
	return err
}
