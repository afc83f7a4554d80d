package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/authgate/internal/client/storage"
)

// SaveCookies stores the cookie set for host, replacing the previous one
func (s *Storage) SaveCookies(ctx context.Context, host string, cookies []storage.StoredCookie) error {
	if len(cookies) == 0 {
		return s.DeleteCookies(ctx, host)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCookies)
		if bucket == nil {
			return fmt.Errorf("cookies bucket not found")
		}

		// Сериализуем данные в JSON
		data, err := json.Marshal(cookies)
		if err != nil {
			return fmt.Errorf("failed to marshal cookies: %w", err)
		}

		if err := bucket.Put([]byte(host), data); err != nil {
			return fmt.Errorf("failed to save cookies: %w", err)
		}

		return nil
	})
}

// LoadCookies retrieves the cookie set stored for host
func (s *Storage) LoadCookies(ctx context.Context, host string) ([]storage.StoredCookie, error) {
	var cookies []storage.StoredCookie

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCookies)
		if bucket == nil {
			return fmt.Errorf("cookies bucket not found")
		}

		data := bucket.Get([]byte(host))
		if data == nil {
			return storage.ErrCookiesNotFound
		}

		// Десериализуем
		if err := json.Unmarshal(data, &cookies); err != nil {
			return fmt.Errorf("failed to unmarshal cookies: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return cookies, nil
}

// DeleteCookies removes all cookies stored for host; missing entry is not an error
func (s *Storage) DeleteCookies(ctx context.Context, host string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCookies)
		if bucket == nil {
			return fmt.Errorf("cookies bucket not found")
		}

		if err := bucket.Delete([]byte(host)); err != nil {
			return fmt.Errorf("failed to delete cookies: %w", err)
		}

		return nil
	})
}
