//go:build linux

package netif

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	defaultNameDBPath = "/var/run/lxcbox/veth-names.db"
	namesBucket       = "veth-names"
)

var nameDBPath = defaultNameDBPath

/**
 * SetNameDBPath overrides the bbolt database path used for veth name
 * allocation; intended for tests and alternate state directories.
 */
func SetNameDBPath(path string) {
	if path != "" {
		nameDBPath = path
	}
}

/**
 * AllocateName reserves and returns a fresh, globally-unique veth
 * interface name with the given prefix, persisted in a bbolt bucket so
 * uniqueness survives across driver restarts (invariant 5: two live
 * containers never share a veth name). Adapted from the IP allocator's
 * withDB short-transaction pattern, repurposed here for name
 * reservation instead of address reservation.
 * @param prefix a short prefix ("v" for parent-side, "c" for container-side)
 * @return the allocated name, or an error
 */
func AllocateName(prefix string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(nameDBPath), 0o755); err != nil {
		return "", fmt.Errorf("names: mkdir: %w", err)
	}

	var picked string
	if err := withDB(nameDBPath, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			bkt, err := tx.CreateBucketIfNotExists([]byte(namesBucket))
			if err != nil {
				return err
			}

			for i := 0; i < 1_000_000; i++ {
				candidate := fmt.Sprintf("%sbx%d", prefix, i)
				if len(candidate) > 15 {
					// IFNAMSIZ is 16 bytes including the NUL terminator.
					return fmt.Errorf("veth name %q exceeds IFNAMSIZ", candidate)
				}
				if bkt.Get([]byte(candidate)) != nil {
					continue
				}
				if err := bkt.Put([]byte(candidate), []byte{1}); err != nil {
					return fmt.Errorf("reserve %s: %w", candidate, err)
				}
				picked = candidate
				return nil
			}
			return fmt.Errorf("no free veth names with prefix %q", prefix)
		})
	}); err != nil {
		return "", err
	}

	return picked, nil
}

/**
 * ReleaseName frees a previously-allocated veth name so it may be
 * reused. Safe to call multiple times.
 */
func ReleaseName(name string) error {
	return withDB(nameDBPath, func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			bkt := tx.Bucket([]byte(namesBucket))
			if bkt == nil {
				return nil
			}
			return bkt.Delete([]byte(name))
		})
	})
}

/**
 * withDB opens BoltDB with a short timeout, runs f, and closes it.
 * This avoids holding an exclusive RW lock for the lifetime of the
 * driver process.
 */
func withDB(path string, f func(*bolt.DB) error) error {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()
	return f(db)
}
