package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"evalgo.org/dockyard/models"
)

func hostPrefix(hostID string) []byte {
	return []byte(hostID + "/")
}

func containerKey(hostID, containerID string) []byte {
	return []byte(hostID + "/" + containerID)
}

// deleteRange removes every key starting with prefix.
func deleteRange(b *bolt.Bucket, prefix []byte) (int, error) {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// UpsertContainer loads the record for (hostID, containerID), creating it
// when absent, applies mutate and writes it back in one transaction. The
// host must exist.
func (s *Storage) UpsertContainer(hostID, containerID string, mutate func(*models.ContainerMetadata)) (*models.ContainerMetadata, error) {
	var record models.ContainerMetadata
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketHosts).Get([]byte(hostID)) == nil {
			return fmt.Errorf("%w: host %s", ErrNotFound, hostID)
		}

		b := tx.Bucket(bucketContainers)
		key := containerKey(hostID, containerID)
		if data := b.Get(key); data != nil {
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("failed to decode container %s: %w", key, err)
			}
		}

		if mutate != nil {
			mutate(&record)
		}
		record.ContainerID = containerID
		record.HostID = hostID
		record.Updated = s.now().UTC()

		return put(b, key, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetContainer returns the record for (hostID, containerID).
func (s *Storage) GetContainer(hostID, containerID string) (*models.ContainerMetadata, error) {
	var record models.ContainerMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketContainers).Get(containerKey(hostID, containerID))
		if data == nil {
			return fmt.Errorf("%w: container %s on host %s", ErrNotFound, containerID, hostID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListContainersByHost returns every record of a host ordered by id.
func (s *Storage) ListContainersByHost(hostID string) ([]*models.ContainerMetadata, error) {
	records := []*models.ContainerMetadata{}
	prefix := hostPrefix(hostID)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketContainers).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record models.ContainerMetadata
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode container %s: %w", k, err)
			}
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}

// MarkNotRunningExcept flips is_running to false on every record of hostID
// whose id is not in liveIDs. It returns how many records changed.
func (s *Storage) MarkNotRunningExcept(hostID string, liveIDs []string) (int, error) {
	live := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = struct{}{}
	}

	changed := 0
	prefix := hostPrefix(hostID)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)

		var stale []*models.ContainerMetadata
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record models.ContainerMetadata
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode container %s: %w", k, err)
			}
			if _, ok := live[record.ContainerID]; ok || !record.IsRunning {
				continue
			}
			stale = append(stale, &record)
		}

		now := s.now().UTC()
		for _, record := range stale {
			record.IsRunning = false
			record.Updated = now
			if err := put(b, containerKey(hostID, record.ContainerID), record); err != nil {
				return err
			}
		}
		changed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// FindByOwnerOrPublic returns the ids of every container, on any host,
// that is public or owned by userID.
func (s *Storage) FindByOwnerOrPublic(userID string) ([]string, error) {
	seen := map[string]struct{}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(k, v []byte) error {
			var record models.ContainerMetadata
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to decode container %s: %w", k, err)
			}
			if record.Visibility.VisibleTo(userID) {
				seen[record.ContainerID] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteByContainerID removes every record with the given container id,
// whatever its host, and returns how many were removed.
func (s *Storage) DeleteByContainerID(containerID string) (int, error) {
	removed := 0
	suffix := []byte("/" + containerID)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)

		var keys [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			if bytes.HasSuffix(k, suffix) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	return removed, err
}
