package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"evalgo.org/dockyard/models"
)

// CreateHost stores a new host. An empty ID is generated. Name and hostname
// must not be used by any other host.
func (s *Storage) CreateHost(host *models.Host) error {
	if host.ID == "" {
		host.ID = models.GenerateID("host")
	}
	now := s.now().UTC()
	host.Created = now
	host.Updated = now

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		if b.Get([]byte(host.ID)) != nil {
			return fmt.Errorf("%w: host %s already exists", ErrConflict, host.ID)
		}
		if err := checkHostUnique(b, host); err != nil {
			return err
		}
		return put(b, []byte(host.ID), host)
	})
}

// UpdateHost replaces an existing host, keeping its creation time.
func (s *Storage) UpdateHost(host *models.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)

		data := b.Get([]byte(host.ID))
		if data == nil {
			return fmt.Errorf("%w: host %s", ErrNotFound, host.ID)
		}
		var existing models.Host
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("failed to decode host %s: %w", host.ID, err)
		}

		if err := checkHostUnique(b, host); err != nil {
			return err
		}

		host.Created = existing.Created
		host.Updated = s.now().UTC()
		return put(b, []byte(host.ID), host)
	})
}

func checkHostUnique(b *bolt.Bucket, host *models.Host) error {
	return b.ForEach(func(k, v []byte) error {
		if string(k) == host.ID {
			return nil
		}
		var other models.Host
		if err := json.Unmarshal(v, &other); err != nil {
			return fmt.Errorf("failed to decode host %s: %w", k, err)
		}
		if other.Name == host.Name {
			return fmt.Errorf("%w: host name %q is already in use", ErrConflict, host.Name)
		}
		if strings.EqualFold(other.Hostname, host.Hostname) {
			return fmt.Errorf("%w: hostname %q is already in use", ErrConflict, host.Hostname)
		}
		return nil
	})
}

// GetHost returns the host with the given id.
func (s *Storage) GetHost(id string) (*models.Host, error) {
	var host models.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHosts).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: host %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &host)
	})
	if err != nil {
		return nil, err
	}
	return &host, nil
}

// GetHostByName returns the host with the given name.
func (s *Storage) GetHostByName(name string) (*models.Host, error) {
	hosts, err := s.ListHosts(false)
	if err != nil {
		return nil, err
	}
	for _, h := range hosts {
		if h.Name == name {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: host %q", ErrNotFound, name)
}

// ListHosts returns hosts ordered by name, optionally only enabled ones.
func (s *Storage) ListHosts(enabledOnly bool) ([]*models.Host, error) {
	hosts := []*models.Host{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHosts).ForEach(func(k, v []byte) error {
			var host models.Host
			if err := json.Unmarshal(v, &host); err != nil {
				return fmt.Errorf("failed to decode host %s: %w", k, err)
			}
			if enabledOnly && !host.Enabled {
				return nil
			}
			hosts = append(hosts, &host)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, nil
}

// DeleteHost removes a host together with all of its container metadata
// and returns the number of container records removed.
func (s *Storage) DeleteHost(id string) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		hosts := tx.Bucket(bucketHosts)
		if hosts.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: host %s", ErrNotFound, id)
		}

		var err error
		removed, err = deleteRange(tx.Bucket(bucketContainers), hostPrefix(id))
		if err != nil {
			return err
		}
		return hosts.Delete([]byte(id))
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
