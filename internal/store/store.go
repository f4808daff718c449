package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"lifxctl/internal/lights"
)

var ErrNotFound = errors.New("profile not found")

var bucketProfiles = []byte("profiles")

// ProfileLight is the captured state of one light.
type ProfileLight struct {
	LightID    string `json:"lightId"`
	Label      string `json:"label"`
	Power      bool   `json:"power"`
	Brightness int    `json:"brightness"`
	Hue        int    `json:"hue"`
	Saturation int    `json:"saturation"`
	Kelvin     int    `json:"kelvin"`
}

// Control returns the full change that restores this light.
func (p ProfileLight) Control() lights.PartialControl {
	return lights.PartialControl{
		Power:      lights.Bool(p.Power),
		Brightness: lights.Int(p.Brightness),
		Hue:        lights.Int(p.Hue),
		Saturation: lights.Int(p.Saturation),
		Kelvin:     lights.Int(p.Kelvin),
	}
}

type Profile struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Lights      []ProfileLight `json:"lights"`
}

// Store persists profiles in a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProfiles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveProfile inserts or replaces the profile with the same ID.
func (s *Store) SaveProfile(p *Profile) error {
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketProfiles)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.ID), data)
	})
}

func (s *Store) GetProfile(id string) (*Profile, error) {
	var p Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketProfiles)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns every profile sorted by name.
func (s *Store) ListProfiles() ([]*Profile, error) {
	var profiles []*Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b == nil {
			return nil
		}
		profiles = make([]*Profile, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var p Profile
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode profile %s: %w", k, err)
			}
			profiles = append(profiles, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(profiles, func(i, j int) bool {
		return strings.ToLower(profiles[i].Name) < strings.ToLower(profiles[j].Name)
	})
	return profiles, nil
}

// DeleteProfile removes the profile. Deleting an unknown id returns ErrNotFound.
func (s *Store) DeleteProfile(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketProfiles)
		}
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
