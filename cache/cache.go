// Package cache persists merged event snapshots and the sync checkpoint in a
// local storm database, for callers that want durable state between rounds.
// The engine itself never touches storage; it only returns merge results that
// callers hand to this package.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/fatih/color"
	"github.com/hushcal/hushcal/common"
	"github.com/hushcal/hushcal/event"
	"github.com/hushcal/hushcal/session"
	"github.com/mitchellh/go-homedir"
)

const (
	// LOGGING.
	libName       = "hushcal | cache" // name of library used in logging
	maxDebugChars = 120               // number of characters to display when logging
)

var HiWhite = color.New(color.FgHiWhite).SprintFunc()

// Snapshot is the stored form of an event snapshot. The encrypted groups stay
// encrypted at rest; local metadata is lifted into columns because the payload
// serialization excludes it.
type Snapshot struct {
	ExternalID   string `storm:"id,unique"`
	Payload      []byte
	Deleted      bool `storm:"index"`
	Dirty        bool
	SyncedAt     int64
	MailDedupeAt int64
	DirtiedDate  time.Time
}

// Checkpoint stores the relay's resume token. A single row exists per DB.
type Checkpoint struct {
	ID    int `storm:"id"`
	Token string
}

type Snapshots []Snapshot

// DB wraps the storm handle.
type DB struct {
	db    *storm.DB
	debug bool
}

// Open opens (creating if needed) the cache database at the given path.
func Open(path string, debug bool) (c *DB, err error) {
	db, err := storm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cache open | %w", err)
	}

	debugPrint(debug, fmt.Sprintf("opened cache db at %s", path))

	return &DB{db: db, debug: debug}, nil
}

func (c *DB) Close() error {
	return c.db.Close()
}

// SaveSnapshots upserts merged snapshots into the cache.
func (c *DB) SaveSnapshots(snapshots ...event.Snapshot) error {
	for _, s := range snapshots {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("cache save | failed to marshal %s: %w", s.ExternalID, err)
		}

		rec := Snapshot{
			ExternalID:   s.ExternalID,
			Payload:      payload,
			Deleted:      s.Plain.Deleted,
			Dirty:        s.Local.Dirty,
			SyncedAt:     s.Local.SyncedAt,
			MailDedupeAt: s.Local.MailDedupeAt,
			DirtiedDate:  time.Now(),
		}

		debugPrint(c.debug, fmt.Sprintf("saving snapshot %s at %s",
			HiWhite(s.ExternalID), rec.DirtiedDate.Format(common.TimeLayout)))

		if err = c.db.Save(&rec); err != nil {
			return fmt.Errorf("cache save | %w", err)
		}
	}

	return nil
}

// AllSnapshots loads every cached snapshot, keyed by external ID.
func (c *DB) AllSnapshots() (map[string]event.Snapshot, error) {
	var recs Snapshots

	err := c.db.All(&recs)
	if err != nil {
		return nil, fmt.Errorf("cache load | %w", err)
	}

	out := make(map[string]event.Snapshot, len(recs))

	for _, rec := range recs {
		var s event.Snapshot

		if err = json.Unmarshal(rec.Payload, &s); err != nil {
			return nil, fmt.Errorf("cache load | failed to unmarshal %s: %w", rec.ExternalID, err)
		}

		s.Local.Dirty = rec.Dirty
		s.Local.SyncedAt = rec.SyncedAt
		s.Local.MailDedupeAt = rec.MailDedupeAt
		out[s.ExternalID] = s
	}

	debugPrint(c.debug, fmt.Sprintf("loaded %d snapshots from db", len(out)))

	return out, nil
}

// SaveCheckpoint records the relay checkpoint to resume from.
func (c *DB) SaveCheckpoint(token string) error {
	return c.db.Save(&Checkpoint{ID: 1, Token: token})
}

// LoadCheckpoint returns the stored checkpoint, or empty if none exists yet.
func (c *DB) LoadCheckpoint() (string, error) {
	var cp Checkpoint

	err := c.db.One("ID", 1, &cp)
	if err != nil {
		if err == storm.ErrNotFound {
			return "", nil
		}

		return "", fmt.Errorf("cache checkpoint | %w", err)
	}

	return cp.Token, nil
}

// GenCacheDBPath generates a path to a database file to be used as a cache of
// event snapshots. The filename is a SHA2 hash of a concatenation of the
// following in order to be both unique and avoid concurrent usage:
// - the session's calendar ID (so that caches are unique to a user)
// - the server URL (so that caches are server specific)
// - the requesting application name (so that caches are application specific).
func GenCacheDBPath(s session.Session, dir, appName string) (string, error) {
	var err error

	if !s.Valid() {
		return "", fmt.Errorf("invalid session")
	}

	if appName == "" {
		return "", fmt.Errorf("appName is required")
	}

	// if cache directory not defined then create dot path in home directory
	if dir == "" {
		var homeDir string

		homeDir, err = homedir.Dir()
		if err != nil {
			return "", err
		}

		dir = filepath.Join(homeDir, "."+appName)
	}

	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return "", fmt.Errorf("failed to make cache directory: %s", dir)
	}

	h := sha256.New()

	h.Write([]byte(s.CalendarID + s.Server + appName))
	bs := h.Sum(nil)
	hexedDigest := hex.EncodeToString(bs)[:8]

	return filepath.Join(dir, appName+"-"+hexedDigest+".db"), err
}

func debugPrint(show bool, msg string) {
	if show {
		if len(msg) > maxDebugChars {
			msg = msg[:maxDebugChars] + "..."
		}

		log.Println(libName, "|", msg)
	}
}
