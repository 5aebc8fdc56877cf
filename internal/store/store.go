package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Store is the Session Store: sessions.json plus a sibling lock file,
// read-modify-written under an exclusive advisory lock so the daemon, the
// CLI, and the web API can all mutate session state concurrently without
// corrupting it (spec.md §5, grounded on gastown's internal/quota.Manager).
type Store struct {
	path     string
	lockPath string
}

// New returns a Store backed by the sessions.json file at path.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
	}
}

func (s *Store) lock() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating store lock directory: %w", err)
	}
	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquiring store lock: %w", err)
	}
	return fl, nil
}

// load reads and parses the document, returning an empty one if the file
// does not exist yet (first run). Caller must hold the lock.
func (s *Store) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return newDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session store: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing session store: %w", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]Session{}
	}
	if doc.Archived == nil {
		doc.Archived = map[string]Session{}
	}
	return &doc, nil
}

// save writes the document atomically. Caller must hold the lock.
func (s *Store) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return os.Rename(tmpName, s.path)
}

// WithLock acquires the store lock, runs fn with the loaded document, and
// — if fn returns nil — persists any mutations fn made to it. Use this for
// every read-modify-write sequence; a bare Load+Save pair races.
func (s *Store) WithLock(fn func(doc *Document) error) error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer fl.Unlock() //nolint:errcheck

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// View acquires the lock for a read-only pass: fn's mutations (if any) are
// discarded.
func (s *Store) View(fn func(doc *Document) error) error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer fl.Unlock() //nolint:errcheck

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// Get returns a copy of the session with the given id, live or archived.
func (s *Store) Get(id string) (Session, error) {
	var out Session
	err := s.View(func(doc *Document) error {
		found, ok := doc.find(id)
		if !ok {
			return ErrNotFound
		}
		out = found
		return nil
	})
	return out, err
}

// List returns a copy of all live sessions.
func (s *Store) List() ([]Session, error) {
	var out []Session
	err := s.View(func(doc *Document) error {
		for _, sess := range doc.Sessions {
			out = append(out, sess)
		}
		return nil
	})
	return out, err
}

// ListArchived returns a copy of all archived sessions.
func (s *Store) ListArchived() ([]Session, error) {
	var out []Session
	err := s.View(func(doc *Document) error {
		for _, sess := range doc.Archived {
			out = append(out, sess)
		}
		return nil
	})
	return out, err
}

// FindByName returns the live (non-archived, non-terminated) session
// matching name within tmuxSession, if any. Used by the Launcher for
// idempotent relaunch and parent-by-name resolution (spec.md §4.O).
func (s *Store) FindByName(name, tmuxSession string) (Session, bool, error) {
	var found Session
	var ok bool
	err := s.View(func(doc *Document) error {
		for _, sess := range doc.Sessions {
			if sess.Name == name && sess.TmuxSession == tmuxSession && sess.Status != LifecycleTerminated {
				found, ok = sess, true
				return nil
			}
		}
		return nil
	})
	return found, ok, err
}

// Children returns the live sessions whose parent_session_id is parentID.
func (s *Store) Children(parentID string) ([]Session, error) {
	var out []Session
	err := s.View(func(doc *Document) error {
		out = doc.byParent(parentID)
		return nil
	})
	return out, err
}

// Create validates and inserts a new session, assigning it a fresh id if
// Session.ID is empty. Enforces uniqueness of (name, tmux_session) among
// live sessions and the parent-depth/cycle invariants (spec.md §3.1, §8).
func (s *Store) Create(sess Session) (Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	err := s.WithLock(func(doc *Document) error {
		for _, existing := range doc.Sessions {
			if existing.Name == sess.Name && existing.TmuxSession == sess.TmuxSession {
				return ErrDuplicateName
			}
		}
		if sess.ParentSessionID != nil {
			if _, ok := doc.find(*sess.ParentSessionID); !ok {
				return fmt.Errorf("%w: parent %s not found", ErrNotFound, *sess.ParentSessionID)
			}
			if doc.depth(sess.ParentSessionID)+1 > MaxDepth {
				return ErrDepthExceeded
			}
		}
		doc.Sessions[sess.ID] = sess
		return nil
	})
	return sess, err
}

// Update loads the live session by id, applies mutate, validates the
// per-session invariants (active-claude-session membership, sleep /
// heartbeat exclusivity), and persists the result.
func (s *Store) Update(id string, mutate func(sess *Session) error) error {
	return s.WithLock(func(doc *Document) error {
		sess, ok := doc.findLive(id)
		if !ok {
			return ErrNotFound
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		if err := validateInvariants(&sess); err != nil {
			return err
		}
		doc.Sessions[id] = sess
		return nil
	})
}

// GetAndUpdate is Update, but also returns the session as persisted after
// mutate ran — saving the caller a redundant Get for the common case where
// it needs the post-mutation value (e.g. to publish a snapshot).
func (s *Store) GetAndUpdate(id string, mutate func(sess *Session) error) (Session, error) {
	var out Session
	err := s.WithLock(func(doc *Document) error {
		sess, ok := doc.findLive(id)
		if !ok {
			return ErrNotFound
		}
		if err := mutate(&sess); err != nil {
			return err
		}
		if err := validateInvariants(&sess); err != nil {
			return err
		}
		doc.Sessions[id] = sess
		out = sess
		return nil
	})
	return out, err
}

// Reparent moves a session under a new parent, enforcing acyclicity and
// depth (spec.md §3.1 invariants).
func (s *Store) Reparent(id string, newParentID *string) error {
	return s.WithLock(func(doc *Document) error {
		sess, ok := doc.findLive(id)
		if !ok {
			return ErrNotFound
		}
		if newParentID != nil {
			if *newParentID == id {
				return ErrParentCycle
			}
			if _, ok := doc.find(*newParentID); !ok {
				return fmt.Errorf("%w: parent %s not found", ErrNotFound, *newParentID)
			}
			if doc.isAncestor(*newParentID, id) {
				return ErrParentCycle
			}
			if doc.depth(newParentID)+1 > MaxDepth {
				return ErrDepthExceeded
			}
		}
		sess.ParentSessionID = newParentID
		doc.Sessions[id] = sess
		return nil
	})
}

// Archive moves a live session into the archive, setting its lifecycle
// status, keeping its record for sister aggregation and history.
func (s *Store) Archive(id string, status Lifecycle) error {
	return s.WithLock(func(doc *Document) error {
		sess, ok := doc.Sessions[id]
		if !ok {
			return ErrNotFound
		}
		sess.Status = status
		doc.Archived[id] = sess
		delete(doc.Sessions, id)
		return nil
	})
}

// validateInvariants checks the document-independent session invariants
// (spec.md §3.1, §8). Invariants that need document-wide context (depth,
// cycles, name uniqueness) are checked by Create/Reparent instead.
func validateInvariants(sess *Session) error {
	if sess.IsAsleep && sess.HeartbeatEnabled && !sess.HeartbeatPaused {
		return ErrSleepHeartbeatConflict
	}
	if sess.ActiveClaudeSessionID != "" {
		found := false
		for _, id := range sess.ClaudeSessionIDs {
			if id == sess.ActiveClaudeSessionID {
				found = true
				break
			}
		}
		if !found {
			return ErrUnknownActiveClaudeSession
		}
	}
	return nil
}
