package session

import (
	"sync"
	"time"

	"github.com/Snoopiam/mqt/internal/pipeline"
)

// Mode tracks where a user is in the render wizard.
type Mode int

const (
	ModeIdle Mode = iota
	ModeAwaitStyle
	ModeAwaitTier
	ModeAwaitFloorPlan
	ModeAwaitReference
)

// Session holds the per-user wizard state plus everything the refinement
// loop needs to re-render: the last floor plan, the last generated image
// and its comparison score.
type Session struct {
	UserID   int64
	Username string

	Mode     Mode
	StyleID  string
	TierName string

	FloorPlanFileID string
	ReferenceImage  []byte
	ReferenceMime   string

	LastImage      []byte
	LastMime       string
	LastComparison *pipeline.ComparisonResult
	RefineAttempts int

	LastActivity time.Time
}

type Options struct {
	MaxRefineAttempts int
}

type Store struct {
	mu         sync.Mutex
	sessions   map[int64]*Session
	maxRefines int
}

func NewStore(opts Options) *Store {
	maxRefines := opts.MaxRefineAttempts
	if maxRefines <= 0 {
		maxRefines = 5
	}

	return &Store{
		sessions:   make(map[int64]*Session),
		maxRefines: maxRefines,
	}
}

func (s *Store) MaxRefineAttempts() int {
	return s.maxRefines
}

// Update runs fn against the user's session under the store lock. The
// session is created on first touch.
func (s *Store) Update(userID int64, username string, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()
	if fn != nil {
		fn(sess)
	}
}

// Snapshot returns a shallow copy of the user's session. Image byte
// slices are shared with the live session and must not be mutated.
func (s *Store) Snapshot(userID int64, username string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID, username)
	sess.LastActivity = time.Now()
	return *sess
}

// CanRefine reports whether the user has a previous render on file and
// has not exhausted the refinement budget.
func (s *Store) CanRefine(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	return len(sess.LastImage) > 0 && sess.FloorPlanFileID != "" && sess.RefineAttempts < s.maxRefines
}

// Clear resets the wizard and refinement state but keeps the session
// record itself.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		username := sess.Username
		*sess = Session{
			UserID:       userID,
			Username:     username,
			LastActivity: time.Now(),
		}
	}
}

func (s *Store) getOrCreateLocked(userID int64, username string) *Session {
	if sess, ok := s.sessions[userID]; ok {
		if sess.Username == "" && username != "" {
			sess.Username = username
		}
		return sess
	}

	sess := &Session{
		UserID:       userID,
		Username:     username,
		LastActivity: time.Now(),
	}
	s.sessions[userID] = sess
	return sess
}
