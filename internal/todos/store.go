// Package todos holds the signed-in user's todo collection and reconciles it
// with the document store one confirmed mutation at a time.
package todos

import (
	"context"
	"slices"
	"strings"
	"sync"

	"kaaj/internal/apperrors"
	"kaaj/internal/backend"
	"kaaj/internal/clock"
	"kaaj/internal/connectivity"
	"kaaj/internal/logging"
	"kaaj/internal/models"
	"kaaj/internal/notify"
	"kaaj/internal/validation"

	"github.com/charmbracelet/log"
)

// UserContext supplies the id of the signed-in user.
type UserContext interface {
	CurrentUserID() (string, bool)
}

// State is a snapshot of the store. Todos is ordered most recently created
// first.
type State struct {
	Todos   []models.Todo
	Loading bool
	Err     error
}

type Store struct {
	docs      backend.Documents
	monitor   *connectivity.Monitor
	users     UserContext
	clock     clock.Clock
	validator *validation.Validator
	logger    *log.Logger

	mu      sync.Mutex
	todos   []models.Todo
	pending int
	err     error

	listeners notify.Set[State]
}

type Option func(*Store)

func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

func WithLogger(l *log.Logger) Option { return func(s *Store) { s.logger = l } }

func NewStore(docs backend.Documents, monitor *connectivity.Monitor, users UserContext, opts ...Option) *Store {
	s := &Store{
		docs:    docs,
		monitor: monitor,
		users:   users,
		clock:   clock.Real(),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = validation.New(s.clock.Now)
	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.listeners.Add(fn)
}

// Get returns the in-memory todo with the given id.
func (s *Store) Get(id string) (models.Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Todo{}, false
	}
	return s.todos[i], true
}

// Fetch replaces the collection with the signed-in user's todos.
func (s *Store) Fetch(ctx context.Context) ([]models.Todo, error) {
	uid, ok := s.users.CurrentUserID()
	if !ok {
		return nil, s.fail(apperrors.New(apperrors.KindNoUserContext))
	}

	s.begin()
	list, err := connectivity.Do(ctx, s.monitor, func(ctx context.Context) ([]models.Todo, error) {
		return s.docs.ListTodos(ctx, uid)
	})
	if err != nil {
		if apperrors.Is(err, apperrors.KindIndexBuilding) {
			return nil, s.end(apperrors.Wrap(apperrors.KindIndexBuilding, err))
		}
		s.logger.Error("fetch todos", "user", uid, "err", err)
		return nil, s.end(apperrors.Wrap(apperrors.KindFetchFailed, err))
	}

	todos := slices.Clone(list)
	s.mu.Lock()
	s.todos = todos
	s.mu.Unlock()
	s.end(nil)
	return slices.Clone(todos), nil
}

// Create persists a new pending todo and prepends the stored record once the
// backend confirms it.
func (s *Store) Create(ctx context.Context, in models.TodoInput) (models.Todo, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validator.Struct(in); err != nil {
		return models.Todo{}, s.fail(err)
	}
	uid, ok := s.users.CurrentUserID()
	if !ok {
		return models.Todo{}, s.fail(apperrors.New(apperrors.KindNoUserContext))
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	now := s.clock.Now().UTC()
	draft := models.Todo{
		UserID:      uid,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    priority,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.begin()
	created, err := connectivity.Do(ctx, s.monitor, func(ctx context.Context) (models.Todo, error) {
		return s.docs.AddTodo(ctx, draft)
	})
	if err != nil {
		s.logger.Error("create todo", "user", uid, "err", err)
		return models.Todo{}, s.end(apperrors.Wrap(apperrors.KindCreateFailed, err))
	}

	s.mu.Lock()
	s.todos = slices.Insert(s.todos, 0, created)
	s.mu.Unlock()
	s.end(nil)
	return created, nil
}

// UpdateStatus persists status for id and merges it into the matching local
// record. A missing local record is left missing.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return s.fail(apperrors.Newf(apperrors.KindValidation, "অবৈধ স্ট্যাটাস: %s", status))
	}
	patch := models.TodoPatch{Status: status, UpdatedAt: s.clock.Now().UTC()}

	s.begin()
	err := s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.docs.UpdateTodo(ctx, id, patch)
	})
	if err != nil {
		s.logger.Error("update todo", "id", id, "err", err)
		return s.end(apperrors.Wrap(apperrors.KindUpdateFailed, err))
	}

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		patch.Apply(&s.todos[i])
	}
	s.mu.Unlock()
	return s.end(nil)
}

// Remove deletes id remotely, then locally.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.begin()
	err := s.monitor.WithRetry(ctx, func(ctx context.Context) error {
		return s.docs.DeleteTodo(ctx, id)
	})
	if err != nil {
		s.logger.Error("delete todo", "id", id, "err", err)
		return s.end(apperrors.Wrap(apperrors.KindDeleteFailed, err))
	}

	s.mu.Lock()
	s.todos = slices.DeleteFunc(s.todos, func(t models.Todo) bool { return t.ID == id })
	s.mu.Unlock()
	return s.end(nil)
}

// Clear empties the local collection. The backend is not touched.
func (s *Store) Clear() {
	s.mu.Lock()
	s.todos = nil
	s.err = nil
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)
}

func (s *Store) begin() {
	s.mu.Lock()
	s.pending++
	s.err = nil
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)
}

// end clears the loading flag for one operation and records err.
func (s *Store) end(err error) error {
	s.mu.Lock()
	s.pending--
	s.err = err
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)
	return err
}

// fail records an error raised before any remote call.
func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.err = err
	state := s.snapshotLocked()
	s.mu.Unlock()
	s.listeners.Notify(state)
	return err
}

func (s *Store) snapshotLocked() State {
	return State{Todos: slices.Clone(s.todos), Loading: s.pending > 0, Err: s.err}
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.todos, func(t models.Todo) bool { return t.ID == id })
}
