package services

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/cache"
	"kaaj/internal/database"
	"kaaj/internal/models"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// TodoService is the todo collection of the document store. Every call is
// made on behalf of caller and touches only caller's todos.
type TodoService interface {
	List(ctx context.Context, caller, owner string) ([]models.Todo, error)
	Create(ctx context.Context, caller string, todo models.Todo) (models.Todo, error)
	Get(ctx context.Context, caller, id string) (models.Todo, error)
	UpdateStatus(ctx context.Context, caller, id string, patch models.TodoPatch) (models.Todo, error)
	Delete(ctx context.Context, caller, id string) error
}

// TodoServiceImpl reads owner listings through a redis cache, coalescing
// concurrent misses for the same owner.
type TodoServiceImpl struct {
	db         *gorm.DB
	cache      *cache.TodoListCache
	sf         singleflight.Group
	indexReady atomic.Bool
	logger     *log.Logger
	now        func() time.Time

	// afterRead runs between the database read of a listing and its cache write.
	afterRead func(owner string)
}

// NewTodoService builds the service. lists may be nil to disable caching.
func NewTodoService(db *gorm.DB, lists *cache.TodoListCache, logger *log.Logger) *TodoServiceImpl {
	return &TodoServiceImpl{
		db:     db,
		cache:  lists,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// checkIndex answers IndexBuilding until the owner index exists. Once seen,
// the index is assumed to stay.
func (s *TodoServiceImpl) checkIndex() error {
	if s.indexReady.Load() {
		return nil
	}
	if !database.HasTodoIndex(s.db) {
		return apperrors.New(apperrors.KindIndexBuilding)
	}
	s.indexReady.Store(true)
	return nil
}

func (s *TodoServiceImpl) List(ctx context.Context, caller, owner string) ([]models.Todo, error) {
	if owner != caller {
		return nil, apperrors.New(apperrors.KindPermissionDenied)
	}
	if err := s.checkIndex(); err != nil {
		return nil, err
	}

	v, err, _ := s.sf.Do("list:"+owner, func() (any, error) {
		// outlives any single coalesced caller
		ctx := context.WithoutCancel(ctx)

		var gen int64
		cacheable := s.cache != nil
		if cacheable {
			list, err := s.cache.GetList(ctx, owner)
			if err != nil {
				s.logger.Warn("todo cache read", "owner", owner, "err", err)
			} else if list != nil {
				return list, nil
			}
			if gen, err = s.cache.Generation(ctx, owner); err != nil {
				s.logger.Warn("todo cache generation", "owner", owner, "err", err)
				cacheable = false
			}
		}

		var todos []models.Todo
		err := s.db.WithContext(ctx).
			Where("user_id = ?", owner).
			Order("created_at DESC").
			Find(&todos).Error
		if err != nil {
			return nil, storeError(err, apperrors.KindInternal)
		}
		if todos == nil {
			todos = []models.Todo{}
		}
		if s.afterRead != nil {
			s.afterRead(owner)
		}

		if cacheable {
			stored, err := s.cache.SetList(ctx, owner, gen, todos)
			switch {
			case err != nil:
				s.logger.Warn("todo cache write", "owner", owner, "err", err)
			case !stored:
				s.logger.Debug("todo listing changed while reading, not cached", "owner", owner)
			}
		}
		return todos, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Todo), nil
}

func (s *TodoServiceImpl) invalidate(ctx context.Context, owner string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), owner); err != nil {
		s.logger.Warn("todo cache invalidate", "owner", owner, "err", err)
	}
}

// Create stores todo under a server-assigned id and returns the stored record.
func (s *TodoServiceImpl) Create(ctx context.Context, caller string, todo models.Todo) (models.Todo, error) {
	if todo.UserID == "" {
		todo.UserID = caller
	}
	if todo.UserID != caller {
		return models.Todo{}, apperrors.New(apperrors.KindPermissionDenied)
	}
	todo.Title = strings.TrimSpace(todo.Title)
	if todo.Title == "" {
		return models.Todo{}, apperrors.Newf(apperrors.KindValidation, "শিরোনাম আবশ্যক")
	}
	if todo.Priority == "" {
		todo.Priority = models.PriorityMedium
	}
	if !todo.Priority.Valid() {
		return models.Todo{}, apperrors.Newf(apperrors.KindValidation, "অগ্রাধিকার সঠিক নয়")
	}
	// every todo starts pending whatever the client sent
	todo.Status = models.StatusPending

	id, err := newID()
	if err != nil {
		return models.Todo{}, apperrors.Wrap(apperrors.KindInternal, err)
	}
	todo.ID = id
	now := s.now()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}
	if todo.UpdatedAt.IsZero() {
		todo.UpdatedAt = todo.CreatedAt
	}
	todo.CreatedAt = todo.CreatedAt.UTC()
	todo.UpdatedAt = todo.UpdatedAt.UTC()

	if err := s.db.WithContext(ctx).Create(&todo).Error; err != nil {
		return models.Todo{}, storeError(err, apperrors.KindInternal)
	}
	s.invalidate(ctx, caller)
	return todo, nil
}

func (s *TodoServiceImpl) Get(ctx context.Context, caller, id string) (models.Todo, error) {
	var todo models.Todo
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&todo).Error; err != nil {
		return models.Todo{}, storeError(err, apperrors.KindInternal)
	}
	if todo.UserID != caller {
		return models.Todo{}, apperrors.New(apperrors.KindPermissionDenied)
	}
	return todo, nil
}

// UpdateStatus applies patch. Any known status may follow any other.
func (s *TodoServiceImpl) UpdateStatus(ctx context.Context, caller, id string, patch models.TodoPatch) (models.Todo, error) {
	if !patch.Status.Valid() {
		return models.Todo{}, apperrors.Newf(apperrors.KindValidation, "স্ট্যাটাস সঠিক নয়")
	}
	todo, err := s.Get(ctx, caller, id)
	if err != nil {
		return models.Todo{}, err
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = s.now()
	}
	patch.UpdatedAt = patch.UpdatedAt.UTC()
	patch.Apply(&todo)

	err = s.db.WithContext(ctx).Model(&todo).Updates(map[string]any{
		"status":     todo.Status,
		"updated_at": todo.UpdatedAt,
	}).Error
	if err != nil {
		return models.Todo{}, storeError(err, apperrors.KindInternal)
	}
	s.invalidate(ctx, caller)
	return todo, nil
}

func (s *TodoServiceImpl) Delete(ctx context.Context, caller, id string) error {
	todo, err := s.Get(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&todo).Error; err != nil {
		return storeError(err, apperrors.KindInternal)
	}
	s.invalidate(ctx, caller)
	return nil
}
