package todos_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/clock"
	"kaaj/internal/connectivity"
	"kaaj/internal/models"
	"kaaj/internal/todos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MockDocuments struct {
	mock.Mock
}

func (m *MockDocuments) Ping(ctx context.Context) error {
	return nil
}

func (m *MockDocuments) ListTodos(ctx context.Context, ownerID string) ([]models.Todo, error) {
	args := m.Called(ctx, ownerID)
	list, _ := args.Get(0).([]models.Todo)
	return list, args.Error(1)
}

func (m *MockDocuments) AddTodo(ctx context.Context, todo models.Todo) (models.Todo, error) {
	args := m.Called(ctx, todo)
	return args.Get(0).(models.Todo), args.Error(1)
}

func (m *MockDocuments) UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *MockDocuments) DeleteTodo(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocuments) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*models.Profile)
	return p, args.Error(1)
}

func (m *MockDocuments) MergeProfile(ctx context.Context, userID string, update models.ProfileUpdate) error {
	args := m.Called(ctx, userID, update)
	return args.Error(0)
}

type fixedUser struct {
	mu sync.Mutex
	id string
}

func (u *fixedUser) CurrentUserID() (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.id, u.id != ""
}

type TodoStoreTestSuite struct {
	suite.Suite
	docs  *MockDocuments
	user  *fixedUser
	clock *clock.Fake
	store *todos.Store
	now   time.Time
}

func (s *TodoStoreTestSuite) SetupTest() {
	s.now = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s.docs = new(MockDocuments)
	s.user = &fixedUser{id: "u-1"}
	s.clock = clock.NewFake(s.now)
	monitor := connectivity.New(s.docs, connectivity.WithClock(s.clock))
	s.store = todos.NewStore(s.docs, monitor, s.user, todos.WithClock(s.clock))
}

func (s *TodoStoreTestSuite) stored(id, title string) models.Todo {
	return models.Todo{
		ID:        id,
		UserID:    "u-1",
		Title:     title,
		Priority:  models.PriorityMedium,
		Status:    models.StatusPending,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
}

func (s *TodoStoreTestSuite) TestCreate_ForcesPendingAndPrepends() {
	s.docs.On("AddTodo", mock.Anything, mock.MatchedBy(func(t models.Todo) bool {
		return t.UserID == "u-1" && t.Status == models.StatusPending && t.Priority == models.PriorityLow
	})).Return(models.Todo{
		ID: "t-1", UserID: "u-1", Title: "Buy milk", Priority: models.PriorityLow,
		Status: models.StatusPending, CreatedAt: s.now, UpdatedAt: s.now,
	}, nil).Once()

	created, err := s.store.Create(context.Background(), models.TodoInput{Title: "Buy milk", Priority: models.PriorityLow})

	s.Require().NoError(err)
	s.Equal("t-1", created.ID)
	state := s.store.State()
	s.Require().NotEmpty(state.Todos)
	first := state.Todos[0]
	s.Equal("u-1", first.UserID)
	s.Equal(models.StatusPending, first.Status)
	s.NotEmpty(first.ID)
	s.False(state.Loading)
	s.NoError(state.Err)
	s.docs.AssertExpectations(s.T())
}

func (s *TodoStoreTestSuite) TestCreate_NewestFirst() {
	s.docs.On("AddTodo", mock.Anything, mock.MatchedBy(func(t models.Todo) bool { return t.Title == "first" })).
		Return(s.stored("t-1", "first"), nil).Once()
	s.docs.On("AddTodo", mock.Anything, mock.MatchedBy(func(t models.Todo) bool { return t.Title == "second" })).
		Return(s.stored("t-2", "second"), nil).Once()

	_, err := s.store.Create(context.Background(), models.TodoInput{Title: "first"})
	s.Require().NoError(err)
	_, err = s.store.Create(context.Background(), models.TodoInput{Title: "second"})
	s.Require().NoError(err)

	state := s.store.State()
	s.Require().Len(state.Todos, 2)
	s.Equal("t-2", state.Todos[0].ID)
	s.Equal("t-1", state.Todos[1].ID)
}

func (s *TodoStoreTestSuite) TestCreate_DefaultsPriorityToMedium() {
	s.docs.On("AddTodo", mock.Anything, mock.MatchedBy(func(t models.Todo) bool {
		return t.Priority == models.PriorityMedium
	})).Return(s.stored("t-1", "Read book"), nil).Once()

	_, err := s.store.Create(context.Background(), models.TodoInput{Title: "Read book"})
	s.Require().NoError(err)
	s.docs.AssertExpectations(s.T())
}

func (s *TodoStoreTestSuite) TestCreate_ValidationFailsBeforeNetwork() {
	yesterday := s.now.AddDate(0, 0, -1)
	tests := []struct {
		name  string
		input models.TodoInput
		field string
	}{
		{"short title", models.TodoInput{Title: "ab"}, "title"},
		{"blank title", models.TodoInput{Title: "    "}, "title"},
		{"past due date", models.TodoInput{Title: "Pay rent", DueDate: &yesterday}, "due_date"},
		{"bad priority", models.TodoInput{Title: "Pay rent", Priority: "urgent"}, "priority"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.store.Create(context.Background(), tt.input)
			s.Require().Error(err)
			s.True(apperrors.Is(err, apperrors.KindValidation))
			s.Equal(err, s.store.State().Err)
		})
	}
	s.docs.AssertNotCalled(s.T(), "AddTodo", mock.Anything, mock.Anything)
}

func (s *TodoStoreTestSuite) TestCreate_DueTodayIsAccepted() {
	earlier := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.docs.On("AddTodo", mock.Anything, mock.Anything).Return(s.stored("t-1", "Pay rent"), nil).Once()

	_, err := s.store.Create(context.Background(), models.TodoInput{Title: "Pay rent", DueDate: &earlier})
	s.NoError(err)
}

func (s *TodoStoreTestSuite) TestCreate_BackendErrorIsCreateFailed() {
	s.docs.On("AddTodo", mock.Anything, mock.Anything).
		Return(models.Todo{}, apperrors.New(apperrors.KindPermissionDenied)).Once()

	_, err := s.store.Create(context.Background(), models.TodoInput{Title: "Buy milk"})

	s.True(apperrors.Is(err, apperrors.KindCreateFailed))
	s.Empty(s.store.State().Todos)
	s.False(s.store.State().Loading)
}

func (s *TodoStoreTestSuite) TestCreate_SignedOutIsNoUserContext() {
	s.user.id = ""

	_, err := s.store.Create(context.Background(), models.TodoInput{Title: "Buy milk"})

	s.True(apperrors.Is(err, apperrors.KindNoUserContext))
	s.docs.AssertNotCalled(s.T(), "AddTodo", mock.Anything, mock.Anything)
}

func (s *TodoStoreTestSuite) TestFetch_SignedOutIsNoUserContext() {
	s.user.id = ""

	_, err := s.store.Fetch(context.Background())

	s.True(apperrors.Is(err, apperrors.KindNoUserContext))
	s.True(apperrors.Is(s.store.State().Err, apperrors.KindNoUserContext))
}

func (s *TodoStoreTestSuite) TestFetch_RoundTripIsStable() {
	list := []models.Todo{s.stored("t-2", "newer"), s.stored("t-1", "older")}
	s.docs.On("ListTodos", mock.Anything, "u-1").Return(list, nil).Twice()

	first, err := s.store.Fetch(context.Background())
	s.Require().NoError(err)
	second, err := s.store.Fetch(context.Background())
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(list, s.store.State().Todos)
}

func (s *TodoStoreTestSuite) TestFetch_ReplacesCollection() {
	s.docs.On("AddTodo", mock.Anything, mock.Anything).Return(s.stored("local", "local one"), nil).Once()
	_, err := s.store.Create(context.Background(), models.TodoInput{Title: "local one"})
	s.Require().NoError(err)

	s.docs.On("ListTodos", mock.Anything, "u-1").Return([]models.Todo{s.stored("t-9", "remote")}, nil).Once()
	_, err = s.store.Fetch(context.Background())
	s.Require().NoError(err)

	state := s.store.State()
	s.Require().Len(state.Todos, 1)
	s.Equal("t-9", state.Todos[0].ID)
}

func (s *TodoStoreTestSuite) TestFetch_MissingIndexIsNotRetried() {
	s.docs.On("ListTodos", mock.Anything, "u-1").
		Return(nil, apperrors.New(apperrors.KindIndexBuilding)).Once()

	_, err := s.store.Fetch(context.Background())

	s.True(apperrors.Is(err, apperrors.KindIndexBuilding))
	s.Empty(s.clock.Sleeps())
	s.docs.AssertNumberOfCalls(s.T(), "ListTodos", 1)
}

func (s *TodoStoreTestSuite) TestFetch_TransientErrorsExhaustIntoFetchFailed() {
	s.docs.On("ListTodos", mock.Anything, "u-1").
		Return(nil, apperrors.New(apperrors.KindUnavailable))

	_, err := s.store.Fetch(context.Background())

	s.True(apperrors.Is(err, apperrors.KindFetchFailed))
	s.ErrorIs(err, apperrors.New(apperrors.KindUnavailable))
	s.docs.AssertNumberOfCalls(s.T(), "ListTodos", connectivity.DefaultMaxRetries)
	s.False(s.store.State().Loading)
}

func (s *TodoStoreTestSuite) TestUpdateStatus_MergesById() {
	s.docs.On("ListTodos", mock.Anything, "u-1").
		Return([]models.Todo{s.stored("t-2", "two"), s.stored("t-1", "one")}, nil).Once()
	_, err := s.store.Fetch(context.Background())
	s.Require().NoError(err)

	s.docs.On("UpdateTodo", mock.Anything, "t-1", mock.MatchedBy(func(p models.TodoPatch) bool {
		return p.Status == models.StatusCompleted
	})).Return(nil)

	s.Require().NoError(s.store.UpdateStatus(context.Background(), "t-1", models.StatusCompleted))
	s.Require().NoError(s.store.UpdateStatus(context.Background(), "t-1", models.StatusCompleted))

	state := s.store.State()
	s.Require().Len(state.Todos, 2)
	s.Equal(models.StatusPending, state.Todos[0].Status)
	s.Equal(models.StatusCompleted, state.Todos[1].Status)
	s.Equal("t-1", state.Todos[1].ID)
}

func (s *TodoStoreTestSuite) TestUpdateStatus_UnknownLocalIdIsNoop() {
	s.docs.On("UpdateTodo", mock.Anything, "ghost", mock.Anything).Return(nil).Once()

	err := s.store.UpdateStatus(context.Background(), "ghost", models.StatusInProgress)

	s.NoError(err)
	s.Empty(s.store.State().Todos)
}

func (s *TodoStoreTestSuite) TestUpdateStatus_Failure() {
	s.docs.On("UpdateTodo", mock.Anything, "t-1", mock.Anything).
		Return(apperrors.New(apperrors.KindNotFound)).Once()

	err := s.store.UpdateStatus(context.Background(), "t-1", models.StatusCompleted)

	s.True(apperrors.Is(err, apperrors.KindUpdateFailed))
	s.Equal(err, s.store.State().Err)
}

func (s *TodoStoreTestSuite) TestRemove_AfterCreate() {
	s.docs.On("AddTodo", mock.Anything, mock.Anything).Return(s.stored("t-1", "Buy milk"), nil).Once()
	s.docs.On("DeleteTodo", mock.Anything, "t-1").Return(nil).Once()

	created, err := s.store.Create(context.Background(), models.TodoInput{Title: "Buy milk"})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Remove(context.Background(), created.ID))

	_, found := s.store.Get(created.ID)
	s.False(found)
	s.Empty(s.store.State().Todos)
}

func (s *TodoStoreTestSuite) TestRemove_FailureKeepsRecord() {
	s.docs.On("AddTodo", mock.Anything, mock.Anything).Return(s.stored("t-1", "Buy milk"), nil).Once()
	s.docs.On("DeleteTodo", mock.Anything, "t-1").Return(errors.New("boom")).Once()

	_, err := s.store.Create(context.Background(), models.TodoInput{Title: "Buy milk"})
	s.Require().NoError(err)
	err = s.store.Remove(context.Background(), "t-1")

	s.True(apperrors.Is(err, apperrors.KindDeleteFailed))
	_, found := s.store.Get("t-1")
	s.True(found)
}

func (s *TodoStoreTestSuite) TestClear_IsLocalOnly() {
	s.docs.On("ListTodos", mock.Anything, "u-1").Return([]models.Todo{s.stored("t-1", "one")}, nil).Once()
	_, err := s.store.Fetch(context.Background())
	s.Require().NoError(err)

	s.store.Clear()

	s.Empty(s.store.State().Todos)
	s.docs.AssertNotCalled(s.T(), "DeleteTodo", mock.Anything, mock.Anything)
}

func (s *TodoStoreTestSuite) TestLoadingFlagAroundOperation() {
	var seen []bool
	unsub := s.store.Subscribe(func(st todos.State) { seen = append(seen, st.Loading) })
	defer unsub()

	s.docs.On("DeleteTodo", mock.Anything, "t-1").Return(apperrors.New(apperrors.KindPermissionDenied)).Once()
	_ = s.store.Remove(context.Background(), "t-1")

	s.Equal([]bool{true, false}, seen)
}

func TestTodoStoreTestSuite(t *testing.T) {
	suite.Run(t, new(TodoStoreTestSuite))
}

func TestConcurrentUpdatesOnSameIdLeaveOneOfTheStatuses(t *testing.T) {
	docs := new(MockDocuments)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	monitor := connectivity.New(docs, connectivity.WithClock(clock.NewFake(now)))
	store := todos.NewStore(docs, monitor, &fixedUser{id: "u-1"}, todos.WithClock(clock.NewFake(now)))

	docs.On("ListTodos", mock.Anything, "u-1").Return([]models.Todo{{ID: "t-1", UserID: "u-1", Title: "one", Status: models.StatusPending}}, nil).Once()
	_, err := store.Fetch(context.Background())
	require.NoError(t, err)

	docs.On("UpdateTodo", mock.Anything, "t-1", mock.Anything).Return(nil)

	var wg sync.WaitGroup
	for _, st := range []models.Status{models.StatusInProgress, models.StatusCompleted} {
		wg.Add(1)
		go func(st models.Status) {
			defer wg.Done()
			assert.NoError(t, store.UpdateStatus(context.Background(), "t-1", st))
		}(st)
	}
	wg.Wait()

	got, ok := store.Get("t-1")
	require.True(t, ok)
	assert.Contains(t, []models.Status{models.StatusInProgress, models.StatusCompleted}, got.Status)
	assert.False(t, store.State().Loading)
}
