package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/repository"
	"github.com/fastygo/taskflow/repository/memory"
	"github.com/fastygo/taskflow/usecase"
	"github.com/fastygo/taskflow/usecase/query"
)

// tokens maps bearer tokens to user IDs.
type tokens map[string]string

func (v tokens) Validate(_ context.Context, token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", domain.ErrUnauthorized
}

// countingRepo records whether the store was reached at all.
type countingRepo struct {
	repository.TaskRepository
	mu    sync.Mutex
	calls int
}

func (r *countingRepo) touch() {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *countingRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	r.touch()
	return r.TaskRepository.GetByID(ctx, id)
}

func (r *countingRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	r.touch()
	return r.TaskRepository.ListByOwner(ctx, ownerID)
}

func (r *countingRepo) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	r.touch()
	return r.TaskRepository.Create(ctx, task)
}

func newUseCase() (*UseCase, *countingRepo) {
	repo := &countingRepo{TaskRepository: memory.NewTaskRepository()}
	uc := New(repo, tokens{"tok-a": "alice", "tok-b": "bob"}, nil, nil)
	return uc, repo
}

func mustCreate(t *testing.T, uc *UseCase, token, title string, priority domain.Priority) *domain.Task {
	t.Helper()
	task, err := uc.CreateTask(context.Background(), token, CreateInput{Title: title, Priority: priority})
	if err != nil {
		t.Fatalf("CreateTask(%s) failed: %v", title, err)
	}
	return task
}

func TestUnauthorizedNeverReachesStore(t *testing.T) {
	ctx := context.Background()
	uc, repo := newUseCase()

	checks := map[string]func() error{
		"list":   func() error { _, err := uc.ListTasks(ctx, "bogus"); return err },
		"create": func() error { _, err := uc.CreateTask(ctx, "bogus", CreateInput{Title: "x"}); return err },
		"update": func() error { _, err := uc.UpdateTask(ctx, "bogus", "id", domain.TaskPatch{}); return err },
		"toggle": func() error { _, err := uc.ToggleTask(ctx, "bogus", "id"); return err },
		"delete": func() error { return uc.DeleteTask(ctx, "bogus", "id") },
		"stats":  func() error { _, err := uc.Stats(ctx, ""); return err },
	}
	for name, call := range checks {
		t.Run(name, func(t *testing.T) {
			if err := call(); !domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
				t.Errorf("expected UNAUTHORIZED, got %v", err)
			}
		})
	}
	if repo.calls != 0 {
		t.Errorf("store was called %d times for unauthorized requests", repo.calls)
	}
}

func TestCreateDefaults(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()

	task := mustCreate(t, uc, "tok-a", "  Write report  ", "")
	if task.ID == "" || task.CreatedAt.IsZero() {
		t.Errorf("expected id and creation time, got %+v", task)
	}
	if task.OwnerID != "alice" {
		t.Errorf("owner: got %s, want alice", task.OwnerID)
	}
	if task.Priority != domain.PriorityMedium {
		t.Errorf("priority: got %s, want medium", task.Priority)
	}
	if task.Title != "Write report" {
		t.Errorf("title: got %q", task.Title)
	}

	if _, err := uc.CreateTask(ctx, "tok-a", CreateInput{Title: "   "}); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Errorf("empty title: expected INVALID_INPUT, got %v", err)
	}
}

func TestForeignTasksAreInvisible(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()

	bobs := mustCreate(t, uc, "tok-b", "Bob's secret", domain.PriorityHigh)
	title := "hijacked"

	_, updErr := uc.UpdateTask(ctx, "tok-a", bobs.ID, domain.TaskPatch{Title: &title})
	_, togErr := uc.ToggleTask(ctx, "tok-a", bobs.ID)
	delErr := uc.DeleteTask(ctx, "tok-a", bobs.ID)
	_, missingErr := uc.ToggleTask(ctx, "tok-a", "does-not-exist")

	for name, err := range map[string]error{"update": updErr, "toggle": togErr, "delete": delErr, "missing": missingErr} {
		if err != domain.ErrTaskNotFound {
			t.Errorf("%s: expected ErrTaskNotFound, got %v", name, err)
		}
	}

	still, err := uc.ListTasks(ctx, "tok-b")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(still) != 1 || still[0].Title != "Bob's secret" || still[0].Completed {
		t.Errorf("bob's task was modified: %+v", still)
	}
}

func TestListIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()

	for i := 0; i < 25; i++ {
		token := "tok-a"
		if i%3 == 0 {
			token = "tok-b"
		}
		mustCreate(t, uc, token, fmt.Sprintf("task %d", i), domain.PriorityLow)
	}

	for token, owner := range map[string]string{"tok-a": "alice", "tok-b": "bob"} {
		tasks, err := uc.ListTasks(ctx, token)
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		for _, task := range tasks {
			if task.OwnerID != owner {
				t.Errorf("%s saw task owned by %s", owner, task.OwnerID)
			}
		}
	}
}

func TestToggleRoundTrip(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()
	task := mustCreate(t, uc, "tok-a", "flip me", domain.PriorityLow)

	once, err := uc.ToggleTask(ctx, "tok-a", task.ID)
	if err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}
	if once.Completed == task.Completed {
		t.Fatal("first toggle did not change completion")
	}
	twice, err := uc.ToggleTask(ctx, "tok-a", task.ID)
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if twice.Completed != task.Completed {
		t.Errorf("double toggle: got %v, want %v", twice.Completed, task.Completed)
	}
}

func TestUpdateMergesOnlyProvidedFields(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()
	task := mustCreate(t, uc, "tok-a", "original", domain.PriorityHigh)

	done := true
	if _, err := uc.UpdateTask(ctx, "tok-a", task.ID, domain.TaskPatch{Completed: &done}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	desc := "more detail"
	updated, err := uc.UpdateTask(ctx, "tok-a", task.ID, domain.TaskPatch{Description: &desc})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if !updated.Completed {
		t.Error("completion changed although it was omitted")
	}
	if updated.Title != "original" || updated.Priority != domain.PriorityHigh {
		t.Errorf("unrelated fields changed: %+v", updated)
	}
	if updated.Description != desc {
		t.Errorf("description: got %q", updated.Description)
	}

	// setting completion to its current value is not an error
	if _, err := uc.UpdateTask(ctx, "tok-a", task.ID, domain.TaskPatch{Completed: &done}); err != nil {
		t.Errorf("idempotent completion update failed: %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()
	task := mustCreate(t, uc, "tok-a", "temporary", domain.PriorityLow)

	if err := uc.DeleteTask(ctx, "tok-a", task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := uc.DeleteTask(ctx, "tok-a", task.ID); err != domain.ErrTaskNotFound {
		t.Errorf("second delete: expected ErrTaskNotFound, got %v", err)
	}
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()

	today := domain.DateOf(time.Now())
	report, err := uc.CreateTask(ctx, "tok-a", CreateInput{Title: "Write report", Priority: domain.PriorityHigh, DueDate: &today})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	low := mustCreate(t, uc, "tok-a", "Water plants", domain.PriorityLow)
	mustCreate(t, uc, "tok-b", "Not alice's", domain.PriorityHigh)

	todays, err := uc.FilterTasks(ctx, "tok-a", query.FilterToday, time.Now())
	if err != nil {
		t.Fatalf("FilterTasks failed: %v", err)
	}
	if len(todays) != 1 || todays[0].ID != report.ID {
		t.Errorf("today filter: got %+v", todays)
	}

	lows, _ := uc.FilterTasks(ctx, "tok-a", query.FilterLow, time.Now())
	if len(lows) != 1 || lows[0].ID != low.ID {
		t.Errorf("low filter: got %+v", lows)
	}

	for _, id := range []string{report.ID, low.ID} {
		if _, err := uc.ToggleTask(ctx, "tok-a", id); err != nil {
			t.Fatalf("ToggleTask failed: %v", err)
		}
	}
	completed, err := uc.CompletedTasks(ctx, "tok-a", query.SortPriority)
	if err != nil {
		t.Fatalf("CompletedTasks failed: %v", err)
	}
	if len(completed) != 2 || completed[0].ID != report.ID || completed[1].ID != low.ID {
		t.Errorf("priority sort: got %+v", completed)
	}

	stats, err := uc.Stats(ctx, "tok-a")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := query.Stats{Total: 2, LowPriority: 1, HighPriority: 1, Completed: 2}
	if stats != want {
		t.Errorf("stats: got %+v, want %+v", stats, want)
	}
}

var errDown = errors.New("connection refused")

type downRepo struct {
	repository.TaskRepository
}

func (downRepo) Create(context.Context, *domain.Task) (*domain.Task, error) { return nil, errDown }

func (downRepo) Update(context.Context, string, domain.TaskPatch) (*domain.Task, error) {
	return nil, errDown
}

func (downRepo) Delete(context.Context, string) error { return errDown }

// recordingBuffer records buffered operations. Tasks listed in queued report
// writes that could not be replayed yet.
type recordingBuffer struct {
	ops    []string
	queued map[string]bool
}

func (b *recordingBuffer) BufferProfile(context.Context, string, domain.ProfilePatch) error { return nil }

func (b *recordingBuffer) SettleProfile(context.Context, string) error { return nil }

func (b *recordingBuffer) SettleTask(_ context.Context, taskID string) error {
	if b.queued[taskID] {
		return errors.New("buffered writes still pending")
	}
	return nil
}

func (b *recordingBuffer) BufferTask(_ context.Context, operation string, op usecase.TaskOperation) error {
	b.ops = append(b.ops, operation+":"+op.TaskID)
	return nil
}

func TestWritesFallBackToBuffer(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTaskRepository()
	existing, err := store.Create(ctx, &domain.Task{OwnerID: "alice", Title: "kept"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	buf := &recordingBuffer{}
	uc := New(downRepo{TaskRepository: store}, tokens{"tok-a": "alice"}, buf, nil)

	created, err := uc.CreateTask(ctx, "tok-a", CreateInput{Title: "offline"})
	if err != nil {
		t.Fatalf("CreateTask should be buffered, got %v", err)
	}
	if created.ID == "" {
		t.Error("buffered task needs an identifier")
	}

	toggled, err := uc.ToggleTask(ctx, "tok-a", existing.ID)
	if err != nil {
		t.Fatalf("ToggleTask should be buffered, got %v", err)
	}
	if !toggled.Completed {
		t.Error("buffered toggle should report the merged state")
	}

	if err := uc.DeleteTask(ctx, "tok-a", existing.ID); err != nil {
		t.Fatalf("DeleteTask should be buffered, got %v", err)
	}

	want := []string{"create:" + created.ID, "update:" + existing.ID, "delete:" + existing.ID}
	if fmt.Sprint(buf.ops) != fmt.Sprint(want) {
		t.Errorf("buffered ops: got %v, want %v", buf.ops, want)
	}

	plain := New(downRepo{TaskRepository: store}, tokens{"tok-a": "alice"}, nil, nil)
	if _, err := plain.CreateTask(ctx, "tok-a", CreateInput{Title: "lost"}); !errors.Is(err, errDown) {
		t.Errorf("without a buffer the store error should surface, got %v", err)
	}
}

func TestWritesQueueBehindPendingOnes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTaskRepository()
	pending, err := store.Create(ctx, &domain.Task{OwnerID: "alice", Title: "v0"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	clean, err := store.Create(ctx, &domain.Task{OwnerID: "alice", Title: "clean"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	buf := &recordingBuffer{queued: map[string]bool{pending.ID: true}}
	uc := New(store, tokens{"tok-a": "alice"}, buf, nil)

	title := "second"
	got, err := uc.UpdateTask(ctx, "tok-a", pending.ID, domain.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if got.Title != "second" {
		t.Errorf("response should carry the merged state, got %q", got.Title)
	}
	if stored, _ := store.GetByID(ctx, pending.ID); stored.Title != "v0" {
		t.Errorf("write overtook the queue: stored title %q", stored.Title)
	}
	if err := uc.DeleteTask(ctx, "tok-a", pending.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := store.GetByID(ctx, pending.ID); err != nil {
		t.Errorf("delete should have been queued, got %v", err)
	}

	if _, err := uc.ToggleTask(ctx, "tok-a", clean.ID); err != nil {
		t.Fatalf("ToggleTask failed: %v", err)
	}
	if stored, _ := store.GetByID(ctx, clean.ID); !stored.Completed {
		t.Error("a task without queued writes should be written directly")
	}

	want := []string{"update:" + pending.ID, "delete:" + pending.ID}
	if fmt.Sprint(buf.ops) != fmt.Sprint(want) {
		t.Errorf("buffered ops: got %v, want %v", buf.ops, want)
	}
}

func TestConcurrentUpdatesKeepOneWrite(t *testing.T) {
	ctx := context.Background()
	uc, _ := newUseCase()
	task := mustCreate(t, uc, "tok-a", "contended", domain.PriorityMedium)

	titles := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		title := fmt.Sprintf("title-%02d", i)
		titles[title] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := uc.UpdateTask(ctx, "tok-a", task.ID, domain.TaskPatch{Title: &title}); err != nil {
				t.Errorf("UpdateTask failed: %v", err)
			}
		}()
	}
	wg.Wait()

	tasks, err := uc.ListTasks(ctx, "tok-a")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected exactly one task after concurrent updates, got %d", len(tasks))
	}
	if !titles[tasks[0].Title] {
		t.Errorf("final title %q is not one of the written titles", tasks[0].Title)
	}
	if tasks[0].Priority != domain.PriorityMedium {
		t.Errorf("untouched field changed: priority %q", tasks[0].Priority)
	}
}
