package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fastygo/taskflow/domain"
)

func TestTaskRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository()

	created, err := repo.Create(ctx, &domain.Task{OwnerID: "u1", Title: "first"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := repo.Create(ctx, &domain.Task{OwnerID: "u2", Title: "other"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := repo.Create(ctx, &domain.Task{OwnerID: "u1", Title: ""}); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Errorf("empty title: expected INVALID_INPUT, got %v", err)
	}

	t.Run("get returns copies", func(t *testing.T) {
		got, err := repo.GetByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		got.Title = "mutated"
		again, _ := repo.GetByID(ctx, created.ID)
		if again.Title != "first" {
			t.Error("stored task was mutated through a returned pointer")
		}
	})

	t.Run("list by owner", func(t *testing.T) {
		tasks, err := repo.ListByOwner(ctx, "u1")
		if err != nil {
			t.Fatalf("ListByOwner failed: %v", err)
		}
		if len(tasks) != 1 || tasks[0].ID != created.ID {
			t.Errorf("unexpected list %+v", tasks)
		}
		empty, _ := repo.ListByOwner(ctx, "nobody")
		if empty == nil || len(empty) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", empty)
		}
	})

	t.Run("update merges", func(t *testing.T) {
		done := true
		updated, err := repo.Update(ctx, created.ID, domain.TaskPatch{Completed: &done})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if !updated.Completed || updated.Title != "first" || !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("unexpected %+v", updated)
		}
		if _, err := repo.Update(ctx, "missing", domain.TaskPatch{}); err != domain.ErrTaskNotFound {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repo.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(ctx, created.ID); err != domain.ErrTaskNotFound {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
		if _, err := repo.GetByID(ctx, created.ID); err != domain.ErrTaskNotFound {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})
}

func TestTaskRepositoryConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository()
	task, err := repo.Create(ctx, &domain.Task{OwnerID: "u1", Title: "shared"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done := i%2 == 0
			if _, err := repo.Update(ctx, task.ID, domain.TaskPatch{Completed: &done}); err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := repo.GetByID(ctx, task.ID); err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	user := &domain.User{Email: "Eve@Example.com", Name: "Eve", PasswordHash: "h"}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == "" || user.Email != "eve@example.com" {
		t.Errorf("unexpected user %+v", user)
	}
	if err := repo.Create(ctx, &domain.User{Email: "eve@example.com"}); err != domain.ErrDuplicateEmail {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}

	found, err := repo.GetByEmail(ctx, " EVE@example.com")
	if err != nil || found.ID != user.ID {
		t.Fatalf("GetByEmail: %+v, %v", found, err)
	}

	name := "Eve Adams"
	updated, err := repo.UpdateProfile(ctx, user.ID, domain.ProfilePatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Name != name || updated.PasswordHash != "h" {
		t.Errorf("unexpected %+v", updated)
	}
	if _, err := repo.UpdateProfile(ctx, "missing", domain.ProfilePatch{}); err != domain.ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginAttemptWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	repo := &attemptRepository{entries: map[string]attemptWindow{}, now: func() time.Time { return now }}

	for i := 1; i <= 3; i++ {
		n, err := repo.Increment(ctx, "k", time.Minute)
		if err != nil || n != i {
			t.Fatalf("Increment #%d = %d, %v", i, n, err)
		}
	}
	if n, _ := repo.Count(ctx, "k"); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	now = now.Add(time.Minute)
	if n, _ := repo.Count(ctx, "k"); n != 0 {
		t.Errorf("Count after window: got %d, want 0", n)
	}

	_, _ = repo.Increment(ctx, "k", time.Minute)
	if err := repo.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n, _ := repo.Count(ctx, "k"); n != 0 {
		t.Errorf("Count after reset: got %d, want 0", n)
	}
}
