package handler_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	apiHandler "github.com/fastygo/taskflow/api/handler"
	"github.com/fastygo/taskflow/api/transport"
	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/internal/middleware"
	"github.com/fastygo/taskflow/internal/router"
	"github.com/fastygo/taskflow/pkg/httpcontext"
	"github.com/fastygo/taskflow/pkg/token"
	"github.com/fastygo/taskflow/repository/memory"
	authUC "github.com/fastygo/taskflow/usecase/auth"
	profileUC "github.com/fastygo/taskflow/usecase/profile"
	"github.com/fastygo/taskflow/usecase/query"
	taskUC "github.com/fastygo/taskflow/usecase/task"
)

type response struct {
	status int
	env    transport.RawEnvelope
}

type server struct {
	t       *testing.T
	handler fasthttp.RequestHandler
}

func newServer(t *testing.T) *server {
	t.Helper()
	users := memory.NewUserRepository()
	tasks := memory.NewTaskRepository()
	tokens := token.NewManager("handler-test-secret", "taskflow", time.Hour)
	auth := authUC.New(users, memory.NewLoginAttemptRepository(), tokens, authUC.Config{
		BcryptCost:       bcrypt.MinCost,
		MaxLoginAttempts: 3,
	}, nil)
	adapter := httpcontext.NewAdapter(time.Second)

	r := router.New(router.Handlers{
		Auth:    apiHandler.NewAuthHandler(auth, adapter, nil),
		Profile: apiHandler.NewProfileHandler(profileUC.New(users, auth, nil, nil), adapter, nil),
		Task:    apiHandler.NewTaskHandler(taskUC.New(tasks, auth, nil, nil), adapter, nil),
		Health:  apiHandler.NewHealthHandler(nil, "memory", adapter, nil),
	}, middleware.BearerToken(nil))
	return &server{t: t, handler: r.Handler}
}

func (s *server) do(method, uri, bearer, body string) response {
	s.t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	s.handler(&ctx)

	res := response{status: ctx.Response.StatusCode()}
	if b := ctx.Response.Body(); len(b) > 0 {
		if err := json.Unmarshal(b, &res.env); err != nil {
			s.t.Fatalf("%s %s: invalid envelope %q: %v", method, uri, b, err)
		}
	}
	return res
}

func (s *server) login(email string) string {
	s.t.Helper()
	body := `{"email":"` + email + `","name":"Tester","password":"correct horse"}`
	if res := s.do("POST", "/user/register", "", body); res.status != http.StatusOK {
		s.t.Fatalf("register: status %d, %+v", res.status, res.env)
	}
	res := s.do("POST", "/user/login", "", `{"email":"`+email+`","password":"correct horse"}`)
	if res.status != http.StatusOK {
		s.t.Fatalf("login: status %d, %+v", res.status, res.env)
	}
	var session domain.Session
	decode(s.t, res, &session)
	return session.Token
}

func decode(t *testing.T, res response, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(res.env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", res.env.Data, err)
	}
}

func TestAuthRoutes(t *testing.T) {
	s := newServer(t)
	token := s.login("ann@example.com")

	t.Run("me", func(t *testing.T) {
		res := s.do("GET", "/user/me", token, "")
		var user domain.UserSummary
		decode(t, res, &user)
		if res.status != http.StatusOK || user.Email != "ann@example.com" {
			t.Errorf("unexpected %d %+v", res.status, user)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		res := s.do("POST", "/user/register", "", `{"email":"ANN@example.com","name":"Other","password":"correct horse"}`)
		if res.status != http.StatusBadRequest || res.env.Code != string(domain.ErrCodeDuplicateEmail) {
			t.Errorf("unexpected %d %+v", res.status, res.env)
		}
	})

	t.Run("field error meta", func(t *testing.T) {
		res := s.do("POST", "/user/register", "", `{"email":"nobody","name":"X","password":"correct horse"}`)
		if res.status != http.StatusBadRequest || res.env.Meta == nil || res.env.Meta.Field != "email" {
			t.Errorf("unexpected %d %+v", res.status, res.env)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		res := s.do("POST", "/user/login", "", `{"email":"ann@example.com","password":"wrong"}`)
		if res.status != http.StatusUnauthorized || res.env.Code != string(domain.ErrCodeInvalidCredentials) {
			t.Errorf("unexpected %d %+v", res.status, res.env)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		res := s.do("POST", "/user/login", "", `{`)
		if res.status != http.StatusBadRequest {
			t.Errorf("unexpected %d", res.status)
		}
	})

	t.Run("missing and bad bearer", func(t *testing.T) {
		for _, bearer := range []string{"", "garbage"} {
			res := s.do("GET", "/user/me", bearer, "")
			if res.status != http.StatusUnauthorized || res.env.Code != string(domain.ErrCodeUnauthorized) {
				t.Errorf("bearer %q: unexpected %d %+v", bearer, res.status, res.env)
			}
		}
	})

	t.Run("update profile", func(t *testing.T) {
		res := s.do("PUT", "/user/profile", token, `{"name":"Ann B"}`)
		var user domain.UserSummary
		decode(t, res, &user)
		if res.status != http.StatusOK || user.Name != "Ann B" {
			t.Errorf("unexpected %d %+v", res.status, user)
		}
	})
}

func TestTaskRoutes(t *testing.T) {
	s := newServer(t)
	ann := s.login("ann@example.com")
	bob := s.login("bob@example.com")

	res := s.do("POST", "/tasks", ann, `{"title":"Write report","priority":"HIGH","completed":"yes","subtasks":[{"title":"draft","completed":1}]}`)
	if res.status != http.StatusCreated {
		t.Fatalf("create: status %d, %+v", res.status, res.env)
	}
	var created domain.Task
	decode(t, res, &created)
	if created.Priority != domain.PriorityHigh || !created.Completed || len(created.Subtasks) != 1 || !created.Subtasks[0].Completed {
		t.Fatalf("unexpected task %+v", created)
	}

	t.Run("create rejects empty title", func(t *testing.T) {
		res := s.do("POST", "/tasks", ann, `{"title":"  "}`)
		if res.status != http.StatusBadRequest || res.env.Meta == nil || res.env.Meta.Field != "title" {
			t.Errorf("unexpected %d %+v", res.status, res.env)
		}
	})

	t.Run("create rejects bad completion", func(t *testing.T) {
		res := s.do("POST", "/tasks", ann, `{"title":"x","completed":"maybe"}`)
		if res.status != http.StatusBadRequest {
			t.Errorf("unexpected %d %+v", res.status, res.env)
		}
	})

	t.Run("foreign task is not found", func(t *testing.T) {
		for _, req := range []struct{ method, uri, body string }{
			{"PUT", "/tasks/" + created.ID, `{"title":"mine now"}`},
			{"PATCH", "/tasks/" + created.ID + "/toggle", ""},
			{"DELETE", "/tasks/" + created.ID, ""},
		} {
			res := s.do(req.method, req.uri, bob, req.body)
			if res.status != http.StatusNotFound {
				t.Errorf("%s %s: unexpected %d", req.method, req.uri, res.status)
			}
		}
		var tasks []domain.Task
		decode(t, s.do("GET", "/tasks", bob, ""), &tasks)
		if len(tasks) != 0 {
			t.Errorf("bob sees %d tasks", len(tasks))
		}
	})

	t.Run("update merges and clears due date", func(t *testing.T) {
		res := s.do("PUT", "/tasks/"+created.ID, ann, `{"due_date":"2026-11-02"}`)
		var task domain.Task
		decode(t, res, &task)
		if res.status != http.StatusOK || task.DueDate == nil || task.DueDate.String() != "2026-11-02" || task.Title != "Write report" {
			t.Fatalf("unexpected %d %+v", res.status, task)
		}
		res = s.do("PUT", "/tasks/"+created.ID, ann, `{"due_date":null}`)
		var cleared domain.Task
		decode(t, res, &cleared)
		if res.status != http.StatusOK || cleared.DueDate != nil || !cleared.Completed || cleared.Title != "Write report" {
			t.Errorf("unexpected %d %+v", res.status, cleared)
		}
	})

	t.Run("toggle", func(t *testing.T) {
		var task domain.Task
		decode(t, s.do("PATCH", "/tasks/"+created.ID+"/toggle", ann, ""), &task)
		if task.Completed {
			t.Error("toggle did not flip completion")
		}
		decode(t, s.do("PATCH", "/tasks/"+created.ID+"/toggle", ann, ""), &task)
		if !task.Completed {
			t.Error("second toggle did not restore completion")
		}
	})

	t.Run("views", func(t *testing.T) {
		s.do("POST", "/tasks", ann, `{"title":"Low one","priority":"low"}`)

		var low []domain.Task
		decode(t, s.do("GET", "/tasks?filter=low", ann, ""), &low)
		if len(low) != 1 || low[0].Title != "Low one" {
			t.Errorf("low filter: %+v", low)
		}

		var completed []domain.Task
		decode(t, s.do("GET", "/tasks/completed?sort=priority", ann, ""), &completed)
		if len(completed) != 1 || completed[0].ID != created.ID {
			t.Errorf("completed view: %+v", completed)
		}

		var stats query.Stats
		decode(t, s.do("GET", "/tasks/stats", ann, ""), &stats)
		if stats.Total != 2 || stats.Completed != 1 || stats.Pending != 1 || stats.HighPriority != 1 || stats.LowPriority != 1 {
			t.Errorf("stats: %+v", stats)
		}

		if res := s.do("GET", "/tasks?filter=someday", ann, ""); res.status != http.StatusBadRequest {
			t.Errorf("unknown filter: status %d", res.status)
		}
		if res := s.do("GET", "/tasks/completed?sort=random", ann, ""); res.status != http.StatusBadRequest {
			t.Errorf("unknown sort: status %d", res.status)
		}
	})

	t.Run("today filter honours the caller zone", func(t *testing.T) {
		loc, err := time.LoadLocation("Pacific/Kiritimati")
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
		today := time.Now().In(loc).Format("2006-01-02")
		s.do("POST", "/tasks", ann, `{"title":"Due today","due_date":"`+today+`"}`)

		var tasks []domain.Task
		decode(t, s.do("GET", "/tasks?filter=today&tz=Pacific/Kiritimati", ann, ""), &tasks)
		if len(tasks) != 1 || tasks[0].Title != "Due today" {
			t.Errorf("today filter: %+v", tasks)
		}

		res := s.do("GET", "/tasks?filter=today&tz=Mars/Olympus", ann, "")
		if res.status != http.StatusBadRequest || res.env.Meta == nil || res.env.Meta.Field != "tz" {
			t.Errorf("bad zone: %d %+v", res.status, res.env)
		}
	})

	t.Run("delete", func(t *testing.T) {
		res := s.do("DELETE", "/tasks/"+created.ID, ann, "")
		if res.status != http.StatusNoContent {
			t.Fatalf("delete: status %d", res.status)
		}
		if res := s.do("DELETE", "/tasks/"+created.ID, ann, ""); res.status != http.StatusNotFound {
			t.Errorf("second delete: status %d", res.status)
		}
	})
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	res := s.do("GET", "/health", "", "")
	if res.status != http.StatusOK || res.env.Status != transport.StatusSuccess {
		t.Errorf("unexpected %d %+v", res.status, res.env)
	}
	if !strings.Contains(string(res.env.Data), `"storage":"memory"`) {
		t.Errorf("storage driver missing from %s", res.env.Data)
	}
}

func TestStaleTokenBeatsInputErrors(t *testing.T) {
	s := newServer(t)
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := token.NewManager("handler-test-secret", "taskflow", time.Hour, token.WithClock(past)).Issue("ann")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tests := []struct {
		name, method, uri, body string
	}{
		{"bad filter", "GET", "/tasks?filter=someday", ""},
		{"bad tz", "GET", "/tasks?filter=today&tz=Mars/Olympus", ""},
		{"bad sort", "GET", "/tasks/completed?sort=random", ""},
		{"malformed create body", "POST", "/tasks", `{"title":`},
		{"invalid create fields", "POST", "/tasks", `{"title":"","priority":"urgent"}`},
		{"malformed update body", "PUT", "/tasks/any-id", `[`},
		{"malformed profile body", "PUT", "/user/profile", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.do(tt.method, tt.uri, expired, tt.body)
			if res.status != http.StatusUnauthorized || res.env.Code != string(domain.ErrCodeUnauthorized) {
				t.Errorf("got %d %+v, want 401", res.status, res.env)
			}
		})
	}
}
