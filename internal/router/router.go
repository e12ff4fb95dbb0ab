package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/taskflow/api/handler"
)

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Profile *apiHandler.ProfileHandler
	Task    *apiHandler.TaskHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Auth routes
	r.POST("/user/register", handlers.Auth.Register)
	r.POST("/user/login", handlers.Auth.Login)

	// Protected routes
	r.GET("/user/me", authMiddleware(handlers.Auth.Me))
	r.PUT("/user/profile", authMiddleware(handlers.Profile.UpdateProfile))

	r.GET("/tasks", authMiddleware(handlers.Task.GetTasks))
	r.GET("/tasks/completed", authMiddleware(handlers.Task.GetCompleted))
	r.GET("/tasks/stats", authMiddleware(handlers.Task.GetStats))
	r.POST("/tasks", authMiddleware(handlers.Task.CreateTask))
	r.PUT("/tasks/{id}", authMiddleware(handlers.Task.UpdateTask))
	r.PATCH("/tasks/{id}/toggle", authMiddleware(handlers.Task.ToggleTask))
	r.DELETE("/tasks/{id}", authMiddleware(handlers.Task.DeleteTask))

	return r
}
