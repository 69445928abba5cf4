package app

import (
	"time"

	"kaaj/internal/handlers"
	"kaaj/internal/middleware"
	"kaaj/internal/services"

	"github.com/gin-gonic/gin"
)

const eventsKeepAlive = 25 * time.Second

func (a *App) setup(r *gin.Engine) {
	r.GET("/health", a.monitor.HealthHandler())
	r.GET("/ready", a.monitor.ReadinessHandler())
	r.GET("/live", a.monitor.LivenessHandler())
	r.GET("/metrics", a.monitor.MetricsHandler())

	authSvc, tokens, events, todoSvc, profileSvc := a.services()

	api := r.Group("/v1")
	registerAuthRoutes(api, authSvc)

	protected := api.Group("", middleware.Authenticate(tokens))
	registerAccountRoutes(protected,
		handlers.NewAuthHandler(authSvc),
		handlers.NewVerificationHandler(authSvc),
		handlers.NewEventsHandler(events, eventsKeepAlive),
	)
	registerTodoRoutes(protected, handlers.NewTodoHandler(todoSvc))
	registerProfileRoutes(protected, handlers.NewProfileHandler(profileSvc))
}

func registerAuthRoutes(api *gin.RouterGroup, authSvc services.AuthService) {
	register := handlers.NewRegisterHandler(authSvc)
	auth := handlers.NewAuthHandler(authSvc)
	refresh := handlers.NewRefreshHandler(authSvc)
	logout := handlers.NewLogoutHandler(authSvc)
	verify := handlers.NewVerificationHandler(authSvc)

	api.POST("/auth/signup", register.SignUp)
	api.POST("/auth/signin", auth.SignIn)
	api.POST("/auth/refresh", refresh.Refresh)
	api.POST("/auth/signout", logout.SignOut)
	api.GET("/auth/verify", verify.Verify)
	api.POST("/auth/verify", verify.Verify)
}

func registerAccountRoutes(api *gin.RouterGroup, h *handlers.AuthHandler, v *handlers.VerificationHandler, e *handlers.EventsHandler) {
	api.GET("/auth/me", h.Me)
	api.PATCH("/auth/profile", h.UpdateProfile)
	api.POST("/auth/reauthenticate", h.Reauthenticate)
	api.PUT("/auth/password", h.UpdatePassword)
	api.POST("/auth/verification", v.Send)
	api.GET("/auth/events", e.Stream)
}

func registerTodoRoutes(api *gin.RouterGroup, h *handlers.TodoHandler) {
	api.GET("/todos", h.List)
	api.POST("/todos", h.Create)
	api.GET("/todos/:id", h.Get)
	api.PATCH("/todos/:id", h.Update)
	api.DELETE("/todos/:id", h.Delete)
}

func registerProfileRoutes(api *gin.RouterGroup, h *handlers.ProfileHandler) {
	api.GET("/profiles/:uid", h.Get)
	api.PATCH("/profiles/:uid", h.Merge)
}
