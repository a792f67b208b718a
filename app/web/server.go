package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

const sessionName = "tubedigest_session"

// NewServer builds the gin engine with session middleware, embedded
// templates, and all dashboard routes configured.
func NewServer(handler *Handler, sessionSecret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	funcs := template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}
	tmpl := template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html"))
	r.SetHTMLTemplate(tmpl)

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/health", handler.Health)

	r.GET("/login", handler.ShowLogin)
	r.POST("/login", handler.Login)
	r.GET("/register", handler.ShowRegister)
	r.POST("/register", handler.Register)
	r.POST("/logout", handler.Logout)

	authorized := r.Group("/")
	authorized.Use(requireAuth())
	{
		authorized.GET("/", handler.Dashboard)
		authorized.POST("/channels/add", handler.AddChannel)
		authorized.POST("/channels/delete", handler.DeleteChannel)
		authorized.POST("/generated/delete", handler.DeleteGenerated)
		authorized.POST("/run-now", handler.RunNow)
		authorized.POST("/generate-summaries", handler.GenerateSummaries)
		authorized.GET("/settings", handler.ShowSettings)
		authorized.POST("/settings", handler.UpdateSettings)
	}

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUserID(c); !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}
