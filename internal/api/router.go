package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autoform/internal/orm"
	"autoform/internal/page"
	"autoform/internal/schema"
)

// NewRouter собирает маршруты приложения.
func NewRouter(app *App) *gin.Engine {
	r := gin.Default()
	r.Use(app.withState())

	r.GET("/api/meta", MetaListHandler())
	r.GET("/api/meta/:entity", MetaEntityHandler())
	r.GET("/api/lint", LintHandler())
	r.POST("/api/admin/reload", AdminReloadHandler(app))

	tx := page.Transactional(
		func() orm.Backend { return app.Backend },
		func(c *gin.Context) *schema.Registry { return stateFrom(c).Registry },
	)
	forms := r.Group("/forms", tx)
	{
		forms.GET("/:entity", FormHandler())
		forms.POST("/:entity", FormHandler())
	}
	r.GET("/lists/:entity", tx, ListHandler())

	return r
}

func RunServer(addr string, app *App) error {
	return NewRouter(app).Run(addr)
}

func FormHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := stateFrom(c)
		e, err := entityParam(c, st.Registry)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found", "details": err.Error()})
			return
		}
		fp, err := st.Form(e)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Form configuration error", "details": err.Error()})
			return
		}
		fp.Handle(c)
	}
}

func ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := stateFrom(c)
		e, err := entityParam(c, st.Registry)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found", "details": err.Error()})
			return
		}
		lp, err := st.List(e)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "List configuration error", "details": err.Error()})
			return
		}
		lp.Handle(c)
	}
}
