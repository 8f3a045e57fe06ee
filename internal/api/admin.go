package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autoform/internal/compose"
)

type reloadReq struct {
	DSLRoot  string `json:"dsl_root"`  // директория с *.dsl
	FormsDir string `json:"forms_dir"` // директория с наложениями настроек полей
}

func AdminReloadHandler(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		if app.Load == nil {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "reload is not configured"})
			return
		}

		dslRoot := strings.TrimSpace(req.DSLRoot)
		if dslRoot == "" {
			dslRoot = app.DSLRoot
		}
		formsDir := strings.TrimSpace(req.FormsDir)
		if formsDir == "" {
			formsDir = app.FormsDir
		}

		// 1) читаем новые объявления
		reg, err := app.Load(dslRoot, formsDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DSL load error", "details": err.Error()})
			return
		}

		// 2) линтер на новой схеме, текущая остаётся в работе
		if issues := Lint(reg, compose.NewKit()); len(issues) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    "schema has blocking issues",
				"issues":   issues,
				"hint":     "fix DSL and retry",
				"dslRoot":  dslRoot,
				"formsDir": formsDir,
			})
			return
		}
		if app.Prepare != nil {
			if err := app.Prepare(reg); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Schema apply error", "details": err.Error()})
				return
			}
		}

		// 3) атомарная замена
		app.Swap(reg)
		log.Printf("[admin] schema reloaded from %s (%d entities)", dslRoot, len(reg.Entities()))

		c.JSON(http.StatusOK, gin.H{
			"ok":       true,
			"dslRoot":  dslRoot,
			"formsDir": formsDir,
			"entities": len(reg.Entities()),
		})
	}
}
