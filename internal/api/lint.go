package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"autoform/internal/compose"
	"autoform/internal/schema"
	"autoform/internal/widget"
)

type SchemaIssue struct {
	Entity  string `json:"entity"` // FQN: module.Entity
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Lint проверяет настройки полей против реестров виджетов и валидаторов kit
// и пробует построить форму и список каждой сущности.
func Lint(reg *schema.Registry, kit *compose.Kit) []SchemaIssue {
	var issues []SchemaIssue
	add := func(e *schema.Entity, field, code, format string, args ...any) {
		issues = append(issues, SchemaIssue{Entity: e.FQN(), Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	for _, e := range reg.Entities() {
		cfg := e.Config()
		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			c := cfg[k]
			p, ok := e.Property(k)
			if !ok {
				add(e, k, "config_unknown_field", "configuration for unknown field %q", k)
				continue
			}
			if c.Widget != "" && !kit.Widgets.Has(c.Widget) {
				add(e, k, "widget_unknown", "unknown widget %q", c.Widget)
			}
			if c.Validator != "" {
				if !kit.Validators.Has(c.Validator) {
					add(e, k, "validator_unknown", "unknown validator %q", c.Validator)
				}
				if p.Relation != nil {
					add(e, k, "validator_on_relation", "validator override is not supported for %s relation", schema.Classify(p))
				}
			}
			if c.Tab != "" && !c.Editable {
				add(e, k, "tab_not_editable", "tab %q is set on a field that is not editable", c.Tab)
			}
		}

		for _, kind := range []string{widget.TableForm, widget.Grid} {
			ctl, err := kit.Widgets.Build(kind, widget.Args{Entity: e})
			if err == nil {
				_, err = ctl.Kids()
			}
			if err != nil {
				code := "form_error"
				var ce *schema.ConfigError
				if errors.As(err, &ce) {
					code = "form_config"
				}
				add(e, "", code, "%s: %v", kind, err)
			}
		}
	}
	return issues
}

func LintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		issues := Lint(stateFrom(c).Registry, compose.NewKit())
		if issues == nil {
			issues = []SchemaIssue{}
		}
		c.JSON(http.StatusOK, gin.H{"issues": issues})
	}
}
