package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autoform/internal/schema"
)

// ===== META HANDLERS =====

type metaEntityListItem struct {
	Module string `json:"module"`
	Entity string `json:"entity"`
	Form   string `json:"form"`
	List   string `json:"list"`
}

func MetaListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ents := stateFrom(c).Registry.Entities()
		out := make([]metaEntityListItem, 0, len(ents))
		for _, e := range ents {
			out = append(out, metaEntityListItem{Module: e.Module, Entity: e.Name, Form: FormPath(e), List: ListPath(e)})
		}
		c.JSON(http.StatusOK, out)
	}
}

type metaField struct {
	Name     string              `json:"name"`
	Kind     string              `json:"kind"`
	Type     string              `json:"type,omitempty"`
	Ref      string              `json:"ref,omitempty"`
	RefFQN   string              `json:"refFQN,omitempty"`
	Reverse  string              `json:"reverse,omitempty"`
	Required bool                `json:"required"`
	PK       bool                `json:"pk,omitempty"`
	Config   *schema.FieldConfig `json:"config,omitempty"`
}

type metaEntity struct {
	Module string      `json:"module"`
	Entity string      `json:"entity"`
	Base   string      `json:"base,omitempty"`
	Table  string      `json:"table"`
	Label  string      `json:"label,omitempty"`
	Fields []metaField `json:"fields"`
}

func describeEntity(e *schema.Entity) metaEntity {
	props := schema.SortProperties(e.Properties())
	fields := make([]metaField, 0, len(props))
	for _, p := range props {
		f := metaField{
			Name:     p.Key,
			Kind:     schema.Classify(p).String(),
			Required: schema.IsRequired(p),
			PK:       p.IsPrimaryKey(),
		}
		if p.Column != nil {
			f.Type = string(p.Column.Type)
		}
		if t := p.Target(); t != nil {
			f.Ref = t.Name
			f.RefFQN = t.FQN()
			if rk, ok := schema.ReverseKey(p); ok {
				f.Reverse = rk
			}
		}
		if cfg, ok := e.Config().Lookup(p.Key); ok {
			f.Config = &cfg
		}
		fields = append(fields, f)
	}
	return metaEntity{
		Module: e.Module,
		Entity: e.Name,
		Base:   e.Base,
		Table:  e.Table,
		Label:  e.LabelColumn,
		Fields: fields,
	}
}

func MetaEntityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := entityParam(c, stateFrom(c).Registry)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entity not found"})
			return
		}
		c.JSON(http.StatusOK, describeEntity(e))
	}
}
