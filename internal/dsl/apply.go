package dsl

import (
	"fmt"
	"strings"

	"autoform/internal/schema"
)

// Apply объявляет сущности в реестре reg. Finalize не вызывается:
// поверх объявлений ещё могут лечь наложения настроек полей.
func Apply(reg *schema.Registry, ents []*Entity) error {
	for _, e := range ents {
		b := reg.Declare(e.Name).Module(e.Module)
		if e.Base != "" {
			b.Extends(e.Base)
		}
		if e.Table != "" {
			b.Table(e.Table)
		}
		for _, f := range e.Fields {
			if err := field(b, e, f); err != nil {
				return err
			}
		}
		for _, c := range e.Configs {
			opts, err := configOptions(e, c)
			if err != nil {
				return err
			}
			b.Configure(c.Name, opts...)
		}
	}
	return nil
}

var (
	columnOpts = set("pk", "required", "discriminator", "unique", "label")
	relOpts    = map[string]map[string]bool{
		"ref":  set("via", "backref", "single", "required"),
		"list": set("by", "backref", "single"),
		"many": set("through", "local", "remote", "backref"),
	}
	configKeys = set("viewable", "editable", "widget", "validator", "tab")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func errAt(e *Entity, f Field, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s.%s: %s", e.File, f.Line, e.Name, f.Name, fmt.Sprintf(format, args...))
}

func field(b *schema.EntityBuilder, e *Entity, f Field) error {
	var opts []schema.FieldOption
	cfg, err := configOptions(e, f)
	if err != nil {
		return err
	}
	if len(cfg) > 0 {
		opts = append(opts, schema.Configured(cfg...))
	}

	allowed, isRel := relOpts[f.Type]
	if !isRel {
		allowed = columnOpts
	}
	for k := range f.Options {
		if !allowed[k] && !configKeys[k] {
			return errAt(e, f, "unknown option %q", k)
		}
	}

	switch f.Type {
	case "ref":
		via := f.Options["via"]
		if via == "" {
			via = f.Name + "_id"
		}
		if f.Flag("required") {
			opts = append(opts, schema.NotNull())
		}
		if br := f.Options["backref"]; br != "" {
			opts = append(opts, schema.Backref(br, !f.Flag("single")))
		}
		b.ManyToOne(f.Name, f.Target, via, opts...)
	case "list":
		by := f.Options["by"]
		if by == "" {
			return errAt(e, f, "list relation requires by=<column>")
		}
		opts = append(opts, schema.UseList(!f.Flag("single")))
		if br := f.Options["backref"]; br != "" {
			opts = append(opts, schema.Backref(br, false))
		}
		b.OneToMany(f.Name, f.Target, by, opts...)
	case "many":
		jt := schema.JoinTable{Name: f.Options["through"], Local: f.Options["local"], Remote: f.Options["remote"]}
		if jt.Name == "" {
			return errAt(e, f, "many relation requires through=<table>")
		}
		if jt.Local == "" {
			jt.Local = strings.ToLower(e.Name) + "_id"
		}
		if jt.Remote == "" {
			jt.Remote = strings.ToLower(lastPart(f.Target)) + "_id"
		}
		if br := f.Options["backref"]; br != "" {
			opts = append(opts, schema.Backref(br, true))
		}
		b.ManyToMany(f.Name, f.Target, jt, opts...)
	default:
		typ, ok := schema.ParseColumnType(f.Type)
		if !ok {
			return errAt(e, f, "unknown type %q", f.Type)
		}
		if f.Flag("pk") {
			opts = append(opts, schema.PrimaryKey())
		}
		if f.Flag("required") {
			opts = append(opts, schema.NotNull())
		}
		if f.Flag("discriminator") {
			opts = append(opts, schema.Discriminator())
		}
		if f.Flag("unique") {
			opts = append(opts, schema.Unique())
		}
		if f.Flag("label") {
			b.Label(f.Name)
		}
		b.Column(f.Name, typ, opts...)
	}
	return nil
}

func lastPart(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// configOptions собирает настройки поля из опций viewable/editable/widget/validator/tab.
func configOptions(e *Entity, f Field) ([]schema.ConfigOption, error) {
	var out []schema.ConfigOption
	for _, k := range []string{"viewable", "editable", "widget", "validator", "tab"} {
		v, ok := f.Options[k]
		if !ok {
			continue
		}
		switch k {
		case "viewable", "editable":
			on, err := parseBool(v)
			if err != nil {
				return nil, errAt(e, f, "%s: %v", k, err)
			}
			if k == "viewable" {
				out = append(out, schema.Viewable(on))
			} else {
				out = append(out, schema.Editable(on))
			}
		case "widget":
			out = append(out, schema.Widget(v))
		case "validator":
			out = append(out, schema.Validator(v))
		case "tab":
			out = append(out, schema.Tab(v))
		}
	}
	for k := range f.Options {
		if f.Type == "" && !configKeys[k] {
			return nil, errAt(e, f, "unknown config option %q", k)
		}
	}
	return out, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
