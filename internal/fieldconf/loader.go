// Package fieldconf читает наложения настроек полей из YAML и применяет их к реестру схемы.
package fieldconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"autoform/internal/schema"
)

// LoadDir читает все *.yaml / *.yml из dir. Имя сущности — из поля entity
// или из имени файла. Отсутствующая папка — не ошибка.
func LoadDir(dir string) ([]Overlay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Overlay
	for _, file := range entries {
		name := file.Name()
		if file.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var ov Overlay
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&ov); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if ov.Entity == "" {
			ov.Entity = strings.TrimSuffix(name, filepath.Ext(name))
		}
		out = append(out, ov)
	}
	return out, nil
}

// Options переводит патч в опции конфига.
func (p FieldPatch) Options() []schema.ConfigOption {
	var opts []schema.ConfigOption
	if p.Viewable != nil {
		opts = append(opts, schema.Viewable(*p.Viewable))
	}
	if p.Editable != nil {
		opts = append(opts, schema.Editable(*p.Editable))
	}
	if p.Widget != nil {
		opts = append(opts, schema.Widget(*p.Widget))
	}
	if p.Validator != nil {
		opts = append(opts, schema.Validator(*p.Validator))
	}
	if p.Tab != nil {
		opts = append(opts, schema.Tab(*p.Tab))
	}
	return opts
}

// Apply накладывает overlays на объявленные, но ещё не финализированные сущности.
func Apply(reg *schema.Registry, overlays []Overlay) error {
	for _, ov := range overlays {
		keys := make([]string, 0, len(ov.Fields))
		for k := range ov.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := reg.Overlay(ov.Entity, k, ov.Fields[k].Options()...); err != nil {
				return err
			}
		}
	}
	return nil
}
