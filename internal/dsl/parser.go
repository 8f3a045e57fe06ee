package dsl

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	entityRe = regexp.MustCompile(`^entity\s+(\w+)(?:\s+extends\s+([\w.]+))?(?:\s+table=([\w.]+))?\s*:$`)
	fieldRe  = regexp.MustCompile(`^([\w_]+):\s*([^\s#]+)(.*)$`)
	configRe = regexp.MustCompile(`^config\s+([\w_]+):(.*)$`)
	relRe    = regexp.MustCompile(`^(ref|list|many)\[([A-Za-z0-9_.]+)\]$`)
	moduleRe = regexp.MustCompile(`^module\s+([A-Za-z0-9_.-]+)$`)
)

// splitOptionTokens делит "k=v k2='v 2' flag" на токены, не разрывая кавычки.
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			buf = append(buf, r)
		case r == '"' && !inSingle:
			inDouble = !inDouble
			buf = append(buf, r)
		case (r == ' ' || r == '\t' || r == ',') && !inSingle && !inDouble:
			flush()
		default:
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

// stripComment срезает "# ..." вне кавычек.
func stripComment(s string) string {
	inSingle, inDouble := false, false
	for i, r := range s {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '#':
			if !inSingle && !inDouble {
				return s[:i]
			}
		}
	}
	return s
}

func parseOptions(raw string) map[string]string {
	opts := map[string]string{}
	for _, tok := range splitOptionTokens(strings.TrimSpace(raw)) {
		// флаг без значения → "true"
		if !strings.Contains(tok, "=") {
			opts[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		v := strings.TrimSpace(kv[1])
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		if k != "" {
			opts[k] = v
		}
	}
	return opts
}

// Parse читает объявления из r; name используется в сообщениях об ошибках.
func Parse(r io.Reader, name string) ([]*Entity, error) {
	var entities []*Entity
	var current *Entity
	module := ""
	n := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}

		if m := moduleRe.FindStringSubmatch(line); m != nil {
			module = m[1]
			continue
		}

		if m := entityRe.FindStringSubmatch(line); m != nil {
			current = &Entity{Name: m[1], Module: module, Base: m[2], Table: m[3], File: name, Line: n}
			entities = append(entities, current)
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("%s:%d: declaration outside of entity: %q", name, n, line)
		}

		if m := configRe.FindStringSubmatch(line); m != nil {
			current.Configs = append(current.Configs, Field{Name: m[1], Options: parseOptions(m[2]), Line: n})
			continue
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%s:%d: cannot parse %q", name, n, line)
		}
		f := Field{Name: m[1], Type: m[2], Options: parseOptions(m[3]), Line: n}
		if rm := relRe.FindStringSubmatch(f.Type); rm != nil {
			f.Type, f.Target = rm[1], rm[2]
		}
		current.Fields = append(current.Fields, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return entities, nil
}

// LoadEntities читает один файл .dsl
func LoadEntities(path string) ([]*Entity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file, path)
}

// LoadAllEntities обходит root и читает все *.dsl в лексикографическом порядке путей.
func LoadAllEntities(root string) ([]*Entity, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".dsl") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var result []*Entity
	seen := map[string]string{}
	for _, path := range paths {
		ents, err := LoadEntities(path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, e := range ents {
			fqn := e.Name
			if e.Module != "" {
				fqn = e.Module + "." + e.Name
			}
			if prev, exists := seen[fqn]; exists {
				return nil, fmt.Errorf("duplicate entity %q in module %q (files: %s, %s)", e.Name, e.Module, prev, path)
			}
			seen[fqn] = path
			result = append(result, e)
		}
	}
	return result, nil
}
