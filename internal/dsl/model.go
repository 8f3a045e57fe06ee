package dsl

// Entity — объявление сущности из файла .dsl
type Entity struct {
	Name    string
	Module  string
	Base    string // extends
	Table   string
	Fields  []Field
	Configs []Field // строки "config name: ..." (только настройки, без поля)
	File    string
	Line    int
}

// Field — одно поле сущности
type Field struct {
	Name    string
	Type    string            // string, int, ..., ref, list, many
	Target  string            // для ref/list/many
	Options map[string]string // pk, required, via=..., widget=... и т.д.
	Line    int
}

// Flag — опция-флаг задана (pk, required, single ...).
func (f Field) Flag(name string) bool {
	v, ok := f.Options[name]
	return ok && v != "false"
}
