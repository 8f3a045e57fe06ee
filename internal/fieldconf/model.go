package fieldconf

// Overlay — настройки полей одной сущности из YAML-файла.
type Overlay struct {
	Entity string                `yaml:"entity"`
	Fields map[string]FieldPatch `yaml:"fields"`
}

// FieldPatch — частичные настройки поля; незаданные ключи не меняются.
type FieldPatch struct {
	Viewable  *bool   `yaml:"viewable,omitempty"`
	Editable  *bool   `yaml:"editable,omitempty"`
	Widget    *string `yaml:"widget,omitempty"`
	Validator *string `yaml:"validator,omitempty"`
	Tab       *string `yaml:"tab,omitempty"`
}
