package schema

// FieldConfig — настройки поля для генерации виджетов.
// Widget и Validator — имена из реестров виджетов/валидаторов,
// разрешаются при построении формы.
type FieldConfig struct {
	Viewable  bool   `json:"viewable" yaml:"viewable"`
	Editable  bool   `json:"editable" yaml:"editable"`
	Widget    string `json:"widget,omitempty" yaml:"widget,omitempty"`
	Validator string `json:"validator,omitempty" yaml:"validator,omitempty"`
	Tab       string `json:"tab,omitempty" yaml:"tab,omitempty"`
}

func DefaultFieldConfig() FieldConfig {
	return FieldConfig{Viewable: true, Editable: true}
}

// ConfigOption меняет одну настройку FieldConfig.
type ConfigOption func(*FieldConfig)

func Viewable(v bool) ConfigOption       { return func(c *FieldConfig) { c.Viewable = v } }
func Editable(v bool) ConfigOption       { return func(c *FieldConfig) { c.Editable = v } }
func Widget(name string) ConfigOption    { return func(c *FieldConfig) { c.Widget = name } }
func Validator(name string) ConfigOption { return func(c *FieldConfig) { c.Validator = name } }
func Tab(name string) ConfigOption       { return func(c *FieldConfig) { c.Tab = name } }

// NewFieldConfig собирает конфиг из опций поверх значений по умолчанию.
func NewFieldConfig(opts ...ConfigOption) FieldConfig {
	c := DefaultFieldConfig()
	for _, o := range opts {
		o(&c)
	}
	return c
}

// ConfigMap — неизменяемая карта настроек полей сущности (после Finalize).
type ConfigMap map[string]FieldConfig

// Lookup возвращает конфиг поля или значения по умолчанию.
func (m ConfigMap) Lookup(key string) (FieldConfig, bool) {
	if c, ok := m[key]; ok {
		return c, true
	}
	return DefaultFieldConfig(), false
}

// HasTabs — есть ли хотя бы одно поле с вкладкой.
func (m ConfigMap) HasTabs() bool {
	for _, c := range m {
		if c.Tab != "" {
			return true
		}
	}
	return false
}

func (m ConfigMap) clone() ConfigMap {
	out := make(ConfigMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
