package schema

import "fmt"

// ConfigError — ошибка конфигурации схемы или форм. Фатальна, адресована разработчику.
type ConfigError struct {
	Entity string
	Field  string
	Msg    string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Msg)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s", e.Entity, e.Msg)
	default:
		return e.Msg
	}
}

// Configf создаёт ConfigError без привязки к сущности.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

func configErr(entity, field, format string, args ...any) *ConfigError {
	return &ConfigError{Entity: entity, Field: field, Msg: fmt.Sprintf(format, args...)}
}
