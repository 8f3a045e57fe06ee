package schema

import "fmt"

// Kind — вид свойства сущности. Вычисляется один раз функцией Classify.
type Kind int

const (
	ColumnKind Kind = iota
	ManyToOne
	OneToMany
	OneToOne
	ManyToMany
)

func (k Kind) String() string {
	switch k {
	case ColumnKind:
		return "column"
	case ManyToOne:
		return "many-to-one"
	case OneToMany:
		return "one-to-many"
	case OneToOne:
		return "one-to-one"
	case ManyToMany:
		return "many-to-many"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsRelation сообщает, что свойство ссылается на другую сущность.
func (k Kind) IsRelation() bool { return k != ColumnKind }

// Direction — структурное направление связи (где лежит внешний ключ).
type Direction int

const (
	NoDirection Direction = iota
	// DirManyToOne: внешний ключ в таблице владельца.
	DirManyToOne
	// DirOneToMany: внешний ключ в таблице цели.
	DirOneToMany
	// DirManyToMany: через таблицу связей.
	DirManyToMany
)

func (d Direction) String() string {
	switch d {
	case DirManyToOne:
		return "MANYTOONE"
	case DirOneToMany:
		return "ONETOMANY"
	case DirManyToMany:
		return "MANYTOMANY"
	default:
		return "NONE"
	}
}

// ColumnType — тип хранения колонки.
type ColumnType string

const (
	String   ColumnType = "string"
	Text     ColumnType = "text"
	Int      ColumnType = "int"
	Float    ColumnType = "float"
	Bool     ColumnType = "bool"
	Date     ColumnType = "date"
	DateTime ColumnType = "datetime"
	Binary   ColumnType = "binary"
	UUID     ColumnType = "uuid"
)

// ParseColumnType распознаёт имя типа из DSL.
func ParseColumnType(s string) (ColumnType, bool) {
	switch ColumnType(s) {
	case String, Text, Int, Float, Bool, Date, DateTime, Binary, UUID:
		return ColumnType(s), true
	}
	switch s {
	case "integer", "bigint":
		return Int, true
	case "boolean":
		return Bool, true
	case "timestamp":
		return DateTime, true
	case "bytes", "blob":
		return Binary, true
	}
	return "", false
}
