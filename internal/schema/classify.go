package schema

import "fmt"

// Classify определяет вид свойства. One-to-one проверяется первым:
// это либо one-to-many без списка, либо many-to-one, чья единственная
// обратная сторона одиночная.
func Classify(p *Property) Kind {
	if p.Relation == nil {
		return ColumnKind
	}
	if isOneToOne(p) {
		return OneToOne
	}
	switch p.Relation.Direction {
	case DirManyToOne:
		return ManyToOne
	case DirOneToMany:
		return OneToMany
	default:
		return ManyToMany
	}
}

func isOneToOne(p *Property) bool {
	rel := p.Relation
	switch rel.Direction {
	case DirOneToMany:
		return !rel.UseList
	case DirManyToOne:
		rev := mustSingleReverse(p)
		return rev != nil && !rev.Relation.UseList
	}
	return false
}

func mustSingleReverse(p *Property) *Property {
	switch len(p.Relation.reverse) {
	case 0:
		return nil
	case 1:
		return p.Relation.reverse[0]
	default:
		// Finalize отклоняет такие схемы; сюда попадаем только при нарушении инварианта
		panic(fmt.Sprintf("schema: %s.%s has %d reverse properties", p.owner.Name, p.Key, len(p.Relation.reverse)))
	}
}

// ReverseKey — имя обратного свойства на цели, если оно ровно одно.
func ReverseKey(p *Property) (string, bool) {
	if p.Relation == nil {
		return "", false
	}
	rev := mustSingleReverse(p)
	if rev == nil {
		return "", false
	}
	return rev.Key, true
}

// LocalColumnName — теневая колонка внешнего ключа для many-to-one и one-to-one.
// Для one-to-one со стороны без внешнего ключа это первичный ключ владельца.
func LocalColumnName(p *Property) (string, bool) {
	switch Classify(p) {
	case ManyToOne, OneToOne:
		name := p.LocalSide()
		return name, name != ""
	}
	return "", false
}

// IsRequired: колонка обязательна, если NOT NULL; many-to-one и one-to-one —
// если NOT NULL их локальная колонка; коллекции никогда не обязательны.
func IsRequired(p *Property) bool {
	switch Classify(p) {
	case ColumnKind:
		return !p.Column.Nullable
	case ManyToOne, OneToOne:
		name, ok := LocalColumnName(p)
		if !ok || p.owner == nil {
			return false
		}
		col, ok := p.owner.byKey[name]
		if !ok || col.Column == nil {
			return false
		}
		return !col.Column.Nullable
	default:
		return false
	}
}
