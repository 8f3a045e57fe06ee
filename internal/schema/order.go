package schema

import "sort"

func orderWeight(p *Property) int {
	switch Classify(p) {
	case OneToOne:
		return 2
	case ManyToMany:
		return 1
	}
	return 0
}

// CompareOrder сравнивает свойства для вывода в форме: сначала колонки и простые
// связи, затем many-to-many, в конце one-to-one. При равенстве — порядок создания
// локальной колонки связи (или самого свойства).
func CompareOrder(a, b *Property, localNames map[string]string, creationOrder map[string]int) int {
	wa, wb := orderWeight(a), orderWeight(b)
	if wa != wb {
		if wa < wb {
			return -1
		}
		return 1
	}
	oa, ob := orderKey(a, localNames, creationOrder), orderKey(b, localNames, creationOrder)
	switch {
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	}
	return 0
}

func orderKey(p *Property, localNames map[string]string, creationOrder map[string]int) int {
	key := p.Key
	if name, ok := localNames[p.Key]; ok {
		key = name
	}
	if n, ok := creationOrder[key]; ok {
		return n
	}
	return p.CreationOrder
}

// SortProperties возвращает свойства сущности в порядке вывода. Сортировка стабильная.
func SortProperties(props []*Property) []*Property {
	localNames := map[string]string{}
	creationOrder := map[string]int{}
	for _, p := range props {
		if name, ok := LocalColumnName(p); ok {
			localNames[p.Key] = name
		}
		if p.Column != nil {
			creationOrder[p.Key] = p.CreationOrder
		}
	}
	out := append([]*Property(nil), props...)
	sort.SliceStable(out, func(i, j int) bool {
		return CompareOrder(out[i], out[j], localNames, creationOrder) < 0
	})
	return out
}
