package tracker

// ordered is an insertion-ordered map with insert-or-replace semantics.
type ordered[K comparable, V any] struct {
	index map[K]int
	items []V
}

func (o *ordered[K, V]) put(k K, v V) {
	if o.index == nil {
		o.index = make(map[K]int)
	}
	if i, ok := o.index[k]; ok {
		o.items[i] = v
		return
	}
	o.index[k] = len(o.items)
	o.items = append(o.items, v)
}

func (o *ordered[K, V]) get(k K) (V, bool) {
	i, ok := o.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return o.items[i], true
}

func (o *ordered[K, V]) has(k K) bool {
	_, ok := o.index[k]
	return ok
}

func (o *ordered[K, V]) values() []V {
	out := make([]V, len(o.items))
	copy(out, o.items)
	return out
}
