package state

import "strings"

// MaxRefHops bounds reference chains so malformed cycles terminate.
const MaxRefHops = 4

// Resolve follows {"__ref": key} markers through the index. Non-reference values are
// returned unchanged. A key missing from the index yields the original marker, which
// callers treat as no data.
func Resolve(n Node, idx Index) Node {
	current := n
	for hop := 0; hop < MaxRefHops; hop++ {
		key, ok := current.Ref()
		if !ok {
			return current
		}
		target, found := idx[key]
		if !found {
			return n
		}
		current = target
	}
	return current
}

// Lookup walks a dotted path from n, resolving references at every step.
// Any missing step yields Absent.
func Lookup(n Node, idx Index, path string) Node {
	current := Resolve(n, idx)
	for _, step := range strings.Split(path, ".") {
		if step == "" {
			continue
		}
		current = Resolve(current.Get(step), idx)
		if !current.present {
			return Absent()
		}
	}
	if _, isRef := current.Ref(); isRef {
		return Absent()
	}
	return current
}

// Value resolves and reduces n in one step.
func Value(n Node, idx Index) Node {
	resolved := Resolve(n, idx)
	if _, isRef := resolved.Ref(); isRef {
		return Absent()
	}
	return Reduce(resolved)
}
