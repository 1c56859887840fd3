package typesys

// CommonCatchType returns the most specific type which all the given types
// extend, used when several exception types share a single handler. It walks
// each superclass chain from the root down in lock-step and stops at the
// first level where the chains disagree.
func CommonCatchType(types []*Type) *Type {
	if len(types) == 0 {
		return nil
	}

	chains := make([][]*Type, len(types))
	minLen := -1
	for i, t := range types {
		var chain []*Type
		for x := t; x != nil; x = x.Super() {
			chain = append(chain, x)
		}
		chains[i] = chain
		if minLen < 0 || len(chain) < minLen {
			minLen = len(chain)
		}
	}

	var common *Type
	for pos := 1; pos <= minLen; pos++ {
		first := chains[0]
		level := first[len(first)-pos]
		for _, chain := range chains[1:] {
			if chain[len(chain)-pos] != level {
				return common
			}
		}
		common = level
	}
	return common
}
