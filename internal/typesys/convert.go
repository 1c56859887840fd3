package typesys

import "math"

// MaxCost is returned by ConversionCost when a conversion is disallowed.
const MaxCost = math.MaxInt32

// ConversionCost returns the cost of converting a value of type t to type to
// without losing information. Lower costs are preferred when choosing between
// overloads:
//
//	      0: equal types, or a reference to a supertype (no-op cast)
//	   1..4: primitive to wider primitive
//	      5: primitive to its own box, or a supertype of it such as Number
//	   6..9: primitive to a wider box
//	 10..14: box to a wider box (NPE isn't possible)
//	     15: unboxing to the same primitive (NPE is possible)
//	 16..19: unboxing to a wider primitive
//	MaxCost: disallowed
func (t *Type) ConversionCost(to *Type) int {
	if t == to {
		return 0
	}

	if t.IsPrimitive() {
		if to.IsPrimitive() {
			return primitiveCost(t.kind, to.kind)
		}
		if cost := t.boxingCost(to); cost != MaxCost {
			return cost + 5
		}
		return MaxCost
	}

	if to.IsObject() && to.IsAssignableFrom(t) {
		return 0
	}

	unboxed := t.Unbox()
	if unboxed == nil {
		return MaxCost
	}
	if to.IsPrimitive() {
		if cost := unboxed.ConversionCost(to); cost != MaxCost {
			return cost + 15
		}
		return MaxCost
	}
	if cost := unboxed.boxingCost(to); cost != MaxCost {
		return cost + 10
	}
	return MaxCost
}

// boxingCost returns the cheapest primitive conversion from t to a primitive
// whose box can be assigned to the reference type to. Choosing the cheapest
// box keeps conversion paths transitive: char converts to Number through
// Integer, even though Character isn't a Number.
//
// Every supertype of a box qualifies, not only Number and Object, so byte
// converts to Comparable and boolean to Serializable.
func (t *Type) boxingCost(to *Type) int {
	if t.kind == KindVoid || !to.IsObject() || to.IsNull() {
		return MaxCost
	}
	best := MaxCost
	for k := KindBoolean; k <= KindDouble; k++ {
		cost := 0
		if k != t.kind {
			cost = primitiveCost(t.kind, k)
		}
		if cost < best && to.IsAssignableFrom(t.reg.boxes[k]) {
			best = cost
		}
	}
	return best
}

func primitiveCost(from, to Kind) int {
	switch from {
	case KindByte:
		switch to {
		case KindShort, KindInt:
			return 0
		}
		return wideningCost(to)
	case KindChar, KindShort:
		if to == KindInt {
			return 0
		}
		return wideningCost(to)
	case KindInt:
		switch to {
		case KindLong:
			return 1 // I2L
		case KindDouble:
			return 3 // I2D
		}
	case KindFloat:
		if to == KindDouble {
			return 4 // F2D
		}
	}
	return MaxCost
}

func wideningCost(to Kind) int {
	switch to {
	case KindLong:
		return 1 // I2L
	case KindFloat:
		return 2 // I2F
	case KindDouble:
		return 3 // I2D
	}
	return MaxCost
}
