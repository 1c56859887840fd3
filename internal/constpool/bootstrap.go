package constpool

import (
	"strconv"
	"strings"
)

// BootstrapMethod is one entry of the BootstrapMethods attribute: a method
// handle entry plus the indexes of its static arguments.
type BootstrapMethod struct {
	Handle int
	Args   []int
}

type bootstraps struct {
	methods []BootstrapMethod
	indexes map[string]int
}

// AddBootstrap returns the index of the bootstrap method with the given
// handle and static arguments, adding it when it is new.
func (p *Pool) AddBootstrap(handle int, args ...int) int {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(handle))
	for _, a := range args {
		sb.WriteByte(',')
		sb.WriteString(strconv.Itoa(a))
	}
	key := sb.String()

	b := &p.bootstraps
	if ix, ok := b.indexes[key]; ok {
		return ix
	}
	if b.indexes == nil {
		b.indexes = map[string]int{}
	}
	ix := len(b.methods)
	b.indexes[key] = ix
	b.methods = append(b.methods, BootstrapMethod{Handle: handle, Args: append([]int(nil), args...)})
	return ix
}

// Bootstraps returns the bootstrap methods in index order.
func (p *Pool) Bootstraps() []BootstrapMethod {
	return p.bootstraps.methods
}
