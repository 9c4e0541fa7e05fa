package oso

// Connection routes an upstream layer's output symbol into a parameter of
// the layer that owns the connection.
type Connection struct {
	SrcLayer  int
	SrcSymbol int
	DstSymbol int
}

// Instance is one layer of a shader group: a shader's symbols and code
// specialised for this use.
type Instance struct {
	ShaderName string
	LayerName  string
	Symbols    []*Symbol
	Ops        []Opcode

	// main code range (init ops of parameters live outside it)
	MainBegin, MainEnd int

	// incoming connections
	Connections []Connection
}

// Symbol returns symbol i.
func (in *Instance) Symbol(i int) *Symbol { return in.Symbols[i] }

// OpArg returns argument i of op as a symbol.
func (in *Instance) OpArg(op *Opcode, i int) *Symbol {
	return in.Symbols[op.Args[i]]
}

// FindSymbol looks a symbol up by name.
func (in *Instance) FindSymbol(name string) (int, *Symbol) {
	for i, s := range in.Symbols {
		if s.Name == name {
			return i, s
		}
	}
	return -1, nil
}

// IncomingFor returns the connections feeding symbol index sym.
func (in *Instance) IncomingFor(sym int) []Connection {
	var out []Connection
	for _, c := range in.Connections {
		if c.DstSymbol == sym {
			out = append(out, c)
		}
	}
	return out
}

// Group is an ordered list of layers; the last layer is the entry layer.
type Group struct {
	Name   string
	Layers []*Instance
}

// FindLayer returns the index of the layer named name, or -1.
func (g *Group) FindLayer(name string) int {
	for i, l := range g.Layers {
		if l.LayerName == name {
			return i
		}
	}
	return -1
}

// DownstreamUses reports whether any later layer takes a connection from
// symbol sym of layer.
func (g *Group) DownstreamUses(layer, sym int) bool {
	for _, l := range g.Layers[layer+1:] {
		for _, c := range l.Connections {
			if c.SrcLayer == layer && c.SrcSymbol == sym {
				return true
			}
		}
	}
	return false
}
