package oso

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownOp is returned for op names the generator does not recognise.
var ErrUnknownOp = errors.New("unknown op")

type yamlGroup struct {
	Group       string           `yaml:"group"`
	Layers      []yamlLayer      `yaml:"layers"`
	Connections []yamlConnection `yaml:"connections"`
}

type yamlLayer struct {
	Shader  string       `yaml:"shader"`
	Layer   string       `yaml:"layer"`
	Symbols []yamlSymbol `yaml:"symbols"`
	Code    []yamlOp     `yaml:"code"`
	Main    []int        `yaml:"main"`
}

type yamlSymbol struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Kind      string `yaml:"kind"`
	Uniform   *bool  `yaml:"uniform"`
	Derivs    bool   `yaml:"derivs"`
	Connected bool   `yaml:"connected"`
	Lazy      bool   `yaml:"lazy"`
	Init      []int  `yaml:"init"`
	Value     []any  `yaml:"value"`
}

type yamlOp struct {
	Op    string   `yaml:"op"`
	Args  []string `yaml:"args"`
	Jumps []int    `yaml:"jumps"`
	File  string   `yaml:"file"`
	Line  int      `yaml:"line"`
	Flag  bool     `yaml:"flag"`
}

type yamlEndpoint struct {
	Layer  string `yaml:"layer"`
	Symbol string `yaml:"symbol"`
}

type yamlConnection struct {
	Src yamlEndpoint `yaml:"src"`
	Dst yamlEndpoint `yaml:"dst"`
}

var symKinds = map[string]SymType{
	"param":  SymParam,
	"oparam": SymOutputParam,
	"output": SymOutputParam,
	"local":  SymLocal,
	"temp":   SymTemp,
	"global": SymGlobal,
	"const":  SymConst,
}

// LoadFile reads a shader group description from a YAML file.
func LoadFile(path string) (*Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a shader group description. Symbol references are resolved
// and every op's kind is looked up once here.
func Load(r io.Reader) (*Group, error) {
	var yg yamlGroup
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&yg); err != nil {
		return nil, fmt.Errorf("oso: %w", err)
	}
	return buildGroup(&yg)
}

// Parse decodes a shader group description held in memory.
func Parse(data []byte) (*Group, error) {
	return Load(bytes.NewReader(data))
}

func buildGroup(yg *yamlGroup) (*Group, error) {
	g := &Group{Name: yg.Group}
	if len(yg.Layers) == 0 {
		return nil, fmt.Errorf("oso: group %q has no layers", yg.Group)
	}
	for i := range yg.Layers {
		in, err := buildInstance(&yg.Layers[i])
		if err != nil {
			return nil, fmt.Errorf("oso: layer %q: %w", yg.Layers[i].Layer, err)
		}
		if in.LayerName == "" {
			in.LayerName = fmt.Sprintf("layer%d", i)
		}
		g.Layers = append(g.Layers, in)
	}
	for _, yc := range yg.Connections {
		if err := connect(g, yc); err != nil {
			return nil, fmt.Errorf("oso: connection %s.%s -> %s.%s: %w",
				yc.Src.Layer, yc.Src.Symbol, yc.Dst.Layer, yc.Dst.Symbol, err)
		}
	}
	return g, nil
}

func connect(g *Group, yc yamlConnection) error {
	src, dst := g.FindLayer(yc.Src.Layer), g.FindLayer(yc.Dst.Layer)
	if src < 0 || dst < 0 {
		return errors.New("unknown layer")
	}
	if src >= dst {
		return errors.New("source layer must precede destination layer")
	}
	si, ss := g.Layers[src].FindSymbol(yc.Src.Symbol)
	di, ds := g.Layers[dst].FindSymbol(yc.Dst.Symbol)
	if ss == nil || ds == nil {
		return errors.New("unknown symbol")
	}
	if ss.Type != ds.Type {
		return fmt.Errorf("type mismatch %s vs %s", ss.Type, ds.Type)
	}
	if !ds.IsParam() {
		return errors.New("destination is not a parameter")
	}
	ds.Connected = true
	g.Layers[dst].Connections = append(g.Layers[dst].Connections,
		Connection{SrcLayer: src, SrcSymbol: si, DstSymbol: di})
	return nil
}

func buildInstance(yl *yamlLayer) (*Instance, error) {
	in := &Instance{ShaderName: yl.Shader, LayerName: yl.Layer}
	names := make(map[string]int)
	for _, ys := range yl.Symbols {
		sym, err := buildSymbol(&ys)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", ys.Name, err)
		}
		if _, dup := names[sym.Name]; dup {
			return nil, fmt.Errorf("duplicate symbol %q", sym.Name)
		}
		names[sym.Name] = len(in.Symbols)
		in.Symbols = append(in.Symbols, sym)
	}
	for i, yo := range yl.Code {
		op := Opcode{
			Name:         yo.Op,
			Kind:         LookupOp(yo.Op),
			Jumps:        [4]int{-1, -1, -1, -1},
			SourceFile:   yo.File,
			SourceLine:   yo.Line,
			AnalysisFlag: yo.Flag,
		}
		if op.Kind == OpUnknown {
			return nil, fmt.Errorf("op %d: %w %q", i, ErrUnknownOp, yo.Op)
		}
		if len(yo.Jumps) > 4 {
			return nil, fmt.Errorf("op %d (%s): too many jump targets", i, yo.Op)
		}
		for j, t := range yo.Jumps {
			if t < 0 || t > len(yl.Code) {
				return nil, fmt.Errorf("op %d (%s): jump target %d out of range", i, yo.Op, t)
			}
			op.Jumps[j] = t
		}
		for _, a := range yo.Args {
			idx, ok := names[a]
			if !ok {
				return nil, fmt.Errorf("op %d (%s): unknown symbol %q", i, yo.Op, a)
			}
			op.Args = append(op.Args, idx)
		}
		in.Ops = append(in.Ops, op)
	}
	in.MainBegin, in.MainEnd = 0, len(in.Ops)
	if len(yl.Main) == 2 {
		in.MainBegin, in.MainEnd = yl.Main[0], yl.Main[1]
		if in.MainBegin < 0 || in.MainEnd > len(in.Ops) || in.MainBegin > in.MainEnd {
			return nil, fmt.Errorf("main range %v out of bounds", yl.Main)
		}
	}
	for _, s := range in.Symbols {
		if s.InitEnd > len(in.Ops) {
			return nil, fmt.Errorf("symbol %q: init range beyond code", s.Name)
		}
	}
	return in, nil
}

func buildSymbol(ys *yamlSymbol) (*Symbol, error) {
	t, err := ParseType(ys.Type)
	if err != nil {
		return nil, err
	}
	kind, ok := symKinds[ys.Kind]
	if !ok {
		if ys.Kind != "" {
			return nil, fmt.Errorf("unknown symbol kind %q", ys.Kind)
		}
		kind = SymLocal
	}
	s := &Symbol{
		Name:      ys.Name,
		Type:      t,
		SymType:   kind,
		HasDerivs: ys.Derivs,
		Connected: ys.Connected,
		Lazy:      ys.Lazy,
	}
	s.Uniform = kind == SymConst
	if ys.Uniform != nil {
		s.Uniform = *ys.Uniform
	}
	if kind == SymConst && !s.Uniform {
		return nil, errors.New("constants are always uniform")
	}
	if len(ys.Init) == 2 {
		s.InitBegin, s.InitEnd = ys.Init[0], ys.Init[1]
	}
	if err := setPayload(s, ys.Value); err != nil {
		return nil, err
	}
	return s, nil
}

func setPayload(s *Symbol, vals []any) error {
	for _, v := range vals {
		switch {
		case s.Type.Base == String:
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("value %v is not a string", v)
			}
			s.Strings = append(s.Strings, str)
		case s.Type.Base == Int:
			n, ok := v.(int)
			if !ok {
				return fmt.Errorf("value %v is not an int", v)
			}
			s.Ints = append(s.Ints, int32(n))
		case s.Type.IsFloatBased():
			switch n := v.(type) {
			case int:
				s.Floats = append(s.Floats, float32(n))
			case float64:
				s.Floats = append(s.Floats, float32(n))
			default:
				return fmt.Errorf("value %v is not a number", v)
			}
		default:
			return fmt.Errorf("type %s cannot carry a value", s.Type)
		}
	}
	// a single value initialises every component (e.g. color(1)); for a
	// matrix it is the diagonal
	if s.Type.IsMatrix() && len(vals) == 1 {
		d := s.Floats[0]
		s.Floats = make([]float32, 16)
		for i := 0; i < 4; i++ {
			s.Floats[i*5] = d
		}
		return nil
	}
	if n := s.Type.Components(); len(vals) == 1 && n > 1 {
		for i := 1; i < n; i++ {
			switch {
			case s.Floats != nil:
				s.Floats = append(s.Floats, s.Floats[0])
			case s.Ints != nil:
				s.Ints = append(s.Ints, s.Ints[0])
			case s.Strings != nil:
				s.Strings = append(s.Strings, s.Strings[0])
			}
		}
	}
	return nil
}
