package oso

// OpKind enumerates the operations the batched generator knows about. The
// kind of every opcode is resolved once when the program is loaded.
type OpKind int

const (
	OpUnknown OpKind = iota

	// control flow
	OpNop
	OpEnd
	OpIf
	OpFor
	OpWhile
	OpDoWhile
	OpBreak
	OpContinue
	OpReturn
	OpExit
	OpFunctionCall
	OpFunctionCallNR
	OpUseParam

	// assignment and indexing
	OpAssign
	OpArrayCopy
	OpArrayLength
	OpAref
	OpAassign
	OpCompref
	OpCompassign
	OpMxCompref
	OpMxCompassign

	// arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpMin
	OpMax
	OpClamp
	OpMix
	OpSelect
	OpAnd
	OpOr
	OpBitAnd
	OpBitOr
	OpXor
	OpShl
	OpShr
	OpCompl

	// comparison
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe

	// construction and transforms
	OpColor
	OpPoint
	OpVector
	OpNormal
	OpMatrix
	OpGetMatrix
	OpTransform
	OpTransformV
	OpTransformN

	// derivatives
	OpDx
	OpDy
	OpDz
	OpFilterWidth
	OpArea
	OpCalculateNormal

	// formatted output
	OpPrintf
	OpFormat
	OpError
	OpWarning
	OpFprintf

	// noise
	OpNoise
	OpPNoise
	OpSNoise
	OpPSNoise
	OpCellNoise
	OpHashNoise

	// strings and queries
	OpRegexSearch
	OpRegexMatch
	OpSplit
	OpRaytype
	OpGetAttribute

	// library functions resolved through FuncSpec
	OpSinCos
	OpGeneric

	// recognised but not supported by the batched generator
	OpTexture
	OpTexture3D
	OpEnvironment
	OpTrace
	OpPointcloudSearch
	OpPointcloudGet
	OpPointcloudWrite
	OpDictFind
	OpDictNext
	OpDictValue
	OpGetMessage
	OpSetMessage
	OpClosure
	OpSpline
	OpBlackbody
	OpLuminance
	OpGetTextureInfo
	OpIsConstant
	OpTransformC

	NumOps
)

var opKinds = map[string]OpKind{
	"nop":               OpNop,
	"end":               OpEnd,
	"if":                OpIf,
	"for":               OpFor,
	"while":             OpWhile,
	"dowhile":           OpDoWhile,
	"break":             OpBreak,
	"continue":          OpContinue,
	"return":            OpReturn,
	"exit":              OpExit,
	"functioncall":      OpFunctionCall,
	"functioncall_nr":   OpFunctionCallNR,
	"useparam":          OpUseParam,
	"assign":            OpAssign,
	"arraycopy":         OpArrayCopy,
	"arraylength":       OpArrayLength,
	"aref":              OpAref,
	"aassign":           OpAassign,
	"compref":           OpCompref,
	"compassign":        OpCompassign,
	"mxcompref":         OpMxCompref,
	"mxcompassign":      OpMxCompassign,
	"add":               OpAdd,
	"sub":               OpSub,
	"mul":               OpMul,
	"div":               OpDiv,
	"mod":               OpMod,
	"neg":               OpNeg,
	"min":               OpMin,
	"max":               OpMax,
	"clamp":             OpClamp,
	"mix":               OpMix,
	"select":            OpSelect,
	"and":               OpAnd,
	"or":                OpOr,
	"bitand":            OpBitAnd,
	"bitor":             OpBitOr,
	"xor":               OpXor,
	"shl":               OpShl,
	"shr":               OpShr,
	"compl":             OpCompl,
	"eq":                OpEq,
	"neq":               OpNeq,
	"lt":                OpLt,
	"le":                OpLe,
	"gt":                OpGt,
	"ge":                OpGe,
	"color":             OpColor,
	"point":             OpPoint,
	"vector":            OpVector,
	"normal":            OpNormal,
	"matrix":            OpMatrix,
	"getmatrix":         OpGetMatrix,
	"transform":         OpTransform,
	"transformv":        OpTransformV,
	"transformn":        OpTransformN,
	"Dx":                OpDx,
	"Dy":                OpDy,
	"Dz":                OpDz,
	"filterwidth":       OpFilterWidth,
	"area":              OpArea,
	"calculatenormal":   OpCalculateNormal,
	"printf":            OpPrintf,
	"format":            OpFormat,
	"error":             OpError,
	"warning":           OpWarning,
	"fprintf":           OpFprintf,
	"noise":             OpNoise,
	"pnoise":            OpPNoise,
	"snoise":            OpSNoise,
	"psnoise":           OpPSNoise,
	"cellnoise":         OpCellNoise,
	"hashnoise":         OpHashNoise,
	"regex_search":      OpRegexSearch,
	"regex_match":       OpRegexMatch,
	"split":             OpSplit,
	"raytype":           OpRaytype,
	"getattribute":      OpGetAttribute,
	"sincos":            OpSinCos,
	"texture":           OpTexture,
	"texture3d":         OpTexture3D,
	"environment":       OpEnvironment,
	"trace":             OpTrace,
	"pointcloud_search": OpPointcloudSearch,
	"pointcloud_get":    OpPointcloudGet,
	"pointcloud_write":  OpPointcloudWrite,
	"dict_find":         OpDictFind,
	"dict_next":         OpDictNext,
	"dict_value":        OpDictValue,
	"getmessage":        OpGetMessage,
	"setmessage":        OpSetMessage,
	"closure":           OpClosure,
	"spline":            OpSpline,
	"splineinverse":     OpSpline,
	"blackbody":         OpBlackbody,
	"luminance":         OpLuminance,
	"gettextureinfo":    OpGetTextureInfo,
	"isconstant":        OpIsConstant,
	"transformc":        OpTransformC,
}

// genericOps are library functions with no custom code shape; they are
// called through their mangled FuncSpec name.
var genericOps = map[string]bool{
	"abs": true, "acos": true, "asin": true, "atan": true, "atan2": true,
	"cbrt": true, "ceil": true, "cos": true, "cosh": true, "cross": true,
	"degrees": true, "determinant": true, "distance": true, "dot": true,
	"erf": true, "erfc": true, "exp": true, "exp2": true, "expm1": true,
	"fabs": true, "floor": true, "fmod": true, "hypot": true,
	"inversesqrt": true, "isfinite": true, "isinf": true, "isnan": true,
	"length": true, "log": true, "log10": true, "log2": true, "logb": true,
	"normalize": true, "pow": true, "radians": true, "round": true,
	"sign": true, "sin": true, "sinh": true, "smoothstep": true,
	"sqrt": true, "step": true, "tan": true, "tanh": true,
	"transpose": true, "trunc": true,
}

// LookupOp resolves an operation name. Unknown names yield OpUnknown.
func LookupOp(name string) OpKind {
	if k, ok := opKinds[name]; ok {
		return k
	}
	if genericOps[name] {
		return OpGeneric
	}
	return OpUnknown
}

// IsGenericOp reports whether name is dispatched through the generic
// library-call path.
func IsGenericOp(name string) bool { return genericOps[name] }

// Opcode is one instruction of a layer's linear program. Args index into
// the owning Instance's Symbols; Jumps are op indices (-1 when unused).
type Opcode struct {
	Name         string
	Kind         OpKind
	Args         []int
	Jumps        [4]int
	SourceFile   string
	SourceLine   int
	AnalysisFlag bool
}

// NArgs returns the number of arguments.
func (op *Opcode) NArgs() int { return len(op.Args) }

// Jump returns jump target i, or -1.
func (op *Opcode) Jump(i int) int { return op.Jumps[i] }

// FarthestJump returns the largest jump target.
func (op *Opcode) FarthestJump() int {
	f := -1
	for _, j := range op.Jumps {
		if j > f {
			f = j
		}
	}
	return f
}
