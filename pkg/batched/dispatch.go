package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// genFunc emits the code of one op. Ops that own nested code ranges
// generate those ranges themselves.
type genFunc func(x *context, op *oso.Opcode) error

var generators [oso.NumOps]genFunc

// filled in init: the control generators call back into dispatch
func init() {
	for k, g := range map[oso.OpKind]genFunc{
		oso.OpNop:            genNop,
		oso.OpEnd:            genNop,
		oso.OpIf:             genIf,
		oso.OpFor:            genLoop,
		oso.OpWhile:          genLoop,
		oso.OpDoWhile:        genLoop,
		oso.OpBreak:          genLoopMod,
		oso.OpContinue:       genLoopMod,
		oso.OpReturn:         genReturn,
		oso.OpExit:           genReturn,
		oso.OpFunctionCall:   genFunctionCall,
		oso.OpFunctionCallNR: genFunctionCallNR,
		oso.OpUseParam:       genUseParam,

		oso.OpAssign:       genAssign,
		oso.OpArrayCopy:    genAssign,
		oso.OpArrayLength:  genArrayLength,
		oso.OpAref:         genAref,
		oso.OpAassign:      genAassign,
		oso.OpCompref:      genCompref,
		oso.OpCompassign:   genCompassign,
		oso.OpMxCompref:    genMxCompref,
		oso.OpMxCompassign: genMxCompassign,

		oso.OpAdd:    genAddSub,
		oso.OpSub:    genAddSub,
		oso.OpMul:    genMul,
		oso.OpDiv:    genDiv,
		oso.OpMod:    genMod,
		oso.OpNeg:    genNeg,
		oso.OpMin:    genMinMax,
		oso.OpMax:    genMinMax,
		oso.OpClamp:  genClamp,
		oso.OpMix:    genMix,
		oso.OpSelect: genSelect,
		oso.OpAnd:    genLogical,
		oso.OpOr:     genLogical,
		oso.OpBitAnd: genBitwise,
		oso.OpBitOr:  genBitwise,
		oso.OpXor:    genBitwise,
		oso.OpShl:    genBitwise,
		oso.OpShr:    genBitwise,
		oso.OpCompl:  genCompl,

		oso.OpEq:  genCompare,
		oso.OpNeq: genCompare,
		oso.OpLt:  genCompare,
		oso.OpLe:  genCompare,
		oso.OpGt:  genCompare,
		oso.OpGe:  genCompare,

		oso.OpColor:      genConstructTriple,
		oso.OpPoint:      genConstructTriple,
		oso.OpVector:     genConstructTriple,
		oso.OpNormal:     genConstructTriple,
		oso.OpMatrix:     genMatrix,
		oso.OpGetMatrix:  genGetMatrix,
		oso.OpTransform:  genTransform,
		oso.OpTransformV: genTransform,
		oso.OpTransformN: genTransform,

		oso.OpDx:              genDeriv,
		oso.OpDy:              genDeriv,
		oso.OpDz:              genDz,
		oso.OpFilterWidth:     genFilterWidth,
		oso.OpArea:            genArea,
		oso.OpCalculateNormal: genCalculateNormal,

		oso.OpPrintf:  genPrintf,
		oso.OpError:   genPrintf,
		oso.OpWarning: genPrintf,
		oso.OpFprintf: genPrintf,
		oso.OpFormat:  genFormat,

		oso.OpNoise:     genNoise,
		oso.OpPNoise:    genNoise,
		oso.OpSNoise:    genNoise,
		oso.OpPSNoise:   genNoise,
		oso.OpCellNoise: genNoise,
		oso.OpHashNoise: genNoise,

		oso.OpRegexSearch:  genRegex,
		oso.OpRegexMatch:   genRegex,
		oso.OpSplit:        genSplit,
		oso.OpRaytype:      genRaytype,
		oso.OpGetAttribute: genGetAttribute,

		oso.OpSinCos:  genSinCos,
		oso.OpGeneric: genGeneric,
	} {
		generators[k] = g
	}
}

func dispatch(x *context, op *oso.Opcode) error {
	if op.Kind < 0 || op.Kind >= oso.NumOps {
		return fmt.Errorf("%w: %s", ErrNotImplemented, op.Name)
	}
	g := generators[op.Kind]
	if g == nil {
		return fmt.Errorf("%w: %s", ErrNotImplemented, op.Name)
	}
	return g(x, op)
}
