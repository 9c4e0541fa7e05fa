package batched

import (
	"fmt"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
	"github.com/AlexMWells/OpenShadingLanguage/pkg/wir"
)

func genAssign(x *context, op *oso.Opcode) error {
	R, A := x.arg(op, 0), x.arg(op, 1)
	if err := checkResult(R, A.Uniform); err != nil {
		return err
	}
	if R.Type.IsClosure() != A.Type.IsClosure() {
		return fmt.Errorf("%w: assign %s to %s", ErrContract, A.Type, R.Type)
	}
	x.copySymbol(R, A)
	return nil
}

func genArrayLength(x *context, op *oso.Opcode) error {
	R, A := x.arg(op, 0), x.arg(op, 1)
	if !A.Type.IsArray() {
		return fmt.Errorf("%w: arraylength of %s", ErrContract, A.Type)
	}
	x.store(R, 0, 0, x.b.ConstInt(int32(A.Type.NumElements())))
	return nil
}

// channelsFrom is how many channels move from src to dst.
func (x *context) channelsFrom(dst, src *oso.Symbol) int {
	if x.hasDerivs(dst) && x.hasDerivs(src) {
		return 3
	}
	return 1
}

// storeMask is the mask of a store into st: stores into uniform storage
// are unmasked.
func (x *context) storeMask(st storage) wir.Value {
	if st.wide {
		return x.eng.CurrentMask()
	}
	return wir.NoValue
}

// sameWidth widens a and b when either is wide.
func (x *context) sameWidth(a, b wir.Value) (wir.Value, wir.Value) {
	if x.b.TypeOf(a).Wide || x.b.TypeOf(b).Wide {
		return x.b.Widen(a), x.b.Widen(b)
	}
	return a, b
}

// loadElement reads component j of channel d at element idx of arr,
// elements being stride components apart.
func (x *context) loadElement(arr *oso.Symbol, idx wir.Value, stride, d, j int) wir.Value {
	st := x.storageOf(arr)
	return x.b.LoadIndexed(st.slot, st.offset(d, j), idx, stride)
}

// storeElement writes component j of channel d at element idx of arr.
func (x *context) storeElement(arr *oso.Symbol, idx wir.Value, stride, d, j int, v wir.Value) {
	st := x.storageOf(arr)
	if x.b.TypeOf(v).Wide && !st.wide {
		x.fail("varying value stored into uniform %s", arr.Name)
	}
	v = x.convert(v, st.elem, st.wide)
	x.b.StoreIndexed(st.slot, st.offset(d, j), idx, stride, v, x.storeMask(st))
}

// genAref is R = A[I].
func genAref(x *context, op *oso.Opcode) error {
	R, A, I := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	if !A.Type.IsArray() {
		return fmt.Errorf("%w: aref of %s", ErrContract, A.Type)
	}
	if err := checkResult(R, A.Uniform && I.Uniform); err != nil {
		return err
	}
	idx, err := x.index(I, A.Type.NumElements(), A)
	if err != nil {
		return err
	}
	agg := A.Type.Aggregate()
	channels := x.channelsFrom(R, A)
	for d := 0; d < channels; d++ {
		for j := 0; j < agg; j++ {
			x.store(R, d, j, x.loadElement(A, idx, agg, d, j))
		}
	}
	if channels == 1 {
		x.zeroDerivs(R)
	}
	return nil
}

// genAassign is A[I] = V.
func genAassign(x *context, op *oso.Opcode) error {
	A, I, V := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	if !A.Type.IsArray() {
		return fmt.Errorf("%w: aassign to %s", ErrContract, A.Type)
	}
	if err := checkResult(A, I.Uniform && V.Uniform); err != nil {
		return err
	}
	idx, err := x.index(I, A.Type.NumElements(), A)
	if err != nil {
		return err
	}
	agg := A.Type.Aggregate()
	st := x.storageOf(A)
	for d := 0; d < st.channels(); d++ {
		for j := 0; j < agg; j++ {
			x.storeElement(A, idx, agg, d, j, x.load(V, d, j))
		}
	}
	return nil
}

// loadComponent reads component idx of channel d of a triple or matrix
// of n components. A varying index selects among all the components.
func (x *context) loadComponent(sym *oso.Symbol, idx wir.Value, n, d int) wir.Value {
	b := x.b
	if !b.TypeOf(idx).Wide {
		return x.loadElement(sym, idx, 1, d, 0)
	}
	v := b.Widen(x.load(sym, d, 0))
	for k := 1; k < n; k++ {
		hit := b.Cmp(wir.Eq, idx, b.WideInt(int32(k)))
		v = b.Select(hit, b.Widen(x.load(sym, d, k)), v)
	}
	return v
}

// storeComponent writes component idx of channel d. A varying index
// stores every component under the lanes whose index names it.
func (x *context) storeComponent(sym *oso.Symbol, idx wir.Value, n, d int, v wir.Value) {
	b := x.b
	if !b.TypeOf(idx).Wide {
		x.storeElement(sym, idx, 1, d, 0, v)
		return
	}
	st := x.storageOf(sym)
	if !st.wide {
		x.fail("varying index into uniform %s", sym.Name)
	}
	v = x.convert(v, st.elem, true)
	mask := x.eng.CurrentMask()
	for k := 0; k < n; k++ {
		hit := b.And(mask, b.Cmp(wir.Eq, idx, b.WideInt(int32(k))))
		b.StoreMasked(st.slot, st.offset(d, k), v, hit)
	}
}

// genCompref is R = A[I] for a component of a triple.
func genCompref(x *context, op *oso.Opcode) error {
	R, A, I := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	if !A.Type.IsTriple() {
		return fmt.Errorf("%w: compref of %s", ErrContract, A.Type)
	}
	if err := checkResult(R, A.Uniform && I.Uniform); err != nil {
		return err
	}
	idx, err := x.index(I, 3, A)
	if err != nil {
		return err
	}
	channels := x.channelsFrom(R, A)
	for d := 0; d < channels; d++ {
		x.store(R, d, 0, x.loadComponent(A, idx, 3, d))
	}
	if channels == 1 {
		x.zeroDerivs(R)
	}
	return nil
}

// genCompassign is A[I] = V for a component of a triple.
func genCompassign(x *context, op *oso.Opcode) error {
	A, I, V := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2)
	if !A.Type.IsTriple() {
		return fmt.Errorf("%w: compassign to %s", ErrContract, A.Type)
	}
	if err := checkResult(A, I.Uniform && V.Uniform); err != nil {
		return err
	}
	idx, err := x.index(I, 3, A)
	if err != nil {
		return err
	}
	st := x.storageOf(A)
	for d := 0; d < st.channels(); d++ {
		x.storeComponent(A, idx, 3, d, x.load(V, d, 0))
	}
	return nil
}

// matrixIndex is row*4 + col, both range checked.
func (x *context) matrixIndex(M, row, col *oso.Symbol) (wir.Value, error) {
	r, err := x.index(row, 4, M)
	if err != nil {
		return wir.NoValue, err
	}
	c, err := x.index(col, 4, M)
	if err != nil {
		return wir.NoValue, err
	}
	r, c = x.sameWidth(r, c)
	four := x.b.ConstInt(4)
	if x.b.TypeOf(r).Wide {
		four = x.b.Broadcast(four)
	}
	return x.b.Add(x.b.Mul(r, four), c), nil
}

// genMxCompref is R = M[row][col].
func genMxCompref(x *context, op *oso.Opcode) error {
	R, M, Row, Col := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2), x.arg(op, 3)
	if !M.Type.IsMatrix() {
		return fmt.Errorf("%w: mxcompref of %s", ErrContract, M.Type)
	}
	if err := checkResult(R, M.Uniform && Row.Uniform && Col.Uniform); err != nil {
		return err
	}
	idx, err := x.matrixIndex(M, Row, Col)
	if err != nil {
		return err
	}
	x.store(R, 0, 0, x.loadComponent(M, idx, 16, 0))
	x.zeroDerivs(R)
	return nil
}

// genMxCompassign is M[row][col] = V.
func genMxCompassign(x *context, op *oso.Opcode) error {
	M, Row, Col, V := x.arg(op, 0), x.arg(op, 1), x.arg(op, 2), x.arg(op, 3)
	if !M.Type.IsMatrix() {
		return fmt.Errorf("%w: mxcompassign to %s", ErrContract, M.Type)
	}
	if err := checkResult(M, Row.Uniform && Col.Uniform && V.Uniform); err != nil {
		return err
	}
	idx, err := x.matrixIndex(M, Row, Col)
	if err != nil {
		return err
	}
	x.storeComponent(M, idx, 16, 0, x.load(V, 0, 0))
	return nil
}
