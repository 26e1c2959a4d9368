package witmeta

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-component-ld/wasm"
)

// Canonical ABI flattening limits. Signatures whose flat form exceeds
// them pass values through linear memory instead of the stack.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// CoreValType is a core wasm value type.
type CoreValType = api.ValueType

// Direction selects the spill rule applied once a signature exceeds
// the flat limits. A lifted export returns its result through a
// pointer the core function produces; a lowered import receives a
// return-area pointer as an extra parameter.
type Direction int

const (
	Lift Direction = iota
	Lower
)

// FlattenFunc flattens a full signature to the core shape the
// canonical ABI prescribes for the given direction.
func FlattenFunc(f WorldFunc, dir Direction) (flatParams, flatResults []CoreValType) {
	for _, p := range f.Params {
		flatParams = append(flatParams, FlattenType(p.Type)...)
	}
	if f.Result != nil {
		flatResults = FlattenType(f.Result)
	}

	if len(flatParams) > MaxFlatParams {
		flatParams = []CoreValType{api.ValueTypeI32}
	}

	if len(flatResults) > MaxFlatResults {
		switch dir {
		case Lift:
			flatResults = []CoreValType{api.ValueTypeI32}
		case Lower:
			flatParams = append(flatParams, api.ValueTypeI32)
			flatResults = nil
		}
	}

	return flatParams, flatResults
}

// CoreSignature is FlattenFunc expressed as a core function type, the
// shape compared against the linked module's actual signatures.
func CoreSignature(f WorldFunc, dir Direction) wasm.FuncType {
	ps, rs := FlattenFunc(f, dir)
	return wasm.FuncType{Params: toWasmTypes(ps), Results: toWasmTypes(rs)}
}

// FlattenTypes flattens a type list in order.
func FlattenTypes(types []wit.Type) []CoreValType {
	var result []CoreValType
	for _, t := range types {
		result = append(result, FlattenType(t)...)
	}
	return result
}

// FlattenType flattens one type to core value types.
func FlattenType(t wit.Type) []CoreValType {
	if t == nil {
		return nil
	}

	switch v := t.(type) {
	case wit.Bool, wit.U8, wit.U16, wit.U32, wit.S8, wit.S16, wit.S32, wit.Char:
		return []CoreValType{api.ValueTypeI32}
	case wit.U64, wit.S64:
		return []CoreValType{api.ValueTypeI64}
	case wit.F32:
		return []CoreValType{api.ValueTypeF32}
	case wit.F64:
		return []CoreValType{api.ValueTypeF64}
	case wit.String:
		return []CoreValType{api.ValueTypeI32, api.ValueTypeI32} // ptr, len

	case *wit.TypeDef:
		return flattenTypeDef(v)

	default:
		return []CoreValType{api.ValueTypeI32}
	}
}

func flattenTypeDef(td *wit.TypeDef) []CoreValType {
	if td == nil || td.Kind == nil {
		return []CoreValType{api.ValueTypeI32}
	}

	switch kind := td.Kind.(type) {
	case *wit.Record:
		return flattenRecord(kind)
	case *wit.List:
		return []CoreValType{api.ValueTypeI32, api.ValueTypeI32} // ptr, len
	case *wit.Tuple:
		return flattenTuple(kind)
	case *wit.Variant:
		return flattenVariant(kind)
	case *wit.Enum:
		return []CoreValType{api.ValueTypeI32} // discriminant only
	case *wit.Option:
		return flattenOption(kind)
	case *wit.Result:
		return flattenResult(kind)
	case *wit.Flags:
		return flattenFlags(kind)
	case *wit.Own, *wit.Borrow:
		return []CoreValType{api.ValueTypeI32} // resource handle
	case wit.Type:
		// Primitives wrapped in a TypeDef.
		return FlattenType(kind)
	default:
		return []CoreValType{api.ValueTypeI32}
	}
}

func flattenRecord(r *wit.Record) []CoreValType {
	var flat []CoreValType
	for _, field := range r.Fields {
		flat = append(flat, FlattenType(field.Type)...)
	}
	return flat
}

func flattenTuple(t *wit.Tuple) []CoreValType {
	var flat []CoreValType
	for _, elem := range t.Types {
		flat = append(flat, FlattenType(elem)...)
	}
	return flat
}

// flattenVariant flattens to discriminant + union of case payloads.
func flattenVariant(v *wit.Variant) []CoreValType {
	flat := discriminantType(len(v.Cases))
	var payload []CoreValType
	for _, c := range v.Cases {
		if c.Type == nil {
			continue
		}
		caseFlat := FlattenType(c.Type)
		for i, ft := range caseFlat {
			if i < len(payload) {
				payload[i] = joinTypes(payload[i], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}
	return append(flat, payload...)
}

// flattenOption flattens option<T> as discriminant + T.
func flattenOption(o *wit.Option) []CoreValType {
	discrim := []CoreValType{api.ValueTypeI32}
	if o.Type != nil {
		return append(discrim, FlattenType(o.Type)...)
	}
	return discrim
}

// flattenResult flattens result<T, E> as discriminant + union(T, E).
func flattenResult(r *wit.Result) []CoreValType {
	discrim := []CoreValType{api.ValueTypeI32}
	var payload []CoreValType
	if r.OK != nil {
		payload = FlattenType(r.OK)
	}
	if r.Err != nil {
		errFlat := FlattenType(r.Err)
		for i, ft := range errFlat {
			if i < len(payload) {
				payload[i] = joinTypes(payload[i], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}
	return append(discrim, payload...)
}

// flattenFlags flattens to i32 for up to 32 flags, i64 beyond.
func flattenFlags(f *wit.Flags) []CoreValType {
	if len(f.Flags) > 32 {
		return []CoreValType{api.ValueTypeI64}
	}
	return []CoreValType{api.ValueTypeI32}
}

// discriminantType returns i32; every discriminant fits.
func discriminantType(numCases int) []CoreValType {
	return []CoreValType{api.ValueTypeI32}
}

// joinTypes unions two core types sharing a payload slot.
func joinTypes(a, b CoreValType) CoreValType {
	if a == b {
		return a
	}
	// 32-bit types can share storage.
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) ||
		(a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	// Different sizes require i64.
	return api.ValueTypeI64
}

func toWasmTypes(ts []CoreValType) []wasm.ValType {
	if len(ts) == 0 {
		return nil
	}
	out := make([]wasm.ValType, len(ts))
	for i, t := range ts {
		out[i] = valTypeToWasm(t)
	}
	return out
}

func valTypeToWasm(t CoreValType) wasm.ValType {
	switch t {
	case api.ValueTypeI32:
		return wasm.ValI32
	case api.ValueTypeI64:
		return wasm.ValI64
	case api.ValueTypeF32:
		return wasm.ValF32
	case api.ValueTypeF64:
		return wasm.ValF64
	default:
		return wasm.ValI32
	}
}
