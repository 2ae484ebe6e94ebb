package resumable

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stealthrocket/resumable/ir"
)

// normalize converts the integer types produced by host functions to int64.
func normalize(v Value) Value {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	}
	return v
}

// truthy is the boolean interpretation of a condition.
func truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}

func typeError(format string, args ...any) *Exception {
	return NewException("InvalidOperation", fmt.Sprintf(format, args...))
}

// binary applies a non short-circuiting operator.
func binary(op ir.Op, x, y Value) (Value, *Exception) {
	switch op {
	case ir.Eq:
		return equal(x, y), nil
	case ir.Ne:
		return !equal(x, y), nil
	case ir.Add:
		if xs, ok := x.(string); ok {
			return xs + stringOf(y), nil
		}
		if ys, ok := y.(string); ok {
			return stringOf(x) + ys, nil
		}
	}

	xi, xok := x.(int64)
	yi, yok := y.(int64)
	if xok && yok {
		switch op {
		case ir.Add:
			return xi + yi, nil
		case ir.Sub:
			return xi - yi, nil
		case ir.Mul:
			return xi * yi, nil
		case ir.Lt:
			return xi < yi, nil
		case ir.Le:
			return xi <= yi, nil
		case ir.Gt:
			return xi > yi, nil
		case ir.Ge:
			return xi >= yi, nil
		}
	}

	xs, xok := x.(string)
	ys, yok := y.(string)
	if xok && yok {
		switch op {
		case ir.Lt:
			return xs < ys, nil
		case ir.Le:
			return xs <= ys, nil
		case ir.Gt:
			return xs > ys, nil
		case ir.Ge:
			return xs >= ys, nil
		}
	}
	return nil, typeError("operator %s not defined on %T and %T", op, x, y)
}

func equal(x, y Value) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false // not comparable
		}
	}()
	return x == y
}

func stringOf(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	case *Exception:
		return x.Error()
	}
	return fmt.Sprint(v)
}

// Protobuf field numbers of the value encoding. A value is encoded as a
// message holding exactly one of the fields.
const (
	valueNil       protowire.Number = 1
	valueBool      protowire.Number = 2
	valueInt       protowire.Number = 3
	valueString    protowire.Number = 4
	valueException protowire.Number = 5

	exceptionType    protowire.Number = 1
	exceptionMessage protowire.Number = 2
	exceptionTrace   protowire.Number = 3
	exceptionValue   protowire.Number = 4
)

func marshalValue(b []byte, v Value) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		b = protowire.AppendTag(b, valueNil, protowire.VarintType)
		b = protowire.AppendVarint(b, 0)
	case bool:
		b = protowire.AppendTag(b, valueBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(x))
	case int64:
		b = protowire.AppendTag(b, valueInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(x))
	case string:
		b = protowire.AppendTag(b, valueString, protowire.BytesType)
		b = protowire.AppendString(b, x)
	case *Exception:
		var e []byte
		e = protowire.AppendTag(e, exceptionType, protowire.BytesType)
		e = protowire.AppendString(e, x.Type)
		e = protowire.AppendTag(e, exceptionMessage, protowire.BytesType)
		e = protowire.AppendString(e, x.Message)
		for _, site := range x.Trace {
			e = protowire.AppendTag(e, exceptionTrace, protowire.BytesType)
			e = protowire.AppendString(e, site)
		}
		if x.Value != nil {
			payload, err := marshalValue(nil, x.Value)
			if err != nil {
				return nil, fmt.Errorf("exception payload: %w", err)
			}
			e = protowire.AppendTag(e, exceptionValue, protowire.BytesType)
			e = protowire.AppendBytes(e, payload)
		}
		b = protowire.AppendTag(b, valueException, protowire.BytesType)
		b = protowire.AppendBytes(b, e)
	default:
		return nil, fmt.Errorf("value of type %T is not serializable", v)
	}
	return b, nil
}

func unmarshalValue(b []byte) (Value, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, fmt.Errorf("invalid value: %w", protowire.ParseError(n))
	}
	b = b[n:]

	switch {
	case num == valueNil && typ == protowire.VarintType:
		_, n = protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid nil value: %w", protowire.ParseError(n))
		}
		return nil, nil
	case num == valueBool && typ == protowire.VarintType:
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid bool value: %w", protowire.ParseError(n))
		}
		return protowire.DecodeBool(x), nil
	case num == valueInt && typ == protowire.VarintType:
		x, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid int value: %w", protowire.ParseError(n))
		}
		return protowire.DecodeZigZag(x), nil
	case num == valueString && typ == protowire.BytesType:
		x, n := protowire.ConsumeString(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid string value: %w", protowire.ParseError(n))
		}
		return x, nil
	case num == valueException && typ == protowire.BytesType:
		x, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid exception value: %w", protowire.ParseError(n))
		}
		return unmarshalException(x)
	}
	return nil, fmt.Errorf("invalid value: unexpected field %d of type %d", num, typ)
}

func unmarshalException(b []byte) (*Exception, error) {
	ex := &Exception{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid exception: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("invalid exception: %w", protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		field, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid exception: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case exceptionType:
			ex.Type = string(field)
		case exceptionMessage:
			ex.Message = string(field)
		case exceptionTrace:
			ex.Trace = append(ex.Trace, string(field))
		case exceptionValue:
			v, err := unmarshalValue(field)
			if err != nil {
				return nil, fmt.Errorf("exception payload: %w", err)
			}
			ex.Value = v
		}
	}
	return ex, nil
}
