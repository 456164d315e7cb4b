package expr

import (
	"fmt"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"lawgraph/internal/value"
)

// FromCEL converts a CEL result into a Value.
func FromCEL(v ref.Val) (value.Value, error) {
	switch x := v.(type) {
	case types.Null:
		return value.Null(), nil
	case types.Bool:
		return value.Bool(bool(x)), nil
	case types.Int:
		return value.Int(int64(x)), nil
	case types.Uint:
		if uint64(x) > 1<<63-1 {
			return value.Float(float64(x)), nil
		}
		return value.Int(int64(x)), nil
	case types.Double:
		return value.Float(float64(x)), nil
	case types.String:
		return value.String(string(x)), nil
	case *types.Err:
		return value.Null(), x
	case traits.Mapper:
		fields := make(map[string]value.Value)
		it := x.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			ks, ok := k.(types.String)
			if !ok {
				return value.Null(), fmt.Errorf("map key %v is %s, want string", k, k.Type().TypeName())
			}
			fv, err := FromCEL(x.Get(k))
			if err != nil {
				return value.Null(), err
			}
			fields[string(ks)] = fv
		}
		return value.Record(fields), nil
	case traits.Lister:
		n, ok := x.Size().(types.Int)
		if !ok {
			return value.Null(), fmt.Errorf("list has no size")
		}
		items := make([]value.Value, 0, int(n))
		for i := types.Int(0); i < n; i++ {
			iv, err := FromCEL(x.Get(i))
			if err != nil {
				return value.Null(), err
			}
			items = append(items, iv)
		}
		return value.List(items...), nil
	default:
		return value.Null(), fmt.Errorf("unsupported CEL result type %s", v.Type().TypeName())
	}
}
