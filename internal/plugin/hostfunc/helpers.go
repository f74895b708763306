// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// maxTableDepth bounds payload table nesting.
const maxTableDepth = 16

// pushError pushes nil followed by an error string and returns 2.
func pushError(L *lua.LState, errMsg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(errMsg))
	return 2
}

// pushSuccess pushes a value followed by nil (no error) and returns 2.
func pushSuccess(L *lua.LState, value lua.LValue) int {
	L.Push(value)
	L.Push(lua.LNil)
	return 2
}

// encodePayload turns an emit payload into the event's JSON string.
// Strings pass through untouched; nil becomes "{}".
func encodePayload(v lua.LValue) (string, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return "{}", nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		goVal, err := toGo(val, 0)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(goVal)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("payload must be a string or table, got %s", v.Type())
	}
}

// toGo converts a Lua value to JSON-encodable Go data. Tables with keys
// 1..n become arrays; other tables become objects keyed by string.
func toGo(v lua.LValue, depth int) (any, error) {
	if depth > maxTableDepth {
		return nil, fmt.Errorf("payload nested deeper than %d tables", maxTableDepth)
	}
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		if n := val.MaxN(); n > 0 && n == countKeys(val) {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				item, err := toGo(val.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}
				arr = append(arr, item)
			}
			return arr, nil
		}
		obj := make(map[string]any)
		var err error
		val.ForEach(func(k, item lua.LValue) {
			if err != nil {
				return
			}
			var goItem any
			goItem, err = toGo(item, depth+1)
			obj[k.String()] = goItem
		})
		if err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("cannot encode %s in payload", v.Type())
	}
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(_, _ lua.LValue) { n++ })
	return n
}
