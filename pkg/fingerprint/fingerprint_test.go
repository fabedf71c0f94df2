package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_KeyOrderIndependence(t *testing.T) {
	a := map[string]any{
		"item_name": "Widget",
		"sku":       "W-100",
		"size":      "large",
	}
	b := map[string]any{
		"size":      "large",
		"item_name": "Widget",
		"sku":       "W-100",
	}

	assert.Equal(t, Generate(a), Generate(b))
}

func TestGenerate_ValueSensitivity(t *testing.T) {
	a := map[string]any{"item_name": "Widget", "size": "large"}
	b := map[string]any{"item_name": "Widget", "size": "small"}

	assert.NotEqual(t, Generate(a), Generate(b))
}

func TestGenerate_NestedStructures(t *testing.T) {
	t.Run("nested maps compare structurally", func(t *testing.T) {
		a := map[string]any{
			"name": "Widget",
			"dimensions": map[string]any{
				"width":  float64(10),
				"height": float64(20),
			},
		}
		b := map[string]any{
			"dimensions": map[string]any{
				"height": float64(20),
				"width":  float64(10),
			},
			"name": "Widget",
		}

		assert.Equal(t, Generate(a), Generate(b))
	})

	t.Run("array order matters", func(t *testing.T) {
		a := map[string]any{"tags": []any{"red", "blue"}}
		b := map[string]any{"tags": []any{"blue", "red"}}

		assert.NotEqual(t, Generate(a), Generate(b))
	})

	t.Run("nested value change produces new fingerprint", func(t *testing.T) {
		a := map[string]any{"dimensions": map[string]any{"width": float64(10)}}
		b := map[string]any{"dimensions": map[string]any{"width": float64(11)}}

		assert.NotEqual(t, Generate(a), Generate(b))
	})
}

func TestGenerateWithExclusions(t *testing.T) {
	t.Run("records differing only in excluded keys collide", func(t *testing.T) {
		a := map[string]any{
			"item_name": "Widget",
			"qty":       float64(5),
			"cost":      9.99,
		}
		b := map[string]any{
			"item_name": "Widget",
			"qty":       float64(120),
			"cost":      4.50,
		}

		exclude := []string{"qty", "cost"}
		assert.Equal(t, GenerateWithExclusions(a, exclude), GenerateWithExclusions(b, exclude))
	})

	t.Run("non-excluded difference still separates", func(t *testing.T) {
		a := map[string]any{"item_name": "Widget", "qty": float64(5)}
		b := map[string]any{"item_name": "Gadget", "qty": float64(5)}

		exclude := []string{"qty"}
		assert.NotEqual(t, GenerateWithExclusions(a, exclude), GenerateWithExclusions(b, exclude))
	})

	t.Run("excluding an absent key is a no-op", func(t *testing.T) {
		data := map[string]any{"item_name": "Widget"}

		assert.Equal(t, Generate(data), GenerateWithExclusions(data, []string{"qty"}))
	})

	t.Run("exclusions are top-level only", func(t *testing.T) {
		a := map[string]any{"details": map[string]any{"qty": float64(5)}}
		b := map[string]any{"details": map[string]any{"qty": float64(6)}}

		exclude := []string{"qty"}
		assert.NotEqual(t, GenerateWithExclusions(a, exclude), GenerateWithExclusions(b, exclude))
	})

	t.Run("nil exclusions match Generate", func(t *testing.T) {
		data := map[string]any{"item_name": "Widget", "qty": float64(5)}

		assert.Equal(t, Generate(data), GenerateWithExclusions(data, nil))
	})
}

func TestGenerateFromJSON(t *testing.T) {
	t.Run("matches map fingerprint", func(t *testing.T) {
		raw := json.RawMessage(`{"sku": "W-100", "item_name": "Widget"}`)

		got, err := GenerateFromJSON(raw)
		require.NoError(t, err)

		want := Generate(map[string]any{"sku": "W-100", "item_name": "Widget"})
		assert.Equal(t, want, got)
	})

	t.Run("whitespace and key order do not matter", func(t *testing.T) {
		a := json.RawMessage(`{"sku":"W-100","item_name":"Widget"}`)
		b := json.RawMessage(`{
			"item_name": "Widget",
			"sku":       "W-100"
		}`)

		fpA, err := GenerateFromJSON(a)
		require.NoError(t, err)
		fpB, err := GenerateFromJSON(b)
		require.NoError(t, err)

		assert.Equal(t, fpA, fpB)
	})

	t.Run("invalid JSON errors", func(t *testing.T) {
		_, err := GenerateFromJSON(json.RawMessage(`{"sku":`))
		assert.Error(t, err)
	})

	t.Run("non-object JSON errors", func(t *testing.T) {
		_, err := GenerateFromJSON(json.RawMessage(`[1, 2, 3]`))
		assert.Error(t, err)
	})
}

func TestGenerateFromJSONWithExclusions(t *testing.T) {
	a := json.RawMessage(`{"item_name": "Widget", "qty": 5}`)
	b := json.RawMessage(`{"item_name": "Widget", "qty": 99}`)

	fpA, err := GenerateFromJSONWithExclusions(a, []string{"qty"})
	require.NoError(t, err)
	fpB, err := GenerateFromJSONWithExclusions(b, []string{"qty"})
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
}

func TestGenerate_EdgeCases(t *testing.T) {
	t.Run("empty object", func(t *testing.T) {
		assert.NotEmpty(t, Generate(map[string]any{}))
		assert.Equal(t, Generate(map[string]any{}), Generate(map[string]any{}))
	})

	t.Run("null values participate", func(t *testing.T) {
		a := map[string]any{"note": nil}
		b := map[string]any{}

		assert.NotEqual(t, Generate(a), Generate(b))
	})

	t.Run("number formatting is stable", func(t *testing.T) {
		// JSON decoding yields float64 for all numbers
		a := map[string]any{"qty": float64(10)}

		raw := json.RawMessage(`{"qty": 10}`)
		fromJSON, err := GenerateFromJSON(raw)
		require.NoError(t, err)

		assert.Equal(t, Generate(a), fromJSON)
	})

	t.Run("type changes separate", func(t *testing.T) {
		a := map[string]any{"qty": float64(10)}
		b := map[string]any{"qty": "10"}

		assert.NotEqual(t, Generate(a), Generate(b))
	})
}

func TestEqual(t *testing.T) {
	t.Run("order independent equality", func(t *testing.T) {
		a := map[string]any{"x": float64(1), "y": []any{"a", "b"}}
		b := map[string]any{"y": []any{"a", "b"}, "x": float64(1)}

		assert.True(t, Equal(a, b))
	})

	t.Run("detects differences", func(t *testing.T) {
		a := map[string]any{"x": float64(1)}
		b := map[string]any{"x": float64(2)}

		assert.False(t, Equal(a, b))
	})
}
