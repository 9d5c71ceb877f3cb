package middleware

import (
	"testing"

	contextutils "studyprogress/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultLoader(t *testing.T) *SchemaLoader {
	t.Helper()
	loader, err := DefaultSchemaLoader()
	require.NoError(t, err)
	return loader
}

func TestDefaultSchemaLoader_LoadsAllDefinitions(t *testing.T) {
	loader := defaultLoader(t)

	names := loader.SchemaNames()
	for _, want := range []string{
		"StartSessionRequest", "SetActivityRequest", "ReviewRequest",
		"StartQuizRequest", "AnswerRequest", "DifficultyProfileRequest", "BulkGoalActionRequest",
	} {
		assert.Contains(t, names, want)
	}
}

func TestSchemaFor(t *testing.T) {
	loader := defaultLoader(t)

	name, ok := loader.SchemaFor("post", "/v1/goals/bulk")
	require.True(t, ok)
	assert.Equal(t, "BulkGoalActionRequest", name)

	_, ok = loader.SchemaFor("GET", "/v1/goals/bulk")
	assert.False(t, ok)
}

func TestValidateData(t *testing.T) {
	loader := defaultLoader(t)

	tests := []struct {
		name   string
		schema string
		data   map[string]interface{}
		valid  bool
	}{
		{"review ok", "ReviewRequest", map[string]interface{}{"item_id": 3, "outcome": "mastered"}, true},
		{"review null score", "ReviewRequest", map[string]interface{}{"item_id": 3, "outcome": "mastered", "score": nil}, true},
		{"review score too high", "ReviewRequest", map[string]interface{}{"item_id": 3, "outcome": "mastered", "score": 6}, false},
		{"review bad outcome", "ReviewRequest", map[string]interface{}{"item_id": 3, "outcome": "forgot"}, false},
		{"review missing item", "ReviewRequest", map[string]interface{}{"outcome": "mastered"}, false},
		{"session empty body", "StartSessionRequest", map[string]interface{}{}, true},
		{"session bad activity", "StartSessionRequest", map[string]interface{}{"activity_type": "sleeping"}, false},
		{"bulk ok", "BulkGoalActionRequest", map[string]interface{}{"goal_ids": []int{1, 2}, "action": "extend", "days": 3}, true},
		{"bulk empty ids", "BulkGoalActionRequest", map[string]interface{}{"goal_ids": []int{}, "action": "archive"}, false},
		{"bulk unknown field", "BulkGoalActionRequest", map[string]interface{}{"goal_ids": []int{1}, "action": "archive", "force": true}, false},
		{"profile null settings", "DifficultyProfileRequest", map[string]interface{}{"recent_scores": []float64{4}, "current_difficulty": 3, "settings": nil}, true},
		{"profile bad difficulty", "DifficultyProfileRequest", map[string]interface{}{"recent_scores": []float64{4}, "current_difficulty": 9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loader.ValidateData(tt.data, tt.schema)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, contextutils.ErrorCodeValidationFailed, contextutils.GetErrorCode(err))
		})
	}
}

func TestValidateData_UnknownSchema(t *testing.T) {
	loader := defaultLoader(t)
	assert.Error(t, loader.ValidateData(map[string]interface{}{}, "Nope"))
}

func TestLoadSchemas_RejectsUnknownRouteTarget(t *testing.T) {
	loader := NewSchemaLoader()
	err := loader.LoadSchemas([]byte(`
definitions:
  Thing:
    type: object
routes:
  POST /things: Other
`))
	assert.Error(t, err)
}

func TestLoadSchemas_RequiresDefinitions(t *testing.T) {
	loader := NewSchemaLoader()
	assert.Error(t, loader.LoadSchemas([]byte("routes: {}\n")))
}

func TestConvertToJSONCompatible_Nullable(t *testing.T) {
	out, err := convertToJSONCompatible(map[interface{}]interface{}{
		"type":     "string",
		"nullable": true,
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"string", "null"}, out.(map[string]interface{})["type"])

	out, err = convertToJSONCompatible(map[interface{}]interface{}{
		"$ref":     "#/definitions/X",
		"nullable": true,
	})
	require.NoError(t, err)
	m := out.(map[string]interface{})
	assert.NotContains(t, m, "$ref")
	assert.Len(t, m["oneOf"], 2)
}
