package parser

import (
	"testing"

	apperrors "receipt-agent/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaggedFormat_Parse(t *testing.T) {
	f := NewTaggedFormat()

	raw := `<reasoning>Need the employee's budget first.</reasoning>
<tool_name>get_employee_data</tool_name>
<parameters>
{"employee_id": "E1", "nested": {"k": [1, 2]}}
</parameters>
<final_call>false</final_call>`

	turn, err := f.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Need the employee's budget first.", turn.Reasoning)
	assert.Equal(t, "get_employee_data", turn.ToolName)
	assert.Equal(t, "E1", turn.Parameters["employee_id"])
	assert.IsType(t, map[string]interface{}{}, turn.Parameters["nested"])
	assert.False(t, turn.IsFinal)
}

func TestTaggedFormat_Variants(t *testing.T) {
	f := NewTaggedFormat()

	tests := []struct {
		name  string
		raw   string
		tool  string
		final bool
	}{
		{
			name:  "reasoning optional, fenced parameters, uppercase tags",
			raw:   "<TOOL_NAME>send_email</TOOL_NAME><parameters>```json\n{\"recipient_id\":\"E1\"}\n```</parameters><final_call>True</final_call>",
			tool:  "send_email",
			final: true,
		},
		{
			name:  "final without tool",
			raw:   "<tool_name>none</tool_name><parameters>{}</parameters><final_call>true</final_call>",
			tool:  "",
			final: true,
		},
		{
			name:  "empty parameters section",
			raw:   "<tool_name>get_employee_data</tool_name><parameters></parameters><final_call>no</final_call>",
			tool:  "get_employee_data",
			final: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn, err := f.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.tool, turn.ToolName)
			assert.Equal(t, tt.final, turn.IsFinal)
			assert.NotNil(t, turn.Parameters)
		})
	}
}

func TestTaggedFormat_Malformed(t *testing.T) {
	f := NewTaggedFormat()

	tests := []struct {
		name   string
		raw    string
		expect string
	}{
		{"missing parameters", "<tool_name>x</tool_name><final_call>false</final_call>", "<parameters>"},
		{"missing everything", "I will now check the budget.", "<tool_name>"},
		{"parameters not json", "<tool_name>x</tool_name><parameters>employee_id=E1</parameters><final_call>false</final_call>", "not a JSON object"},
		{"parameters is array", "<tool_name>x</tool_name><parameters>[1]</parameters><final_call>false</final_call>", "not a JSON object"},
		{"final not boolean", "<tool_name>x</tool_name><parameters>{}</parameters><final_call>maybe</final_call>", "true or false"},
		{"no tool and not final", "<tool_name></tool_name><parameters>{}</parameters><final_call>false</final_call>", "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMalformedResponse))
			assert.Contains(t, err.Error(), tt.expect)
		})
	}
}

func TestJSONFormat_Parse(t *testing.T) {
	f, err := NewJSONFormat()
	require.NoError(t, err)

	turn, err := f.Parse("Sure:\n```json\n{\"reasoning\":\"r\",\"tool_name\":\"update_expense_budget\",\"parameters\":{\"amount\":503},\"final_call\":false}\n```")
	require.NoError(t, err)
	assert.Equal(t, "update_expense_budget", turn.ToolName)
	assert.Equal(t, 503.0, turn.Parameters["amount"])

	turn, err = f.Parse(`{"tool_name": null, "parameters": {}, "final_call": true}`)
	require.NoError(t, err)
	assert.True(t, turn.IsFinal)
	assert.Empty(t, turn.ToolName)
}

func TestJSONFormat_Malformed(t *testing.T) {
	f, err := NewJSONFormat()
	require.NoError(t, err)

	for _, raw := range []string{
		"no json here",
		`{"tool_name": "x", "final_call": false}`,
		`{"tool_name": "x", "parameters": "E1", "final_call": false}`,
		`{"tool_name": "x", "parameters": {}, "final_call": "no"}`,
		`{"tool_name": "x", "parameters": {`,
	} {
		_, err := f.Parse(raw)
		require.Error(t, err, raw)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMalformedResponse), raw)
	}
}

func TestForName(t *testing.T) {
	f, err := ForName("")
	require.NoError(t, err)
	assert.Equal(t, "tagged", f.Name())

	f, err = ForName("JSON")
	require.NoError(t, err)
	assert.Equal(t, "json", f.Name())
	assert.Contains(t, f.Instructions(), "final_call")

	_, err = ForName("xml")
	assert.Error(t, err)
}
