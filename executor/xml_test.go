package executor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseXMLToolCallsNoBlockIsFinalAnswer(t *testing.T) {
	calls, err := parseXMLToolCalls("Here is my final answer, no tools needed.")
	require.NoError(t, err)
	assert.Nil(t, calls)
}

func TestParseXMLToolCallsSingleInvoke(t *testing.T) {
	text := `Let me check that.
<tool_calls><invoke name="fs.read"><parameter name="path">/tmp/x.txt</parameter><parameter name="limit">10</parameter></invoke></tool_calls>`
	calls, err := parseXMLToolCalls(text)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "fs.read", calls[0].Name)

	var input map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(calls[0].Input, &input))
	assert.Equal(t, `"/tmp/x.txt"`, string(input["path"]))
	assert.Equal(t, `10`, string(input["limit"]))
}

func TestParseXMLToolCallsMultipleInvokes(t *testing.T) {
	text := `<tool_calls>` +
		`<invoke name="a"><parameter name="x">1</parameter></invoke>` +
		`<invoke name="b"><parameter name="y">2</parameter></invoke>` +
		`</tool_calls>`
	calls, err := parseXMLToolCalls(text)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.Equal(t, "b", calls[1].Name)
}

func TestParseXMLToolCallsBlockWithNoInvokesErrors(t *testing.T) {
	_, err := parseXMLToolCalls("<tool_calls></tool_calls>")
	assert.Error(t, err)
}

func TestParseXMLToolCallsMissingNameErrors(t *testing.T) {
	_, err := parseXMLToolCalls(`<tool_calls><invoke name="  "></invoke></tool_calls>`)
	assert.Error(t, err)
}

func TestParseInvokeParametersFallsBackToStringLiteral(t *testing.T) {
	input, err := parseInvokeParameters(`<parameter name="note">not valid json {</parameter>`)
	require.NoError(t, err)
	var obj map[string]string
	require.NoError(t, json.Unmarshal(input, &obj))
	assert.Equal(t, "not valid json {", obj["note"])
}
