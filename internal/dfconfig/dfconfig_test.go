package dfconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/dfops/internal/errors"
)

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMergeVars_PreservesUnrelatedKeys(t *testing.T) {
	t.Parallel()

	path := writeDoc(t, `{
  "warehouse": "bigquery",
  "defaultSchema": "dataform",
  "vars": {"exampleValue": "old", "keep": "me"}
}`)

	require.NoError(t, MergeVars(path, map[string]interface{}{"exampleValue": "new", "author": "alexb"}))

	vars, err := ReadVars(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"exampleValue": "new", "keep": "me", "author": "alexb"}, vars)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `    "warehouse": "bigquery"`)
	assert.Contains(t, string(data), `"defaultSchema": "dataform"`)
}

func TestMergeVars_CreatesVars(t *testing.T) {
	t.Parallel()

	path := writeDoc(t, `{"warehouse":"bigquery"}`)

	require.NoError(t, MergeVars(path, map[string]interface{}{"isAudienceEnabled": "true"}))

	vars, err := ReadVars(path)
	require.NoError(t, err)
	assert.Equal(t, "true", vars["isAudienceEnabled"])
}

func TestMergeVars_Idempotent(t *testing.T) {
	t.Parallel()

	path := writeDoc(t, `{"vars":{"a":"1"},"assertionSchema":"asserts","n":12345678901234567890}`)
	overrides := map[string]interface{}{"exampleValue": "x", "author": "alexb"}

	require.NoError(t, MergeVars(path, overrides))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, MergeVars(path, overrides))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Contains(t, string(first), "12345678901234567890")
}

func TestMergeVars_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"vars": `},
		{name: "trailing document", body: `{"warehouse":"bigquery"}{"vars":{"keep":"me"}}`},
		{name: "trailing garbage", body: `{"vars":{}} x`},
		{name: "not an object", body: `["vars"]`},
		{name: "vars not an object", body: `{"vars": "nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDoc(t, tt.body)
			err := MergeVars(path, map[string]interface{}{"k": "v"})

			var local dserrors.LocalStateError
			require.ErrorAs(t, err, &local)
			assert.Equal(t, path, local.Path)

			data, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			assert.Equal(t, tt.body, string(data), "file must be left untouched")
		})
	}
}

func TestMergeVars_MissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	err := MergeVars(path, map[string]interface{}{"k": "v"})

	var local dserrors.LocalStateError
	require.ErrorAs(t, err, &local)
	assert.Equal(t, path, local.Path)
}

func TestParseAssignments(t *testing.T) {
	t.Parallel()

	got, err := ParseAssignments([]string{"exampleValue=foo", "expr=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"exampleValue": "foo", "expr": "a=b", "empty": ""}, got)
	assert.Equal(t, []string{"empty", "exampleValue", "expr"}, Keys(got))

	_, err = ParseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = ParseAssignments([]string{"=v"})
	assert.Error(t, err)
}
