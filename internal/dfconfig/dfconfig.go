// Package dfconfig edits the vars section of a Dataform project's
// dataform.json.
package dfconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/systmms/dfops/internal/errors"
)

// FileName is the project configuration file at the repository root.
const FileName = "dataform.json"

const documentSchema = `{
  "type": "object",
  "properties": {
    "vars": {"type": "object"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// MergeVars sets each override in the vars object of the document at path,
// creating vars if absent. Existing keys not named in overrides are kept.
// Applying the same overrides twice leaves the file unchanged.
func MergeVars(path string, overrides map[string]interface{}) error {
	doc, err := read(path)
	if err != nil {
		return err
	}

	vars, _ := doc["vars"].(map[string]interface{})
	if vars == nil {
		vars = make(map[string]interface{}, len(overrides))
	}
	for k, v := range overrides {
		vars[k] = v
	}
	doc["vars"] = vars

	data, err := encode(doc)
	if err != nil {
		return dserrors.LocalStateError{Path: path, Message: "cannot encode configuration", Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return dserrors.LocalStateError{Path: path, Message: "cannot stat configuration", Err: err}
	}
	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		return dserrors.LocalStateError{Path: path, Message: "cannot write configuration", Err: err}
	}
	return nil
}

// ReadVars returns the vars object of the document at path, or an empty
// map when the document has none.
func ReadVars(path string) (map[string]interface{}, error) {
	doc, err := read(path)
	if err != nil {
		return nil, err
	}
	vars, _ := doc["vars"].(map[string]interface{})
	if vars == nil {
		vars = map[string]interface{}{}
	}
	return vars, nil
}

// ParseAssignments turns key=value pairs into overrides. Values stay strings.
func ParseAssignments(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("invalid assignment %q", pair),
				Suggestion: "Use key=value, e.g. --var exampleValue=foo",
			}
		}
		out[key] = value
	}
	return out, nil
}

// Keys returns the sorted keys of overrides, for logging.
func Keys(overrides map[string]interface{}) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func read(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dserrors.LocalStateError{Path: path, Message: "cannot read configuration", Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, dserrors.LocalStateError{Path: path, Message: "malformed JSON", Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("extra data after the top-level value")
		}
		return nil, dserrors.LocalStateError{Path: path, Message: "malformed JSON", Err: err}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, dserrors.LocalStateError{Path: path, Message: "cannot validate configuration", Err: err}
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, dserrors.LocalStateError{Path: path, Message: "unexpected document shape: " + strings.Join(msgs, "; ")}
	}

	return raw.(map[string]interface{}), nil
}

func encode(doc map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
