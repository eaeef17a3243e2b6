package text

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func testSchema() *Schema {
	return &Schema{
		Type:  TypeObject,
		Order: []string{"name", "score"},
		Properties: map[string]*Schema{
			"name":  {Type: TypeString, Description: "A name."},
			"score": {Type: TypeInteger},
			"tags":  {Type: TypeArray, Items: &Schema{Type: TypeString}},
		},
		Required: []string{"name", "score"},
	}
}

func TestSchema_ValidateJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "valid", raw: `{"name":"a","score":3,"tags":["x"]}`},
		{name: "extra fields allowed", raw: `{"name":"a","score":3,"other":true}`},
		{name: "missing required", raw: `{"name":"a"}`, wantErr: `missing required field "score"`},
		{name: "wrong scalar", raw: `{"name":1,"score":3}`, wantErr: "$.name: want string, got integer"},
		{name: "fractional integer", raw: `{"name":"a","score":2.5}`, wantErr: "$.score: want integer, got number"},
		{name: "bad item", raw: `{"name":"a","score":1,"tags":["x",2]}`, wantErr: "$.tags[1]"},
		{name: "not an object", raw: `[1,2]`, wantErr: "want object, got array"},
		{name: "null field", raw: `{"name":null,"score":1}`, wantErr: "got null"},
		{name: "not json", raw: `{oops`, wantErr: "does not match schema"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := testSchema().ValidateJSON([]byte(tc.raw))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateJSON: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateJSON accepted %s", tc.raw)
			}
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Errorf("err = %v, want ErrSchemaMismatch", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestSchema_ValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	err := testSchema().ValidateJSON([]byte(`{"tags":[1]}`))
	for _, want := range []string{`"name"`, `"score"`, "$.tags[0]"} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, want it to mention %s", err, want)
		}
	}
}

func TestSchema_JSONSchema(t *testing.T) {
	t.Parallel()

	js := testSchema().JSONSchema()
	if js["type"] != "object" || js["additionalProperties"] != false {
		t.Errorf("root = %v", js)
	}
	props := js["properties"].(map[string]any)
	name := props["name"].(map[string]any)
	if name["description"] != "A name." {
		t.Errorf("name = %v", name)
	}
	tags := props["tags"].(map[string]any)
	if tags["items"].(map[string]any)["type"] != "string" {
		t.Errorf("tags = %v", tags)
	}
	if got := js["required"].([]string); !slices.Equal(got, []string{"name", "score"}) {
		t.Errorf("required = %v", got)
	}
}

func TestSchema_PropertyNames(t *testing.T) {
	t.Parallel()

	if got := testSchema().PropertyNames(); !slices.Equal(got, []string{"name", "score", "tags"}) {
		t.Errorf("PropertyNames = %v", got)
	}
}

func TestTrimJSON(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{in: `  {"a":1}  `, want: `{"a":1}`},
		{in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{in: "```\n{\"a\":1}\n```\n", want: `{"a":1}`},
		{in: "no fence", want: "no fence"},
	}
	for _, tc := range tests {
		if got := TrimJSON(tc.in); got != tc.want {
			t.Errorf("TrimJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
