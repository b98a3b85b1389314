package modeljson_test

import (
	"errors"
	"testing"

	ceerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/modeljson"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":[1,2]}\n```", `{"a":[1,2]}`, true},
		{"prose around", `Sure! Here: [3, 4] hope it helps`, `[3, 4]`, true},
		{"brace in string", `{"s":"}{"}`, `{"s":"}{"}`, true},
		{"escaped quote", `{"s":"a\"}"}`, `{"s":"a\"}"}`, true},
		{"incomplete", `{"a":1`, "", false},
		{"none", `no json here`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := modeljson.Extract(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Extract(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDecode_IDSelection(t *testing.T) {
	tests := []struct {
		in   string
		want []int64
	}{
		{`{"relevant_ids": [3, 7]}`, []int64{3, 7}},
		{"```json\n[12, \"15\", \"x\"]\n```", []int64{12, 15}},
		{`结果如下：{"ids": []}`, []int64{}},
	}
	for _, tt := range tests {
		sel, err := modeljson.Decode[modeljson.IDSelection](tt.in)
		if err != nil {
			t.Fatalf("Decode(%q) failed: %v", tt.in, err)
		}
		if len(sel.IDs) != len(tt.want) {
			t.Fatalf("Decode(%q) = %v, want %v", tt.in, sel.IDs, tt.want)
		}
		for i := range tt.want {
			if sel.IDs[i] != tt.want[i] {
				t.Errorf("Decode(%q)[%d] = %d, want %d", tt.in, i, sel.IDs[i], tt.want[i])
			}
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		in    string
		stage modeljson.Stage
	}{
		{"   ", modeljson.StageEmpty},
		{"I cannot help with that", modeljson.StageExtract},
		{`{"relevant_ids": "3"}`, modeljson.StageDecode},
		{`{"other": [1]}`, modeljson.StageDecode},
		{`[-1]`, modeljson.StageValidate},
	}
	for _, tt := range tests {
		_, err := modeljson.Decode[modeljson.IDSelection](tt.in)
		var pe *modeljson.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Decode(%q) expected *ParseError, got %v", tt.in, err)
		}
		if pe.Stage != tt.stage {
			t.Errorf("Decode(%q) stage = %s, want %s", tt.in, pe.Stage, tt.stage)
		}
		if !errors.Is(err, ceerrors.ErrInvalidResponse) {
			t.Errorf("Decode(%q) error should match ErrInvalidResponse", tt.in)
		}
	}
}

type summary struct {
	Stage   string `json:"stage"`
	Summary string `json:"summary"`
}

func TestDecode_Struct(t *testing.T) {
	s, err := modeljson.Decode[summary]("```json\n{\"stage\":\"closing\",\"summary\":\"ok\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Stage != "closing" || s.Summary != "ok" {
		t.Errorf("unexpected result %+v", s)
	}
}
