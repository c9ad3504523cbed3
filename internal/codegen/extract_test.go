package codegen

import "testing"

// TestExtractProgram covers every strategy of the extraction chain, including
// the ordering between them.
func TestExtractProgram(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "json code field",
			response: `{"code": "x=1"}`,
			want:     "x=1",
		},
		{
			name:     "json with surrounding whitespace",
			response: "\n  {\"code\": \"d.draw()\"}  \n",
			want:     "d.draw()",
		},
		{
			name:     "json with escaped newlines",
			response: `{"code": "import schemdraw\nd = schemdraw.Drawing()"}`,
			want:     "import schemdraw\nd = schemdraw.Drawing()",
		},
		{
			name:     "python fence",
			response: "```python\nx=1\n```",
			want:     "x=1",
		},
		{
			name:     "python fence with prose around it",
			response: "Here is the circuit:\n```python\nd.draw()\n```\nHope this helps!",
			want:     "d.draw()",
		},
		{
			name:     "untagged fence",
			response: "```\nx=1\n```",
			want:     "x=1",
		},
		{
			name:     "raw code unchanged",
			response: "x=1",
			want:     "x=1",
		},
		{
			name:     "json without code field falls through to raw",
			response: `{"program": "x=1"}`,
			want:     `{"program": "x=1"}`,
		},
		{
			name:     "malformed json falls through to fence",
			response: "{not json\n```python\nx=2\n```",
			want:     "x=2",
		},
		{
			name:     "python fence spans to last marker",
			response: "```python\na=1\n```\nmore text\n```\nb=2\n```",
			want:     "a=1\n```\nmore text\n```\nb=2",
		},
		{
			name:     "unterminated fence falls through to raw",
			response: "```python\nx=1",
			want:     "```python\nx=1",
		},
		{
			name:     "empty response stays empty",
			response: "",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractProgram(tt.response); got != tt.want {
				t.Errorf("extractProgram() = %q, want %q", got, tt.want)
			}
		})
	}
}
