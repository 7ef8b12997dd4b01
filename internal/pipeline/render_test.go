package pipeline

import "testing"

func TestRender(t *testing.T) {
	context := map[string]string{
		"transcript": "we discussed the launch",
		"Summary":    "launch planning recap",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "single placeholder",
			template: "Summarize: {transcript}",
			want:     "Summarize: we discussed the launch",
		},
		{
			name:     "placeholder with padding",
			template: "From { Summary }, list actions.",
			want:     "From launch planning recap, list actions.",
		},
		{
			name:     "unknown placeholder resolves empty",
			template: "Use {missing} here",
			want:     "Use  here",
		},
		{
			name:     "no placeholders",
			template: "Plain instruction.",
			want:     "Plain instruction.",
		},
		{
			name:     "repeated placeholder",
			template: "{Summary} / {Summary}",
			want:     "launch planning recap / launch planning recap",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.template, context); got != tt.want {
				t.Fatalf("Render(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}
