package bot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Command
	}{
		{
			name: "command only",
			text: "list",
			want: Command{Name: "list"},
		},
		{
			name: "command with argument",
			text: "follow chrigel",
			want: Command{Name: "follow", Arg: "chrigel"},
		},
		{
			name: "uppercase command",
			text: "FOLLOW alice",
			want: Command{Name: "follow", Arg: "alice"},
		},
		{
			name: "surrounding whitespace",
			text: "  stop   petra  ",
			want: Command{Name: "stop", Arg: "petra"},
		},
		{
			name: "tab separator",
			text: "follow\tchrigel",
			want: Command{Name: "follow", Arg: "chrigel"},
		},
		{
			name: "multi-word argument survives trimming",
			text: "follow two words",
			want: Command{Name: "follow", Arg: "two words"},
		},
		{
			name: "empty message",
			text: "",
			want: Command{},
		},
		{
			name: "whitespace only",
			text: "   \t ",
			want: Command{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommand(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
