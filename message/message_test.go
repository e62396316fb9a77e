package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		ctx  Context
		want string
	}{
		{
			name: "all placeholders resolved",
			tmpl: "{channel} is live! {title}",
			ctx:  Context{Channel: "foo", Title: "bar"},
			want: "foo is live! bar",
		},
		{
			name: "unknown placeholder kept verbatim",
			tmpl: "{channel} {missing}",
			ctx:  Context{Channel: "foo"},
			want: "foo {missing}",
		},
		{
			name: "newline escape becomes a line break",
			tmpl: `line1\nline2`,
			ctx:  Context{},
			want: "line1\nline2",
		},
		{
			name: "newline escape next to placeholders",
			tmpl: `{channel}\n\n{title}`,
			ctx:  Context{Channel: "a", Title: "b"},
			want: "a\n\nb",
		},
		{
			name: "substituted values are not re-expanded",
			tmpl: "{title}",
			ctx:  Context{Title: `C:\new {game}`, Game: "x"},
			want: `C:\new {game}`,
		},
		{
			name: "stray brace before a placeholder",
			tmpl: "live :-{ {channel} now",
			ctx:  Context{Channel: "foo"},
			want: "live :-{ foo now",
		},
		{
			name: "doubled braces",
			tmpl: "{{channel}}",
			ctx:  Context{Channel: "foo"},
			want: "{foo}",
		},
		{
			name: "unclosed token before a placeholder",
			tmpl: "set {a, {title}",
			ctx:  Context{Title: "bar"},
			want: "set {a, bar",
		},
		{
			name: "stray brace before an unknown placeholder",
			tmpl: ":-{ {missing}",
			ctx:  Context{},
			want: ":-{ {missing}",
		},
		{
			name: "repeated placeholder",
			tmpl: "https://twitch.tv/{channel} ({channel})",
			ctx:  Context{Channel: "foo"},
			want: "https://twitch.tv/foo (foo)",
		},
		{
			name: "unterminated brace",
			tmpl: "{channel} is live {oops",
			ctx:  Context{Channel: "foo"},
			want: "foo is live {oops",
		},
		{
			name: "empty value",
			tmpl: "[{game}]",
			ctx:  Context{Game: ""},
			want: "[]",
		},
		{
			name: "no placeholders",
			tmpl: "plain text",
			ctx:  nil,
			want: "plain text",
		},
		{
			name: "nil context keeps tokens",
			tmpl: "{channel}",
			ctx:  nil,
			want: "{channel}",
		},
		{
			name: "emoji survive",
			tmpl: `{display_name} is now live on YouTube! 🔴\n\n📺 {title}`,
			ctx:  Context{DisplayName: "Kev", Title: "Speedrun"},
			want: "Kev is now live on YouTube! 🔴\n\n📺 Speedrun",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, tt.ctx))
		})
	}
}

func TestRender_EscapeAppliedRegardlessOfOrder(t *testing.T) {
	// the escape inside a value is left alone; only template text is expanded
	got := Render(`{a}\n{b}`, Context{"a": `x\ny`, "b": "z"})
	assert.Equal(t, "x\\ny\nz", got)
}

func TestMeasure(t *testing.T) {
	s := Measure("🎮 hi\nthere\n")
	assert.Equal(t, 11, s.Chars)
	assert.Equal(t, 2, s.Newlines)
}

func TestUnresolved(t *testing.T) {
	got := Unresolved(`{channel} {nope}\n{title} {nope} {other}`, Context{Channel: "c", Title: "t"})
	assert.Equal(t, []string{"nope", "other"}, got)

	assert.Empty(t, Unresolved("{channel}", Context{Channel: "c"}))
	assert.Empty(t, Unresolved("{unterminated", nil))
	assert.Equal(t, []string{"missing"}, Unresolved(":-{ {missing} {channel}", Context{Channel: "c"}))
}

func TestRenderPreview(t *testing.T) {
	p := RenderPreview(`{channel} is live!\n{title}`, Context{Channel: "foo", Title: "bar"})
	assert.Equal(t, "foo is live!\nbar", p.Text)
	assert.Equal(t, 16, p.Chars)
	assert.Equal(t, 1, p.Newlines)
	assert.True(t, p.Fits(280))
	assert.False(t, p.Fits(10))
	assert.True(t, p.Fits(0))
}
