package classifier

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want model.Result
	}{
		{
			name: "valid attention",
			text: `{"worth_reading": true, "reason": "Invoice overdue"}`,
			want: model.Attention{WorthReading: true, Reason: "Invoice overdue"},
		},
		{
			name: "unquoted reason",
			text: `{"worth_reading": true, "reason": Hello, need your input}`,
			want: model.Attention{WorthReading: true, Reason: "Hello, need your input"},
		},
		{
			name: "forward link wins",
			text: `{"worth_reading": false, "gmail_forward_confirm_link": "https://x/y", "email": "a@gmail.com", "reason": "n/a"}`,
			want: model.ForwardConfirmation{TargetEmail: "a@gmail.com", ConfirmURL: "https://x/y"},
		},
		{
			name: "null link is attention",
			text: `{"worth_reading": true, "reason": "r", "gmail_forward_confirm_link": null, "email": null}`,
			want: model.Attention{WorthReading: true, Reason: "r"},
		},
		{
			name: "empty link is attention",
			text: `{"worth_reading": false, "reason": "r", "gmail_forward_confirm_link": ""}`,
			want: model.Attention{WorthReading: false, Reason: "r"},
		},
		{
			name: "defaults",
			text: `{}`,
			want: model.Attention{WorthReading: false, Reason: ""},
		},
		{
			name: "string boolean",
			text: `{"worth_reading": "true", "reason": "r"}`,
			want: model.Attention{WorthReading: true, Reason: "r"},
		},
		{
			name: "surrounded by prose",
			text: "Sure! Here is my answer:\n{\"worth_reading\": false, \"reason\": \"newsletter\"}\nLet me know.",
			want: model.Attention{WorthReading: false, Reason: "newsletter"},
		},
		{
			name: "code fence",
			text: "```json\n{\"worth_reading\": true, \"reason\": \"meeting moved\"}\n```",
			want: model.Attention{WorthReading: true, Reason: "meeting moved"},
		},
		{
			name: "unterminated reason",
			text: `{"worth_reading": true, "reason": "Boss needs the report}`,
			want: model.Attention{WorthReading: true, Reason: "Boss needs the report"},
		},
		{
			name: "bare reason on its own line",
			text: "{\n  \"worth_reading\": true,\n  \"reason\": Contract needs a signature,\n  \"email\": null\n}",
			want: model.Attention{WorthReading: true, Reason: "Contract needs a signature"},
		},
		{
			name: "inner quotes in reason",
			text: `{"worth_reading": true, "reason": "He said "urgent" twice"}`,
			want: model.Attention{WorthReading: true, Reason: `He said "urgent" twice`},
		},
		{
			name: "skips non key-value braces",
			text: `Template {x} then {"worth_reading": true, "reason": "ok"}`,
			want: model.Attention{WorthReading: true, Reason: "ok"},
		},
		{
			name: "braces inside strings",
			text: `note: {"worth_reading": false, "reason": "uses {curly} text"} trailing`,
			want: model.Attention{WorthReading: false, Reason: "uses {curly} text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unparsable(t *testing.T) {
	for _, text := range []string{
		"",
		"I cannot help with that.",
		"{not json at all}",
		`[1, 2, 3]`,
		`{"worth_reading": true, "reason": "x", "gmail_forward_confirm_link": "not a url"}`,
		`{"gmail_forward_confirm_link": "/relative/path", "email": "a@b.c"}`,
	} {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrUnparsableResponse))
		})
	}
}

func TestParse_IdempotentOnCanonicalJSON(t *testing.T) {
	results := []model.Result{
		model.Attention{WorthReading: true, Reason: `quotes "inside" and \ backslash`},
		model.Attention{WorthReading: false, Reason: ""},
		model.ForwardConfirmation{TargetEmail: "a@gmail.com", ConfirmURL: "https://mail.example.com/confirm?x=1&y=2"},
	}

	for _, r := range results {
		data, err := json.Marshal(r)
		require.NoError(t, err)

		got, err := Parse(string(data))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestRepair(t *testing.T) {
	_, ok := Repair("no braces here")
	assert.False(t, ok)

	out, ok := Repair(`x {"reason": null, "worth_reading": true} y`)
	require.True(t, ok)
	assert.Equal(t, `{"reason": null, "worth_reading": true}`, out)

	out, ok = Repair(`{"worth_reading": true, "reason": Said \ and "hi"}`)
	require.True(t, ok)
	assert.Equal(t, `{"worth_reading": true, "reason": "Said \\ and \"hi\""}`, out)
}
