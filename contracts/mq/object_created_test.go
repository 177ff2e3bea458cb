package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectCreated(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []ObjectRef
	}{
		{
			name: "direct event",
			raw:  `{"Records":[{"s3":{"bucket":{"name":"raw-mail"},"object":{"key":"inbox/abc.eml"}}}]}`,
			want: []ObjectRef{{Bucket: "raw-mail", Key: "inbox/abc.eml"}},
		},
		{
			name: "wrapped in fan-out envelope",
			raw:  `{"Type":"Notification","Message":"{\"Records\":[{\"s3\":{\"bucket\":{\"name\":\"raw-mail\"},\"object\":{\"key\":\"a+b%40c.eml\"}}}]}"}`,
			want: []ObjectRef{{Bucket: "raw-mail", Key: "a b@c.eml"}},
		},
		{
			name: "string-encoded record",
			raw:  `{"Records":["{\"Records\":[{\"s3\":{\"bucket\":{\"name\":\"raw-mail\"},\"object\":{\"key\":\"x.eml\"}}}]}"]}`,
			want: []ObjectRef{{Bucket: "raw-mail", Key: "x.eml"}},
		},
		{
			name: "records without key are skipped",
			raw:  `{"Records":[{"s3":{"bucket":{"name":"raw-mail"},"object":{}}},{"s3":{"bucket":{"name":"b"},"object":{"key":"k"}}}]}`,
			want: []ObjectRef{{Bucket: "b", Key: "k"}},
		},
		{
			name: "no records",
			raw:  `{}`,
			want: []ObjectRef{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseObjectCreated([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Refs())
		})
	}
}

func TestParseObjectCreated_Invalid(t *testing.T) {
	_, err := ParseObjectCreated([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseObjectCreated([]byte(`{"Message":"also not json"}`))
	assert.Error(t, err)
}
