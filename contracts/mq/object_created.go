package mq

import (
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
)

// ObjectCreatedPayload 对象存储写入事件，一个 record 对应一封原始邮件
type ObjectCreatedPayload struct {
	Records []ObjectRecord `json:"Records"`
}

type ObjectRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// ObjectRef is a decoded bucket/key pair.
type ObjectRef struct {
	Bucket string
	Key    string
}

// fan-out 通知会把事件包在 Message 字段里（JSON 字符串）；
// 部分投递方还会把单条 record 本身编码成字符串
type envelope struct {
	Message *string           `json:"Message"`
	Records []json.RawMessage `json:"Records"`
}

// ParseObjectCreated decodes an object-created event, unwrapping a fan-out
// envelope or string-encoded records when present.
func ParseObjectCreated(raw []byte) (ObjectCreatedPayload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ObjectCreatedPayload{}, err
	}

	if len(env.Records) == 0 && env.Message != nil {
		return ParseObjectCreated([]byte(*env.Message))
	}

	var p ObjectCreatedPayload
	for _, rec := range env.Records {
		var encoded string
		if err := json.Unmarshal(rec, &encoded); err == nil {
			inner, err := ParseObjectCreated([]byte(encoded))
			if err != nil {
				return ObjectCreatedPayload{}, fmt.Errorf("decode wrapped record: %w", err)
			}
			p.Records = append(p.Records, inner.Records...)
			continue
		}

		var r ObjectRecord
		if err := json.Unmarshal(rec, &r); err != nil {
			return ObjectCreatedPayload{}, err
		}
		p.Records = append(p.Records, r)
	}
	return p, nil
}

// Refs returns the records' object references with URL-decoded keys.
// Records without a bucket or key are skipped.
func (p ObjectCreatedPayload) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(p.Records))
	for _, r := range p.Records {
		bucket, key := r.S3.Bucket.Name, r.S3.Object.Key
		if bucket == "" || key == "" {
			continue
		}
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		refs = append(refs, ObjectRef{Bucket: bucket, Key: key})
	}
	return refs
}
