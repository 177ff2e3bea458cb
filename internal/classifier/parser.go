// Package classifier interprets model output as a classification result.
package classifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"mailtriage/internal/model"
)

const (
	fieldWorthReading = "worth_reading"
	fieldReason       = "reason"
	fieldForwardLink  = "gmail_forward_confirm_link"
	fieldEmail        = "email"
)

// Parse turns raw model text into a Result. The text is first decoded as
// JSON directly, then through Repair. A non-empty forwarding link always
// wins over the attention fields. Failures wrap model.ErrUnparsableResponse.
func Parse(text string) (model.Result, error) {
	fields, err := decode(text)
	if err != nil {
		candidate, ok := Repair(text)
		if !ok {
			return nil, fmt.Errorf("%w: no JSON object in response", model.ErrUnparsableResponse)
		}
		if fields, err = decode(candidate); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrUnparsableResponse, err)
		}
	}
	return toResult(fields)
}

func decode(text string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("response is not an object")
	}
	return fields, nil
}

func toResult(fields map[string]any) (model.Result, error) {
	if link := strictString(fields, fieldForwardLink); link != "" {
		if !isAbsoluteURL(link) {
			return nil, fmt.Errorf("%w: invalid confirmation link %q", model.ErrUnparsableResponse, link)
		}
		return model.ForwardConfirmation{
			TargetEmail: strictString(fields, fieldEmail),
			ConfirmURL:  link,
		}, nil
	}

	return model.Attention{
		WorthReading: boolField(fields, fieldWorthReading),
		Reason:       stringField(fields, fieldReason),
	}, nil
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// strictString ignores non-string values such as false or 0.
func strictString(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return strings.TrimSpace(v)
}

// 兼容模型把布尔值写成字符串 "true"/"false"
func boolField(fields map[string]any, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}
