// Package sanitizer turns raw RFC 5322 messages into plain-text
// NormalizedEmail records.
package sanitizer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// BodySource records which part the body was taken from.
type BodySource string

const (
	BodyFromPlain BodySource = "plain"
	BodyFromHTML  BodySource = "html"
	BodyNone      BodySource = "none"
)

type Normalizer struct {
	logger *zap.Logger
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize decodes raw into a NormalizedEmail. The body is the first
// inline text/plain part in document order, else the first text/html part
// reduced to text. Attachments are never used as the body. A message
// without either yields an empty body.
func (n *Normalizer) Normalize(raw []byte) (model.NormalizedEmail, error) {
	email, source, err := normalize(raw)
	if err != nil {
		return model.NormalizedEmail{}, err
	}

	metrics.IncrementEmailNormalized(string(source))
	n.logger.Debug("Email normalized",
		zap.String("from", email.FromAddress),
		zap.String("body_source", string(source)),
		zap.Int("body_length", len(email.Body)),
	)
	return email, nil
}

func normalize(raw []byte) (model.NormalizedEmail, BodySource, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && (mr == nil || !tolerable(err)) {
		return model.NormalizedEmail{}, BodyNone, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	defer mr.Close()

	email := model.NormalizedEmail{}
	readHeader(&mr.Header, &email)

	var htmlBody string
	haveHTML := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && (part == nil || !tolerable(err)) {
			// 后续分段损坏：保留已经解析出的内容
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()

		switch {
		case contentType == "text/plain" || contentType == "":
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			email.Body = string(body)
			return email, BodyFromPlain, nil
		case contentType == "text/html" && !haveHTML:
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			htmlBody = string(body)
			haveHTML = true
		}
	}

	if haveHTML {
		email.Body = HTMLToText(htmlBody)
		return email, BodyFromHTML, nil
	}
	return email, BodyNone, nil
}

func readHeader(h *mail.Header, email *model.NormalizedEmail) {
	if subject, err := h.Subject(); err == nil {
		email.Subject = subject
	} else {
		email.Subject = h.Get("Subject")
	}

	email.FromDisplay, email.FromAddress = firstAddress(h, "From")

	_, to := firstAddress(h, "To")
	email.To = strings.ToLower(strings.TrimSpace(to))

	if date, err := h.Date(); err == nil {
		email.Timestamp = date
	}
}

// firstAddress splits the first address of key into display name and
// address. Unparsable values fall back to the raw header text as address.
func firstAddress(h *mail.Header, key string) (string, string) {
	list, err := h.AddressList(key)
	if err == nil && len(list) > 0 {
		return list[0].Name, list[0].Address
	}

	raw, textErr := h.Text(key)
	if textErr != nil {
		raw = h.Get(key)
	}
	return "", strings.TrimSpace(raw)
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
