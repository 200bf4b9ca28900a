package core

import (
	"net/http"
	"strings"

	"gwi.com/ai-chat/internal/utils"
)

type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// ContentType is the declared MIME type, or a sniffed one when none was
// declared.
func (a *Attachment) ContentType() string {
	if a.MimeType != "" {
		return strings.ToLower(a.MimeType)
	}
	return http.DetectContentType(a.Data)
}

func (a *Attachment) IsImage() bool {
	return len(a.Data) > 0 && strings.HasPrefix(a.ContentType(), "image/")
}

func (a *Attachment) DataURI() string {
	return utils.EncodeDataURI(a.ContentType(), a.Data)
}

func validateAttachment(a *Attachment) error {
	if a == nil {
		return nil
	}
	if !a.IsImage() {
		return ErrMalformedAttachment
	}
	return nil
}
