package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"parley/internal/types"
)

// Attachment ceilings are enforced locally before any request is issued;
// a violation surfaces as a user-facing limit error.
type AttachmentLimits struct {
	MaxFileBytes  int64
	MaxFiles      int
	MaxTotalBytes int64
}

func DefaultAttachmentLimits() AttachmentLimits {
	return AttachmentLimits{
		MaxFileBytes:  5 << 20,
		MaxFiles:      10,
		MaxTotalBytes: 20 << 20,
	}
}

var (
	ErrAttachmentTooLarge  = errors.New("attachment exceeds the per-file size limit")
	ErrTooManyAttachments  = errors.New("too many attachments")
	ErrAttachmentsTooLarge = errors.New("attachments exceed the combined size limit")
)

// WireAttachment is the shape sent on chat.send. Content is standard
// base64 of the raw file bytes, not a line-oriented encoding.
type WireAttachment struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
	Content  string `json:"content"`
}

// EncodeAttachments decodes each input attachment's data URL into raw
// bytes, applies the local ceilings, and builds the wire shapes.
func EncodeAttachments(attachments []types.Attachment, limits AttachmentLimits) ([]WireAttachment, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if limits.MaxFiles > 0 && len(attachments) > limits.MaxFiles {
		return nil, fmt.Errorf("%w: %d files, limit %d", ErrTooManyAttachments, len(attachments), limits.MaxFiles)
	}

	wire := make([]WireAttachment, 0, len(attachments))
	var total int64
	for _, attachment := range attachments {
		data, mimeType, err := decodeDataURL(attachment.DataURL)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", attachment.FileName, err)
		}
		if attachment.MimeType != "" {
			mimeType = attachment.MimeType
		}
		size := int64(len(data))
		if limits.MaxFileBytes > 0 && size > limits.MaxFileBytes {
			return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrAttachmentTooLarge, attachment.FileName, size, limits.MaxFileBytes)
		}
		total += size
		if limits.MaxTotalBytes > 0 && total > limits.MaxTotalBytes {
			return nil, fmt.Errorf("%w: %d bytes combined, limit %d", ErrAttachmentsTooLarge, total, limits.MaxTotalBytes)
		}

		kind := attachment.Type
		if kind == "" {
			kind = "file"
			if strings.HasPrefix(mimeType, "image/") {
				kind = "image"
			}
		}
		wire = append(wire, WireAttachment{
			Type:     kind,
			MimeType: mimeType,
			FileName: attachment.FileName,
			Content:  base64.StdEncoding.EncodeToString(data),
		})
	}
	return wire, nil
}

// decodeDataURL decodes "data:<mime>[;base64],<payload>" into raw bytes
// and the declared mime type.
func decodeDataURL(dataURL string) ([]byte, string, error) {
	raw := strings.TrimSpace(dataURL)
	if !strings.HasPrefix(raw, "data:") {
		return nil, "", errors.New("not a data url")
	}
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return nil, "", errors.New("malformed data url")
	}
	meta := raw[len("data:"):comma]
	payload := raw[comma+1:]

	mimeType := meta
	isBase64 := false
	if idx := strings.IndexByte(meta, ';'); idx >= 0 {
		mimeType = meta[:idx]
		isBase64 = strings.Contains(meta[idx:], "base64")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some producers emit unpadded payloads.
			data, err = base64.RawStdEncoding.DecodeString(payload)
			if err != nil {
				return nil, "", fmt.Errorf("decode base64: %w", err)
			}
		}
		return data, mimeType, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode payload: %w", err)
	}
	return []byte(decoded), mimeType, nil
}
