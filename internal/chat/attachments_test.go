package chat

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"parley/internal/types"
)

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestEncodeAttachments(t *testing.T) {
	attachments := []types.Attachment{
		{FileName: "cat.png", DataURL: dataURL("image/png", []byte{0x89, 0x50, 0x4e, 0x47})},
		{FileName: "notes.txt", MimeType: "text/plain", DataURL: "data:text/plain,hello%20world"},
	}
	wire, err := EncodeAttachments(attachments, DefaultAttachmentLimits())
	if err != nil {
		t.Fatalf("EncodeAttachments: %v", err)
	}
	if len(wire) != 2 {
		t.Fatalf("expected 2 wire attachments, got %+v", wire)
	}

	if wire[0].Type != "image" || wire[0].MimeType != "image/png" || wire[0].FileName != "cat.png" {
		t.Fatalf("unexpected image attachment: %+v", wire[0])
	}
	decoded, err := base64.StdEncoding.DecodeString(wire[0].Content)
	if err != nil || len(decoded) != 4 {
		t.Fatalf("expected round-trippable content, got %q err=%v", wire[0].Content, err)
	}

	if wire[1].Type != "file" || wire[1].MimeType != "text/plain" {
		t.Fatalf("unexpected text attachment: %+v", wire[1])
	}
	decoded, err = base64.StdEncoding.DecodeString(wire[1].Content)
	if err != nil || string(decoded) != "hello world" {
		t.Fatalf("expected url-escaped payload decoded, got %q err=%v", decoded, err)
	}
}

func TestEncodeAttachmentsUnpaddedBase64(t *testing.T) {
	// "hi" encodes to aGk= ; some producers drop the padding.
	attachments := []types.Attachment{
		{FileName: "h.txt", DataURL: "data:text/plain;base64,aGk"},
	}
	wire, err := EncodeAttachments(attachments, DefaultAttachmentLimits())
	if err != nil {
		t.Fatalf("EncodeAttachments: %v", err)
	}
	decoded, _ := base64.StdEncoding.DecodeString(wire[0].Content)
	if string(decoded) != "hi" {
		t.Fatalf("expected unpadded payload accepted, got %q", decoded)
	}
}

func TestEncodeAttachmentsLimits(t *testing.T) {
	big := dataURL("text/plain", []byte(strings.Repeat("x", 100)))
	tests := []struct {
		name        string
		attachments []types.Attachment
		limits      AttachmentLimits
		wantErr     error
	}{
		{
			name:        "per-file ceiling",
			attachments: []types.Attachment{{FileName: "a", DataURL: big}},
			limits:      AttachmentLimits{MaxFileBytes: 10, MaxFiles: 10, MaxTotalBytes: 1000},
			wantErr:     ErrAttachmentTooLarge,
		},
		{
			name: "file count ceiling",
			attachments: []types.Attachment{
				{FileName: "a", DataURL: big},
				{FileName: "b", DataURL: big},
			},
			limits:  AttachmentLimits{MaxFileBytes: 1000, MaxFiles: 1, MaxTotalBytes: 1000},
			wantErr: ErrTooManyAttachments,
		},
		{
			name: "combined ceiling",
			attachments: []types.Attachment{
				{FileName: "a", DataURL: big},
				{FileName: "b", DataURL: big},
			},
			limits:  AttachmentLimits{MaxFileBytes: 1000, MaxFiles: 10, MaxTotalBytes: 150},
			wantErr: ErrAttachmentsTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeAttachments(tt.attachments, tt.limits)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEncodeAttachmentsBadDataURL(t *testing.T) {
	tests := []string{
		"",
		"http://example.com/a.png",
		"data:image/png;base64",
		"data:image/png;base64,!!!not-base64!!!",
	}
	for _, raw := range tests {
		attachments := []types.Attachment{{FileName: "x", DataURL: raw}}
		if _, err := EncodeAttachments(attachments, DefaultAttachmentLimits()); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestEncodeAttachmentsEmpty(t *testing.T) {
	wire, err := EncodeAttachments(nil, DefaultAttachmentLimits())
	if err != nil || wire != nil {
		t.Fatalf("expected nil, nil for empty input, got %v %v", wire, err)
	}
}
