package dispatch

import (
	"fmt"
	"path"
	"strings"

	"ttsbot/backend/internal/state"
)

// formatKey selects a row of the sentence table
type formatKey struct {
	named   bool
	text    bool
	link    bool
	files   bool
	forward bool
}

// sentenceTable covers every combination of announced name, remaining text, link,
// attachments and message kind. Placeholders: {name} {text} {files} {said} {says}.
// An empty template means there is nothing to say.
var sentenceTable = map[formatKey]string{
	// Regular messages, speaker announced
	{named: true, text: true}:                          "{name} {said} {text}",
	{named: true, text: true, link: true}:              "{name} sent a link and {said} {text}",
	{named: true, text: true, files: true}:             "{name} sent {files} and {said} {text}",
	{named: true, text: true, link: true, files: true}: "{name} sent a link, attached {files}, and {said} {text}",
	{named: true}:                          "",
	{named: true, link: true}:              "{name} sent a link",
	{named: true, files: true}:             "{name} sent {files}",
	{named: true, link: true, files: true}: "{name} sent a link and attached {files}",

	// Regular messages, no announcement
	{text: true}:                          "{text}",
	{text: true, link: true}:              "{text}. This message contained a link",
	{text: true, files: true}:             "{text}. This message contained {files}",
	{text: true, link: true, files: true}: "{text}. This message contained a link and {files}",
	{}:                                    "",
	{link: true}:                          "a link",
	{files: true}:                         "{files}",
	{link: true, files: true}:             "a link and {files}",

	// Forwards, speaker announced
	{forward: true, named: true, text: true}:                          "{name} sent a forwarded message that {says} {text}",
	{forward: true, named: true, text: true, link: true}:              "{name} sent a forwarded message with a link that {says} {text}",
	{forward: true, named: true, text: true, files: true}:             "{name} sent a forwarded message with {files} that {says} {text}",
	{forward: true, named: true, text: true, link: true, files: true}: "{name} sent a forwarded message with a link and {files} that {says} {text}",
	{forward: true, named: true}:                                      "{name} sent a forwarded message",
	{forward: true, named: true, link: true}:                          "{name} sent a forwarded message with a link",
	{forward: true, named: true, files: true}:                         "{name} sent a forwarded message with {files}",
	{forward: true, named: true, link: true, files: true}:             "{name} sent a forwarded message with a link and {files}",

	// Forwards, no announcement
	{forward: true, text: true}:                          "forwarded message that says {text}",
	{forward: true, text: true, link: true}:              "forwarded message with a link that says {text}",
	{forward: true, text: true, files: true}:             "forwarded message with {files} that says {text}",
	{forward: true, text: true, link: true, files: true}: "forwarded message with a link and {files} that says {text}",
	{forward: true}:                          "",
	{forward: true, link: true}:              "forwarded message with a link",
	{forward: true, files: true}:             "forwarded message with {files}",
	{forward: true, link: true, files: true}: "forwarded message with a link and {files}",
}

// formatSentence combines the pieces of a transformed message into the sentence to speak
func formatSentence(saidName, text string, containedURL bool, files string, kind state.MessageKind, newFormatting bool) string {
	key := formatKey{
		named:   saidName != "",
		text:    text != "",
		link:    containedURL,
		files:   files != "",
		forward: kind == state.MessageKindForward,
	}

	said, says := "said", "says"
	if newFormatting {
		said, says = "said:", "says:"
	}

	return strings.NewReplacer(
		"{name}", saidName,
		"{text}", text,
		"{files}", files,
		"{said}", said,
		"{says}", says,
	).Replace(sentenceTable[key])
}

// describeAttachments summarises attachments for speech, or returns "" when there are none
func describeAttachments(attachments []state.Attachment) string {
	switch len(attachments) {
	case 0:
		return ""
	case 1:
		return attachmentKind(attachments[0])
	default:
		return fmt.Sprintf("%d files", len(attachments))
	}
}

func attachmentKind(a state.Attachment) string {
	contentType := strings.ToLower(a.ContentType)
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "an image file"
	case strings.HasPrefix(contentType, "video/"):
		return "a video file"
	case strings.HasPrefix(contentType, "audio/"):
		return "an audio file"
	case strings.HasPrefix(contentType, "text/"):
		return "a text file"
	}

	switch strings.ToLower(path.Ext(a.Filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return "an image file"
	case ".mp4", ".mov", ".webm", ".mkv":
		return "a video file"
	case ".mp3", ".ogg", ".wav", ".flac", ".m4a":
		return "an audio file"
	case ".txt", ".md", ".log", ".csv":
		return "a text file"
	case ".zip", ".rar", ".7z", ".tar", ".gz":
		return "a compressed file"
	case ".pdf":
		return "a PDF file"
	}
	return "a file"
}
