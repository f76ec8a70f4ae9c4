package pipeline

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"memorial/internal"
	"memorial/internal/input"
	"memorial/internal/logging"
	"memorial/internal/parser"
)

// MailRoster is what a mail contributes: headers for detection and every
// roster document found in attachments or the body.
type MailRoster struct {
	Subject         string
	Text            string
	HTML            string
	AttachmentNames []string
	Documents       []input.Document
}

func ExtractRosterFromMailRaw(raw []byte, enc input.Encoding, logger *zap.Logger) (MailRoster, error) {
	logger = logging.OrNop(logger)
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return MailRoster{}, err
	}

	out := MailRoster{Subject: env.GetHeader("Subject"), Text: env.Text, HTML: env.HTML}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.AttachmentNames = append(out.AttachmentNames, filename)
		if _, err := input.KindOf(filename); err != nil {
			continue
		}
		doc, err := input.LoadBytes(filename, att.Content, enc)
		if err != nil {
			logger.Warn("skipping attachment", zap.String("attachment", filename), zap.Error(err))
			continue
		}
		out.Documents = append(out.Documents, doc)
	}

	if env.HTML != "" {
		if text, err := input.HTMLTableToCSV(env.HTML); err == nil {
			out.Documents = append(out.Documents, input.Document{
				Name: "body.html", Kind: internal.SourceHTML, Text: text, Encoding: input.EncodingUTF8,
			})
		}
	}
	if len(out.Documents) == 0 {
		if text, ok := rosterFromBody(env.Text); ok {
			out.Documents = append(out.Documents, input.Document{
				Name: "body.txt", Kind: internal.SourceCSV, Text: text, Encoding: input.EncodingUTF8,
			})
		}
	}

	return out, nil
}

// rosterFromBody cuts a pasted roster out of a plain-text body. The text before
// the first record is dropped and an empty header line takes its place.
func rosterFromBody(text string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if parser.IsBoundary(strings.TrimSpace(line)) {
			return "\n" + strings.Join(lines[i:], "\n"), true
		}
	}
	return "", false
}
