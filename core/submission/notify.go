package submission

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"net/mail"
	texttmpl "text/template"

	"github.com/pkg/errors"

	"github.com/trezcool/plagiat/core"
	"github.com/trezcool/plagiat/core/plagiarism"
)

const flaggedSubject = "Submission flagged for review"

//go:embed templates
var templatesFS embed.FS

var (
	flaggedText = texttmpl.Must(texttmpl.New("flagged.txt").Option("missingkey=error").ParseFS(templatesFS, "templates/flagged.txt"))
	flaggedHTML = htmltmpl.Must(htmltmpl.New("flagged.gohtml").Option("missingkey=error").ParseFS(templatesFS, "templates/flagged.gohtml"))
)

type flaggedData struct {
	Submission
	AppName     string
	Highlighted htmltmpl.HTML // already escaped by plagiarism.Highlight
}

// flaggedMessage renders the notice sent when sub gets flagged.
// The student is the recipient when they left an email; the reviewer is copied (or the recipient otherwise).
func flaggedMessage(sub Submission, appName, reviewer string) (*core.EmailMessage, error) {
	msg := &core.EmailMessage{Subject: flaggedSubject}
	if sub.StudentEmail != "" {
		msg.To = append(msg.To, mail.Address{Name: sub.StudentName, Address: sub.StudentEmail})
	}
	if reviewer != "" {
		if len(msg.To) == 0 {
			msg.To = append(msg.To, mail.Address{Address: reviewer})
		} else {
			msg.Cc = append(msg.Cc, mail.Address{Address: reviewer})
		}
	}
	if !msg.HasRecipients() {
		return msg, nil
	}

	data := flaggedData{
		Submission:  sub,
		AppName:     appName,
		Highlighted: htmltmpl.HTML(plagiarism.Highlight(sub.Content, sub.MatchingChunks)),
	}
	var text, html bytes.Buffer
	if err := flaggedText.Execute(&text, data); err != nil {
		return nil, errors.Wrap(err, "rendering text notice")
	}
	if err := flaggedHTML.Execute(&html, data); err != nil {
		return nil, errors.Wrap(err, "rendering html notice")
	}
	msg.TextContent = text.String()
	msg.HTMLContent = html.String()
	return msg, nil
}
