package scoring

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/unicode/norm"
)

// SystemInstructions is sent to every provider as the system message. The
// reply contract it describes is what parseReply enforces.
const SystemInstructions = `You grade answers to questions.
Judge how correct and complete the answer is for the question.
Reply with a single JSON object and nothing else:
{"score": <integer from 0 to 100>, "explanation": "<one or two sentences>"}
0 means entirely wrong or empty, 100 means fully correct.`

// DefaultPromptTemplate renders the question and answer as the user message.
const DefaultPromptTemplate = `Question:
{{.Question}}

Answer:
{{.Answer}}`

// Prompter renders the user message for one submission.
type Prompter struct {
	tmpl *template.Template
}

// NewPrompter compiles tmpl. An empty template selects DefaultPromptTemplate.
func NewPrompter(tmpl string) (*Prompter, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultPromptTemplate
	}
	t, err := template.New("scorePrompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse score prompt template: %w", err)
	}
	return &Prompter{tmpl: t}, nil
}

// Render normalizes both texts to NFC and executes the template. Normalizing
// keeps visually identical submissions byte-identical on the wire.
func (p *Prompter) Render(question, answer string) (string, error) {
	data := struct {
		Question string
		Answer   string
	}{
		Question: normalizeText(question),
		Answer:   normalizeText(answer),
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute score prompt template: %w", err)
	}
	return buf.String(), nil
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
