package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"studynerd/internal/logging"
	"studynerd/internal/tutor"
)

// mentorStatusFunction is the function declaration the model may call to
// report its judgment of learner understanding.
const mentorStatusFunction = "set_mentor_status"

// Config holds chat client settings.
type Config struct {
	APIKey          string
	Model           string
	MaxOutputTokens int32
	Timeout         time.Duration
}

// DefaultConfig returns sensible defaults for the tutoring client.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 8192,
		Timeout:         2 * time.Minute,
	}
}

// Client implements tutor.ChatBackend on the Gemini API.
type Client struct {
	genc    *genai.Client
	model   string
	maxOut  int32
	timeout time.Duration
}

// NewClient creates a new tutoring chat client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	maxOut := cfg.MaxOutputTokens
	if maxOut <= 0 {
		maxOut = 8192
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	genc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		genc:    genc,
		model:   model,
		maxOut:  maxOut,
		timeout: timeout,
	}, nil
}

// mentorStatusTool declares the set_mentor_status function.
func mentorStatusTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        mentorStatusFunction,
				Description: "Report whether the learner has demonstrated understanding of the current topic.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"status": {
							Type:        genai.TypeString,
							Enum:        []string{"searching", "satisfied"},
							Description: "satisfied when the learner has demonstrated understanding, searching otherwise",
						},
					},
					Required: []string{"status"},
				},
			},
		},
	}
}

// systemPrompt builds the tutoring system instruction for a knowledge level.
func systemPrompt(level tutor.KnowledgeLevel) string {
	var sb strings.Builder
	sb.WriteString("You are a patient programming mentor. Guide the learner toward understanding; ")
	sb.WriteString("never hand over finished code or complete answers. ")
	sb.WriteString("When a concept benefits from a diagram, include mermaid source in a fenced code block. ")
	sb.WriteString("When a concept benefits from an illustrative picture, emit a directive of the form ")
	sb.WriteString("[CONCEPTUAL_VISUAL: short description of the picture]. ")
	sb.WriteString("After assessing the learner's reply, call ")
	sb.WriteString(mentorStatusFunction)
	sb.WriteString(" with your judgment.\n\n")

	switch level {
	case tutor.LevelAdvanced:
		sb.WriteString("The learner is advanced: be terse, use precise terminology, skip basics.")
	case tutor.LevelIntermediate:
		sb.WriteString("The learner is intermediate: explain key steps, skip fundamentals.")
	default:
		sb.WriteString("The learner is a beginner: explain every step in plain language with small examples.")
	}
	return sb.String()
}

// buildContents converts conversation history plus the new message into
// genai contents. System-role turns are carried as user turns; the Gemini
// API only accepts user and model roles in contents.
func buildContents(history []tutor.Message, newMessage string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		var role genai.Role = genai.RoleUser
		if msg.Role == tutor.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(newMessage, genai.RoleUser))
	return contents
}

// Send executes one tutoring turn against the Gemini API.
func (c *Client) Send(ctx context.Context, history []tutor.Message, newMessage string, level tutor.KnowledgeLevel) (*tutor.Reply, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[Chat] Send: model=%s history=%d msg_len=%d level=%s", c.model, len(history), len(newMessage), level)

	resp, err := c.genc.Models.GenerateContent(ctx, c.model,
		buildContents(history, newMessage),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt(level), genai.RoleUser),
			Tools:             []*genai.Tool{mentorStatusTool()},
			Temperature:       genai.Ptr(float32(0.7)),
			MaxOutputTokens:   c.maxOut,
		},
	)
	if err != nil {
		logging.APIError("[Chat] Send failed after %v: %v", time.Since(startTime), err)
		return nil, classifyErr(err)
	}

	reply := parseReply(resp)
	logging.API("[Chat] Send completed in %v text_len=%d mentor=%q inline_image=%t",
		time.Since(startTime), len(reply.Text), reply.Mentor, reply.InlineImage != "")
	return reply, nil
}

// parseReply flattens a GenerateContent response into the tutor Reply shape:
// concatenated text parts, the declared mentor status if the model called
// set_mentor_status, and the first inline image part as a data URI.
func parseReply(resp *genai.GenerateContentResponse) *tutor.Reply {
	reply := &tutor.Reply{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return reply
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil && part.FunctionCall.Name == mentorStatusFunction {
			reply.Mentor = mentorStatusFromArgs(part.FunctionCall.Args)
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && reply.InlineImage == "" {
			reply.InlineImage = dataURI(part.InlineData.MIMEType, part.InlineData.Data)
		}
	}
	reply.Text = strings.TrimSpace(text.String())
	return reply
}

// mentorStatusFromArgs reads the status argument of a set_mentor_status
// call. Unknown values are treated as not declared.
func mentorStatusFromArgs(args map[string]any) tutor.MentorStatus {
	raw, _ := args["status"].(string)
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "satisfied":
		return tutor.MentorSatisfied
	case "searching":
		return tutor.MentorSearching
	default:
		return ""
	}
}

// dataURI encodes inline image bytes as a data URI the UI can reference.
func dataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
