package gemini

// GenerateRequest is the generateContent request body
type GenerateRequest struct {
	Contents          []Content `json:"contents"`
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
}

// Content is one turn of the conversation
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a text fragment of a Content
type Part struct {
	Text string `json:"text"`
}

// NewTextRequest builds a single-turn request for prompt.
// The system instruction is only set when systemPrompt is not empty.
func NewTextRequest(prompt, systemPrompt string) GenerateRequest {
	req := GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
	}
	if systemPrompt != "" {
		req.SystemInstruction = systemInstruction(systemPrompt)
	}
	return req
}

func systemInstruction(text string) *Content {
	return &Content{Parts: []Part{{Text: text}}}
}
