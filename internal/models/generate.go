package models

// GenerateRequest is the provider-independent input to a generation call.
// System carries the persona/instruction preamble; Prompt carries the
// assembled user-facing prompt. MaxTokens bounds the output budget; zero
// means the provider default.
type GenerateRequest struct {
	System    string
	Prompt    string
	MaxTokens int32
}

// GenerateResponse is the provider-independent result of a generation call.
type GenerateResponse struct {
	Text string
}
