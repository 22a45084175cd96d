package client

import "context"

// VisionClient is one prompt-plus-image round trip against a vision model
// backend. Implementations carry their own server URL and model name; the
// caller supplies the prompt and a base64-encoded image per query and gets
// the raw model text back.
type VisionClient interface {
	Query(ctx context.Context, prompt, imageB64 string) (string, error)
}
