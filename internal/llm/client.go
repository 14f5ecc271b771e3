package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Options tune a single completion call. Providers ignore what they cannot honor.
type Options struct {
	Temperature *float32
	JSONMode    bool
}

type Option func(*Options)

// WithTemperature sets the sampling temperature for one call.
func WithTemperature(t float32) Option {
	return func(o *Options) { o.Temperature = &t }
}

// WithJSONMode asks the provider to return a single JSON object.
func WithJSONMode() Option {
	return func(o *Options) { o.JSONMode = true }
}

func ApplyOptions(opts []Option) Options {
	var o Options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type Client interface {
	Generate(ctx context.Context, messages []Message, opts ...Option) (Response, error)
}
