// Package openaicompat opens chat completion event streams against any
// OpenAI-compatible API and feeds the body to the streaming aggregator.
//
// Usage:
//
//	c := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "openai",
//	    APIKey:        cfg.Provider.APIKey,
//	    BaseURL:       "https://api.openai.com",
//	    DefaultModel:  "gpt-4o-mini",
//	    HeaderTimeout: 30 * time.Second,
//	}, logger)
//
//	text, err := c.Stream(ctx, llm.NewPromptRequest("", "", "hello"),
//	    func(acc string) { fmt.Print(acc) })
//
// Non-2xx responses are mapped to *types.Error by providers.MapHTTPError,
// a response without a body yields types.ErrStreamMissing, and read
// failures after the stream started surface from Stream as
// types.ErrStreamTransport together with the partial text.
package openaicompat
