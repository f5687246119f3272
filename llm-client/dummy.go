package llmclient

import (
	"context"
)

// DummyModelID is the model id served by DummyClient.
const DummyModelID = "dummy"

// DummyClient echoes the prompt back without any network access.
type DummyClient struct{}

func NewDummyClient() *DummyClient {
	return &DummyClient{}
}

func (c *DummyClient) SetModel(string) {}

func (c *DummyClient) Model() string {
	return DummyModelID
}

func (c *DummyClient) Call(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Completion{
		Provider:     ProviderDummy,
		Model:        DummyModelID,
		Text:         "DUMMY ECHO: " + req.UserMessage,
		FinishReason: "stop",
	}, nil
}
