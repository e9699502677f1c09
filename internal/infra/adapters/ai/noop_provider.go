package ai

import "context"

// NoopProvider returns canned responses; useful for dev mode and tests.
type NoopProvider struct {
	Reply string
	Err   error
}

func (n *NoopProvider) Name() string { return "noop" }

func (n *NoopProvider) Chat(ctx context.Context, system, user string) (string, error) {
	if n.Err != nil {
		return "", n.Err
	}
	return n.Reply, nil
}

func (n *NoopProvider) ChatWithFile(ctx context.Context, system, user string, data []byte, mimeType string) (string, error) {
	return n.Chat(ctx, system, user)
}
