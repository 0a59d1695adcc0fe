package shared

import (
	"net/rpc"
)

// EmbeddingRPCClient is the RPC client for embedding providers.
type EmbeddingRPCClient struct {
	client *rpc.Client
}

// Name returns the provider name.
func (c *EmbeddingRPCClient) Name() string {
	var resp string
	err := c.client.Call("Plugin.Name", new(interface{}), &resp)
	if err != nil {
		return ""
	}
	return resp
}

// EmbedArgs are the arguments for the EmbedText RPC call.
type EmbedArgs struct {
	Model string
	Text  string
}

// EmbedReply is the reply for the EmbedText RPC call.
type EmbedReply struct {
	Embedding []float32
	Error     string
}

// EmbedText embeds a single text with the given model.
func (c *EmbeddingRPCClient) EmbedText(model, text string) ([]float32, error) {
	var resp EmbedReply
	err := c.client.Call("Plugin.EmbedText", &EmbedArgs{Model: model, Text: text}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &PluginError{Message: resp.Error}
	}
	return resp.Embedding, nil
}

// Dimensions returns the embedding dimensions.
func (c *EmbeddingRPCClient) Dimensions() int {
	var resp int
	err := c.client.Call("Plugin.Dimensions", new(interface{}), &resp)
	if err != nil {
		return 0
	}
	return resp
}

// Close closes the provider.
func (c *EmbeddingRPCClient) Close() error {
	var resp string
	err := c.client.Call("Plugin.Close", new(interface{}), &resp)
	if err != nil {
		return err
	}
	if resp != "" {
		return &PluginError{Message: resp}
	}
	return nil
}

// EmbeddingRPCServer is the RPC server for embedding providers.
type EmbeddingRPCServer struct {
	Impl EmbeddingProvider
}

// Name returns the provider name.
func (s *EmbeddingRPCServer) Name(args interface{}, resp *string) error {
	*resp = s.Impl.Name()
	return nil
}

// EmbedText embeds a single text.
func (s *EmbeddingRPCServer) EmbedText(args *EmbedArgs, resp *EmbedReply) error {
	embedding, err := s.Impl.EmbedText(args.Model, args.Text)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}
	resp.Embedding = embedding
	return nil
}

// Dimensions returns the embedding dimensions.
func (s *EmbeddingRPCServer) Dimensions(args interface{}, resp *int) error {
	*resp = s.Impl.Dimensions()
	return nil
}

// Close closes the provider.
func (s *EmbeddingRPCServer) Close(args interface{}, resp *string) error {
	err := s.Impl.Close()
	if err != nil {
		*resp = err.Error()
	}
	return nil
}

// PluginError represents an error from a plugin.
type PluginError struct {
	Message string
}

func (e *PluginError) Error() string {
	return e.Message
}
