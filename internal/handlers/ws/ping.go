package ws

// MessagePing is a keepalive ping from client
type MessagePing struct{}

func (cmd *MessagePing) GetType() string {
	return "ping"
}

func (cmd *MessagePing) Process(ctx *CommandContext, ref string) error {
	ctx.Hub.SendJSON(ctx.Client, Reply{Type: "pong", Ref: ref})
	return nil
}

// MessagePong lets clients answer a server ping at the application level.
type MessagePong struct{}

func (cmd *MessagePong) GetType() string {
	return "pong"
}

func (cmd *MessagePong) Process(ctx *CommandContext, ref string) error {
	return nil
}
