package ws

import (
	"reflect"
)

var typeRegistry = map[string]reflect.Type{}

func init() {
	RegisterType(&RoomJoin{})
	RegisterType(&RoomLeave{})
	RegisterType(&TypingStart{})
	RegisterType(&TypingStop{})
	RegisterType(&MessageSend{})
	RegisterType(&MessageEdit{})
	RegisterType(&MessageDelete{})
	RegisterType(&MessagesRead{})
	RegisterType(&MessagePing{})
	RegisterType(&MessagePong{})
}

func RegisterType(cmd Command) {
	typeRegistry[cmd.GetType()] = reflect.TypeOf(cmd).Elem()
}

// GetTypeRegistry returns the type registry for testing
func GetTypeRegistry() map[string]reflect.Type {
	return typeRegistry
}
