package ws

import "encoding/json"

// Deserialize decodes a client frame into its registered command and returns the
// frame's ref so errors can be correlated even when the payload is bad.
func Deserialize(jsonBytes []byte) (Command, string, error) {
	var wrapper SerializedMessage
	if err := json.Unmarshal(jsonBytes, &wrapper); err != nil {
		return nil, "", err
	}

	cmd, err := CreateCommand(wrapper.Type, typeRegistry)
	if err != nil {
		return nil, wrapper.Ref, err
	}
	if len(wrapper.Payload) > 0 && string(wrapper.Payload) != "null" {
		if err := json.Unmarshal(wrapper.Payload, cmd); err != nil {
			return nil, wrapper.Ref, err
		}
	}
	return cmd, wrapper.Ref, nil
}
