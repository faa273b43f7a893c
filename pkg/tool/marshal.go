package tool

import "encoding/json"

// decodeArgs converts a raw map[string]any (decoded from the LLM's tool-call
// arguments JSON) into a typed Args struct via a JSON marshal/unmarshal
// round-trip. Simpler than a reflection-based field-by-field copy, and it
// reuses the json tags already required for schema generation.
func decodeArgs(args map[string]any, out any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func jsonUnmarshal(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
