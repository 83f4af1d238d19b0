package relay

import "encoding/json"

func decodeJSON(payload []byte, out any) error {
	return json.Unmarshal(payload, out)
}
