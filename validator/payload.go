package validator

import "encoding/json"

// rawPayload mirrors the ingested object format fetched from a homeserver:
// {"x": <u32>, "y": <u32>, "color": <u8>}. Extra fields are ignored;
// missing fields are a BadPayload rejection.
type rawPayload struct {
	X     *int `json:"x"`
	Y     *int `json:"y"`
	Color *int `json:"color"`
}

// ParsePayload decodes a homeserver object body into X/Y/Color. It does not
// set PlacedAt; the caller fills that in from the decoded event id.
func ParsePayload(body []byte) (x, y, color int, ok bool) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, 0, 0, false
	}
	if raw.X == nil || raw.Y == nil || raw.Color == nil {
		return 0, 0, 0, false
	}
	if *raw.X < 0 || *raw.Y < 0 {
		return 0, 0, 0, false
	}
	return *raw.X, *raw.Y, *raw.Color, true
}
