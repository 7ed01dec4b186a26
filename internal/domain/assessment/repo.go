package assessment

import "encoding/json"

func encodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
