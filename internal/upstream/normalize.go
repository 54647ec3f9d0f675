package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const defaultRejectMessage = "Request rejected by upstream API"

// TokenResult is the canonical shape of a token issuance response.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
}

// parseTokenResponse accepts both the nested {data:{accessToken,refreshToken}}
// and the flat {access_token,refresh_token} shapes. Any JSON object without a
// usable string token is ErrNoAccessToken; anything else is malformed.
func parseTokenResponse(body []byte) (TokenResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return TokenResult{}, ErrMalformedResponse
	}

	if rawData, ok := fields["data"]; ok {
		var data map[string]json.RawMessage
		if err := json.Unmarshal(rawData, &data); err == nil {
			if access := stringField(data, "accessToken"); access != "" {
				return TokenResult{AccessToken: access, RefreshToken: stringField(data, "refreshToken")}, nil
			}
		}
	}
	if access := stringField(fields, "access_token"); access != "" {
		return TokenResult{AccessToken: access, RefreshToken: stringField(fields, "refresh_token")}, nil
	}
	return TokenResult{}, ErrNoAccessToken
}

// stringField returns fields[key] when it is a JSON string, "" otherwise.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// parseAgentList accepts either a bare array or an {agents:[...]} wrapper and
// returns the agent objects as raw JSON.
func parseAgentList(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrMalformedResponse
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, ErrMalformedResponse
		}
		return items, nil
	}

	var wrapper struct {
		Agents *[]json.RawMessage `json:"agents"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil || wrapper.Agents == nil {
		return nil, ErrMalformedResponse
	}
	return *wrapper.Agents, nil
}

// WriteResult is the canonical outcome of an upstream add or edit call.
type WriteResult struct {
	// ExternalID is the upstream agent id, when the body carried one.
	ExternalID string
	// Raw is the unmodified upstream body.
	Raw json.RawMessage
}

// parseWriteResponse interprets a 2xx add/edit body.
func parseWriteResponse(body []byte) (*WriteResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, ErrMalformedResponse
	}

	if raw, ok := fields["success"]; ok {
		var success bool
		if err := json.Unmarshal(raw, &success); err == nil && !success {
			return nil, &RejectedError{Message: errorText(fields, defaultRejectMessage)}
		}
	}

	result := &WriteResult{Raw: json.RawMessage(body)}
	result.ExternalID = idFrom(fields)
	if result.ExternalID == "" {
		if rawData, ok := fields["data"]; ok {
			var data map[string]json.RawMessage
			if err := json.Unmarshal(rawData, &data); err == nil {
				result.ExternalID = idFrom(data)
			}
		}
	}
	return result, nil
}

// errorText extracts the upstream-supplied error text from "error" or "message".
func errorText(fields map[string]json.RawMessage, fallback string) string {
	for _, key := range []string{"error", "message"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return fallback
}

func idFrom(fields map[string]json.RawMessage) string {
	for _, key := range []string{"id", "agent_id"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if id := scalarString(raw); id != "" {
			return id
		}
	}
	return ""
}

// scalarString renders a JSON string or number as a string.
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}
