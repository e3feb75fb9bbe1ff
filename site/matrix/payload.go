package matrix

import "github.com/RunningKuma/matrix-on-vscode/jsonv"

// decodePayload turns a successful response body into a Value. An empty body
// yields Undefined, a {type, body} envelope is opened with the client codec,
// any other JSON is returned as parsed, and anything unparsable is returned
// as a string Value. It never fails.
func (c *Client) decodePayload(endpoint string, raw []byte) jsonv.Value {
	if len(raw) == 0 {
		return jsonv.Value{}
	}

	v, err := jsonv.Parse(raw)
	if err != nil {
		c.log.Debug().Str("endpoint", endpoint).Err(err).Msg("response is not JSON")
		return jsonv.Of(string(raw))
	}

	typ, okType := v.Get("type").Str()
	body, okBody := v.Get("body").Str()
	if !okType || !okBody {
		return v
	}

	if c.codec == nil {
		return v
	}
	decoded, ok := c.codec.Decode(typ, body)
	if !ok {
		c.log.Warn().Str("endpoint", endpoint).Str("type", typ).Msg("cannot decode envelope, using outer payload")
		c.metrics.decodeFailed(endpoint)
		return v
	}
	return decoded
}
