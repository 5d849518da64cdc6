package wsclient

import (
	"net/url"
	"strconv"
	"strings"
)

// DeriveStreamURL maps baseURL's scheme http(s)→ws(s), ensures the
// path ends in /v1/stream (without duplicating it), and sets the
// token query parameter to token while preserving every other query
// parameter (spec.md §4.1 "URL derivation"). It is idempotent:
// feeding the output back in with the same token returns the same
// string.
//
// sinceSeq is optional (zero or one value): when given, a
// since_seq query parameter is set so a reconnect asks the
// coordination service to replay anything broadcast after that
// sequence number instead of silently starting the stream fresh.
func DeriveStreamURL(baseURL, token string, sinceSeq ...ReplaySeq) (string, error) {
	raw := strings.TrimSpace(baseURL)

	var normalized string
	switch {
	case strings.HasPrefix(raw, "wss://") || strings.HasPrefix(raw, "ws://"):
		normalized = raw
	case strings.HasPrefix(raw, "https://"):
		normalized = "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		normalized = "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		normalized = "wss://" + raw
	}

	u, err := url.Parse(normalized)
	if err != nil {
		return "", err
	}

	path := strings.TrimRight(u.Path, "/")
	switch {
	case path == "":
		path = "/v1/stream"
	case strings.HasSuffix(path, "/v1/stream"):
		// already correct
	case strings.HasSuffix(path, "/v1"):
		path += "/stream"
	default:
		path += "/v1/stream"
	}
	u.Path = path

	q := u.Query()
	q.Del("token")
	q.Set("token", token)
	q.Del("since_seq")
	if len(sinceSeq) > 0 {
		q.Set("since_seq", strconv.FormatUint(uint64(sinceSeq[0]), 10))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
