package protocol

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Well-known response fields.
const (
	FieldResult    = "result"
	FieldInfo      = "info"
	FieldError     = "error"
	FieldWarning   = "warning"
	FieldAttention = "attention"
)

// Response is a JSON object whose fields keep the order they were first set in.
type Response struct {
	raw []byte
}

// NewResponse returns an empty response.
func NewResponse() *Response {
	return &Response{raw: []byte("{}")}
}

// Set stores value under key. Setting an existing key replaces its value in
// place. Values that cannot be encoded are dropped.
func (r *Response) Set(key string, value any) {
	raw, err := sjson.SetBytes(r.raw, escapeKey(key), value)
	if err != nil {
		return
	}
	r.raw = raw
}

// Get returns the value stored under key.
func (r *Response) Get(key string) gjson.Result {
	return gjson.GetBytes(r.raw, escapeKey(key))
}

// Has reports whether key has been set.
func (r *Response) Has(key string) bool {
	return r.Get(key).Exists()
}

// Keys returns the field names in order.
func (r *Response) Keys() []string {
	var keys []string
	gjson.ParseBytes(r.raw).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

// Bytes returns the compact JSON encoding.
func (r *Response) Bytes() []byte {
	return append([]byte(nil), r.raw...)
}

func (r *Response) String() string {
	return string(r.raw)
}

// Format renders the response for the wire: tab-indented when indent is set,
// compact otherwise. The result never ends in a newline.
func (r *Response) Format(indent bool) []byte {
	return Format(r.raw, indent)
}

// Format renders raw JSON tab-indented or compact.
func Format(raw []byte, indent bool) []byte {
	var out []byte
	if indent {
		out = pretty.PrettyOptions(raw, &pretty.Options{Width: 80, Indent: "\t"})
	} else {
		out = pretty.Ugly(raw)
	}
	return []byte(strings.TrimRight(string(out), "\n"))
}

// escapeKey protects characters sjson and gjson treat as path syntax.
func escapeKey(key string) string {
	if !strings.ContainsAny(key, `.*?|#@\!=<>%`) {
		return key
	}
	var b strings.Builder
	for _, c := range key {
		if strings.ContainsRune(`.*?|#@\!=<>%`, c) {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
