package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedExchanger struct {
	sent      []string
	responses []string
	err       error
}

func (s *scriptedExchanger) Exchange(_ context.Context, request []byte) ([]byte, error) {
	s.sent = append(s.sent, string(request))
	if s.err != nil {
		return nil, s.err
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return []byte(resp), nil
}

func TestExchangeAll_PrintsEachResponse(t *testing.T) {
	ex := &scriptedExchanger{responses: []string{`{"info":"access granted"}`, `{"result":true}`}}
	var out bytes.Buffer

	err := exchangeAll(t.Context(), ex, [][]byte{[]byte(`{"password":"x"}`), []byte(`{"request":"lockNow"}`)}, &out, false)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"password":"x"}`, `{"request":"lockNow"}`}, ex.sent)
	assert.Equal(t, "{\"info\":\"access granted\"}\n{\"result\":true}\n", out.String())
}

func TestExchangeAll_Pretty(t *testing.T) {
	ex := &scriptedExchanger{responses: []string{`{"result":true}`}}
	var out bytes.Buffer

	require.NoError(t, exchangeAll(t.Context(), ex, [][]byte{[]byte(`{}`)}, &out, true))
	assert.Equal(t, "{\n\t\"result\": true\n}\n", out.String())
}

func TestExchangeAll_StopsOnError(t *testing.T) {
	boom := errors.New("connection reset")
	ex := &scriptedExchanger{err: boom}

	err := exchangeAll(t.Context(), ex, [][]byte{[]byte(`{}`), []byte(`{}`)}, &bytes.Buffer{}, false)
	require.ErrorIs(t, err, boom)
	assert.Len(t, ex.sent, 1)
}
