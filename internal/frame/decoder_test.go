package frame

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoder_ReadsFramesInOrder(t *testing.T) {
	input := `{"type":"system","subtype":"init"}` + "\n" +
		`{"type":"assistant","message":{"role":"assistant"}}` + "\n" +
		`{"type":"result","subtype":"success"}` + "\n"

	dec := NewDecoder(strings.NewReader(input), 0)

	env, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "system", env.Data["type"])

	env, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, "assistant", env.Data["type"])

	env, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, "result", env.Data["type"])

	_, err = dec.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_SkipsBlankLines(t *testing.T) {
	input := "\n\n" + `{"type":"system"}` + "\n\n" + `{"type":"result"}` + "\n"

	dec := NewDecoder(strings.NewReader(input), 0)

	env, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "system", env.Data["type"])

	env, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, "result", env.Data["type"])

	_, err = dec.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_MalformedLineIsNotTerminal(t *testing.T) {
	input := "not json\n" + `{"type":"result"}` + "\n"

	dec := NewDecoder(strings.NewReader(input), 0)

	_, err := dec.Next()

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)

	env, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "result", env.Data["type"])
}

func TestDecoder_OversizedLineIsTerminal(t *testing.T) {
	big := `{"pad":"` + strings.Repeat("a", 256) + `"}` + "\n"

	dec := NewDecoder(strings.NewReader(big), 64)

	_, err := dec.Next()
	require.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestDecoder_FinalLineWithoutNewline(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"type":"result"}`), 0)

	env, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "result", env.Data["type"])

	_, err = dec.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestLineReader(t *testing.T) {
	lr := NewLineReader(strings.NewReader("warn: low disk\npanic elsewhere\n"))

	line, err := lr.Next()
	require.NoError(t, err)
	require.Equal(t, "warn: low disk", line)

	line, err = lr.Next()
	require.NoError(t, err)
	require.Equal(t, "panic elsewhere", line)

	_, err = lr.Next()
	require.ErrorIs(t, err, io.EOF)
}
