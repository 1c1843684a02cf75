package streaming_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adred-codev/eventbroker/internal/streaming"
	"github.com/adred-codev/eventbroker/internal/wire"
)

func TestWriteBatch_KeepAlive(t *testing.T) {
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)

	n, err := streaming.WriteBatch(sink, wire.Cursor{Partition: "0", Offset: "000"}, nil)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	require.Equal(t, `{"cursor":{"partition":"0","offset":"000"}}`+"\n", buf.String())
}

func TestWriteBatch_SingleEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)

	_, err := streaming.WriteBatch(sink, wire.Cursor{Partition: "0", Offset: "001"}, [][]byte{[]byte(`{"a":1}`)})
	require.NoError(t, err)

	require.Equal(t, `{"cursor":{"partition":"0","offset":"001"},"events":[{"a":1}]}`+"\n", buf.String())
}

func TestWriteBatch_MultipleEvents_NoTrailingComma(t *testing.T) {
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)

	events := [][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`), []byte(`{"a":3}`)}
	_, err := streaming.WriteBatch(sink, wire.Cursor{Partition: "0", Offset: "003"}, events)
	require.NoError(t, err)

	want := `{"cursor":{"partition":"0","offset":"003"},"events":[{"a":1},{"a":2},{"a":3}]}` + "\n"
	require.Equal(t, want, buf.String())
	require.False(t, strings.Contains(buf.String(), ",]"))
}

func TestWriteBatch_SingleNewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)

	_, err := streaming.WriteBatch(sink, wire.Cursor{Partition: "1", Offset: "010"}, [][]byte{[]byte(`{"x":true}`)})
	require.NoError(t, err)

	body := buf.String()
	require.Equal(t, 1, strings.Count(body, "\n"))
	require.True(t, strings.HasSuffix(body, "\n"))
}
