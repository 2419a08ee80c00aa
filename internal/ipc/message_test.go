package ipc

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(Stop()))
	require.NoError(t, enc.Encode(StatusReply("job-1", true)))
	require.NoError(t, enc.Encode(Ack(TagStop, true)))

	dec := NewDecoder(&buf)

	m, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, TagStop, m.Tag)

	m, err = dec.Decode()
	require.NoError(t, err)
	require.Equal(t, TagStatusReply, m.Tag)
	require.Equal(t, "job-1", m.CurrentJob)
	require.True(t, m.Running)

	m, err = dec.Decode()
	require.NoError(t, err)
	require.Equal(t, TagAck, m.Tag)
	require.Equal(t, TagStop, m.AckTag)
	require.True(t, m.OK)

	_, err = dec.Decode()
	require.ErrorIs(t, err, io.EOF)
}
