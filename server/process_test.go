package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/reillywatson/modelresolver/blob"
	"github.com/reillywatson/modelresolver/resolver"
	"github.com/reillywatson/modelresolver/server/protocol"
	"github.com/reillywatson/modelresolver/storage/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noProbe = resolver.ProberFunc(func(context.Context, string) error {
	return errors.New("unreachable")
})

type harness struct {
	store *local.Memory
	blobs *blob.Registry
	proc  *Process
}

func newHarness() *harness {
	store := local.NewMemory("https://objects.test")
	blobs := blob.NewRegistry("http://localhost")
	r := resolver.New(store, blobs, resolver.WithProber(noProbe))
	return &harness{store: store, blobs: blobs, proc: NewProcess(r, blobs, store, nil)}
}

func encodeRequests(t *testing.T, values ...any) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	je := json.NewEncoder(&buf)
	for _, v := range values {
		require.NoError(t, je.Encode(v))
	}
	return &buf
}

func decodeResponses(t *testing.T, out *bytes.Buffer) []protocol.Response {
	t.Helper()
	var responses []protocol.Response
	jd := json.NewDecoder(out)
	for {
		var res protocol.Response
		err := jd.Decode(&res)
		if errors.Is(err, io.EOF) {
			return responses
		}
		require.NoError(t, err)
		responses = append(responses, res)
	}
}

func byID(responses []protocol.Response) map[int64][]protocol.Response {
	m := make(map[int64][]protocol.Response)
	for _, r := range responses {
		m[r.ID] = append(m[r.ID], r)
	}
	return m
}

func TestRunAdvertisesCommands(t *testing.T) {
	h := newHarness()
	var out bytes.Buffer

	require.NoError(t, h.proc.Run(context.Background(), strings.NewReader(""), &out))
	responses := decodeResponses(t, &out)
	require.Len(t, responses, 1)
	assert.Equal(t, []protocol.Cmd{protocol.CmdRegister, protocol.CmdResolve, protocol.CmdRelease, protocol.CmdClose}, responses[0].KnownCommands)
}

func TestRunResolveUpload(t *testing.T) {
	h := newHarness()
	handle := h.blobs.Register([]byte("glTF"), "model/gltf-binary")
	in := encodeRequests(t,
		protocol.Request{ID: 1, Command: protocol.CmdResolve, Reference: handle},
		protocol.Request{ID: 2, Command: protocol.CmdResolve, Reference: "https://cdn.example.com/x.glb"},
		protocol.Request{ID: 3, Command: protocol.CmdResolve},
	)
	var out bytes.Buffer

	require.NoError(t, h.proc.Run(context.Background(), in, &out))
	got := byID(decodeResponses(t, &out))

	upload := got[1]
	require.NotEmpty(t, upload)
	final := upload[len(upload)-1]
	assert.True(t, final.Final())
	assert.Empty(t, final.Err)
	assert.True(t, strings.HasPrefix(final.URL, "https://objects.test/product-models/model-"), final.URL)

	var progress []int
	var uploading []bool
	for _, r := range upload[:len(upload)-1] {
		if r.Progress != nil {
			progress = append(progress, *r.Progress)
		}
		if r.Uploading != nil {
			uploading = append(uploading, *r.Uploading)
		}
	}
	assert.Equal(t, []int{0, 10, 20, 40, 80, 100}, progress)
	assert.Equal(t, []bool{true, false}, uploading)

	require.Len(t, got[2], 1)
	assert.Equal(t, "https://cdn.example.com/x.glb", got[2][0].URL)

	require.Len(t, got[3], 1)
	assert.Equal(t, string(resolver.KindEmptyReference), got[3][0].ErrKind)
	assert.Equal(t, "No model reference provided", got[3][0].Err)
}

func TestRunResolveFailureKind(t *testing.T) {
	h := newHarness()
	handle := h.blobs.Register(nil, "")
	in := encodeRequests(t, protocol.Request{ID: 7, Command: protocol.CmdResolve, Reference: handle})
	var out bytes.Buffer

	require.NoError(t, h.proc.Run(context.Background(), in, &out))
	got := byID(decodeResponses(t, &out))[7]
	final := got[len(got)-1]
	assert.Equal(t, string(resolver.KindFetchBlobFailed), final.ErrKind)
	assert.Equal(t, "Invalid model file", final.Err)
}

func TestRunRegisterAndRelease(t *testing.T) {
	h := newHarness()
	body := []byte("glTF-binary")
	in := encodeRequests(t,
		protocol.Request{ID: 1, Command: protocol.CmdRegister, ContentType: "model/gltf-binary", BodySize: int64(len(body))},
		body,
	)
	var out bytes.Buffer

	require.NoError(t, h.proc.Run(context.Background(), in, &out))
	got := byID(decodeResponses(t, &out))
	require.Len(t, got[1], 1)
	handle := got[1][0].Reference
	assert.True(t, resolver.IsLocalBlob(handle), handle)

	b, err := h.blobs.Fetch(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, body, b.Data)

	in = encodeRequests(t,
		protocol.Request{ID: 2, Command: protocol.CmdRelease, Reference: handle},
		protocol.Request{ID: 3, Command: protocol.CmdRelease},
	)
	out.Reset()
	require.NoError(t, h.proc.Run(context.Background(), in, &out))
	got = byID(decodeResponses(t, &out))
	assert.True(t, got[2][0].Released)
	assert.Equal(t, ErrNoReference.Error(), got[3][0].Err)
	assert.Zero(t, h.blobs.Len())
}

func TestRunRejectsShortBody(t *testing.T) {
	h := newHarness()
	in := encodeRequests(t,
		protocol.Request{ID: 1, Command: protocol.CmdRegister, BodySize: 10},
		[]byte("short"),
	)
	var out bytes.Buffer

	err := h.proc.Run(context.Background(), in, &out)
	assert.ErrorContains(t, err, "only got 5 bytes of declared 10")
}

func TestRunUnknownCommandAndClose(t *testing.T) {
	h := newHarness()
	in := encodeRequests(t,
		protocol.Request{ID: 1, Command: "get"},
		protocol.Request{ID: 2, Command: protocol.CmdClose},
		protocol.Request{ID: 3, Command: protocol.CmdClose},
	)
	var out bytes.Buffer

	require.NoError(t, h.proc.Run(context.Background(), in, &out))
	got := byID(decodeResponses(t, &out))
	assert.Equal(t, ErrUnknownCommand.Error(), got[1][0].Err)
	assert.Empty(t, got[2][0].Err)
	assert.Empty(t, got[3][0].Err)
}
