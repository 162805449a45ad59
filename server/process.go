package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/reillywatson/modelresolver/blob"
	"github.com/reillywatson/modelresolver/resolver"
	"github.com/reillywatson/modelresolver/server/protocol"
	"github.com/reillywatson/modelresolver/storage/remote"

	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNoReference    = errors.New("no reference")
	ErrEmptyBody      = errors.New("empty body")
)

type Process struct {
	resolver *resolver.Resolver
	blobs    *blob.Registry
	store    remote.Storage
	logger   *slog.Logger
	closer   sync.Once
	errClose error
}

func NewProcess(r *resolver.Resolver, blobs *blob.Registry, store remote.Storage, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		resolver: r,
		blobs:    blobs,
		store:    store,
		logger:   logger,
	}
}

// Run serves requests read from in until EOF, writing responses to out.
func (p *Process) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	br := bufio.NewReader(in)
	jd := json.NewDecoder(br)

	bw := bufio.NewWriter(out)
	je := json.NewEncoder(bw)
	caps := []protocol.Cmd{protocol.CmdRegister, protocol.CmdResolve, protocol.CmdRelease, protocol.CmdClose}
	if err := je.Encode(&protocol.Response{KnownCommands: caps}); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	// guards writing responses
	var wmu sync.Mutex
	write := func(res *protocol.Response) {
		wmu.Lock()
		defer wmu.Unlock()
		if err := je.Encode(res); err != nil {
			p.logger.Error("failed to encode response", "id", res.ID, "error", err)
			return
		}
		_ = bw.Flush()
	}

	wg, ctx := errgroup.WithContext(ctx)
	if err := p.store.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = wg.Wait()
		_ = p.close()
	}()
	for {
		req, err := p.parseRequest(jd)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		wg.Go(func() error {
			res := &protocol.Response{ID: req.ID}
			if err := p.handleRequest(ctx, req, res, write); err != nil {
				res.Err = err.Error()
				if req.Command == protocol.CmdResolve {
					res.ErrKind = string(resolver.KindOf(err))
				}
			}
			write(res)
			return nil
		})
	}
}

func (p *Process) parseRequest(jd *json.Decoder) (*protocol.Request, error) {
	var req protocol.Request
	if err := jd.Decode(&req); err != nil {
		return nil, err
	}
	if req.Command == protocol.CmdRegister && req.BodySize > 0 {
		var bodyb []byte
		if err := jd.Decode(&bodyb); err != nil {
			return nil, err
		}
		if int64(len(bodyb)) != req.BodySize {
			return nil, fmt.Errorf("only got %d bytes of declared %d", len(bodyb), req.BodySize)
		}
		req.Body = bytes.NewReader(bodyb)
	}
	return &req, nil
}

func (p *Process) handleRequest(ctx context.Context, req *protocol.Request, res *protocol.Response, write func(*protocol.Response)) error {
	var err error
	switch req.Command {
	case protocol.CmdRegister:
		err = p.handleRegister(req, res)
	case protocol.CmdResolve:
		err = p.handleResolve(ctx, req, res, write)
	case protocol.CmdRelease:
		err = p.handleRelease(req, res)
	case protocol.CmdClose:
		err = p.close()
	default:
		return ErrUnknownCommand
	}
	if err != nil {
		p.logger.Debug("request failed", "id", req.ID, "command", req.Command, "error", err)
	}
	return err
}

func (p *Process) handleRegister(req *protocol.Request, res *protocol.Response) error {
	if req.Body == nil {
		return ErrEmptyBody
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	res.Reference = p.blobs.Register(data, req.ContentType)
	return nil
}

func (p *Process) handleResolve(ctx context.Context, req *protocol.Request, res *protocol.Response, write func(*protocol.Response)) error {
	cb := resolver.Callbacks{
		OnProgress: func(percent int) {
			write(&protocol.Response{ID: req.ID, Progress: &percent})
		},
		OnUploadingChanged: func(uploading bool) {
			write(&protocol.Response{ID: req.ID, Uploading: &uploading})
		},
	}
	url, err := p.resolver.Resolve(ctx, req.Reference, cb)
	if err != nil {
		return err
	}
	res.URL = url
	return nil
}

func (p *Process) handleRelease(req *protocol.Request, res *protocol.Response) error {
	if req.Reference == "" {
		return ErrNoReference
	}
	res.Released = p.blobs.Release(req.Reference)
	return nil
}

func (p *Process) close() error {
	p.closer.Do(func() {
		p.errClose = p.store.Close()
		if p.errClose != nil {
			p.logger.Error("object store close failed", "kind", p.store.Kind(), "error", p.errClose)
		}
	})
	return p.errClose
}
