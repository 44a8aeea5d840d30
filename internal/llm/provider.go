// Package llm is a minimal streaming client for chat-completion style model APIs.
package llm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Provider produces a streamed completion for a list of chat messages.
type Provider interface {
	Complete(ctx context.Context, req Request) (Stream, error)
}

// Stream yields completion chunks until io.EOF.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Chunk is one streamed content delta.
type Chunk struct {
	Content string
}

// Message is a chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one completion call.
type Request struct {
	Messages []Message
	// Model overrides the provider's configured model when set.
	Model       string
	Temperature *float64
	// JSONMode asks the provider for a JSON object response.
	JSONMode bool
}

// Temperature returns a pointer to t for use in Request.
func Temperature(t float64) *float64 {
	return &t
}

// Collect drains a stream into a single string and closes it.
func Collect(stream Stream) (string, error) {
	defer stream.Close()
	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk.Content)
	}
}

type sseStream struct {
	resp   *http.Response
	reader *bufio.Reader
	decode func([]byte) (Chunk, error)
	onEnd  func(error)
	ended  bool
}

func newSSEStream(resp *http.Response, decode func([]byte) (Chunk, error), onEnd func(error)) Stream {
	return &sseStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
		decode: decode,
		onEnd:  onEnd,
	}
}

func (s *sseStream) Close() error {
	s.finish(nil)
	return s.resp.Body.Close()
}

func (s *sseStream) finish(err error) {
	if s.ended {
		return
	}
	s.ended = true
	if s.onEnd != nil {
		s.onEnd(err)
	}
}

func (s *sseStream) Recv() (Chunk, error) {
	for {
		data, err := s.readEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.finish(nil)
			} else {
				s.finish(err)
			}
			return Chunk{}, err
		}
		payload := strings.TrimSpace(string(data))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			s.finish(nil)
			return Chunk{}, io.EOF
		}
		chunk, err := s.decode(data)
		if err != nil {
			s.finish(err)
			return Chunk{}, err
		}
		if chunk.Content == "" {
			continue
		}
		return chunk, nil
	}
}

func (s *sseStream) readEvent() ([]byte, error) {
	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if errors.Is(err, io.EOF) {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			return nil, io.EOF
		}
	}
}
