package gradio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const maxEventSize = 16 << 20

// File is an input parameter that has to be uploaded to the Space before the call.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileData is how Gradio references an uploaded file in call payloads and results.
type FileData struct {
	Path     string   `json:"path"`
	URL      string   `json:"url,omitempty"`
	OrigName string   `json:"orig_name,omitempty"`
	Size     int      `json:"size,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
	Meta     fileMeta `json:"meta"`
}

type fileMeta struct {
	Type string `json:"_type"`
}

// Predict runs route once with the positional inputs and returns the output components of
// the completed event. File inputs are uploaded first.
func (c *Client) Predict(ctx context.Context, route string, data ...any) ([]json.RawMessage, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.Trim(route, "/")
	if conn.routes != nil {
		if _, ok := conn.routes[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, route)
		}
	}

	payload := make([]any, len(data))
	for i, d := range data {
		f, ok := d.(File)
		if !ok {
			payload[i] = d
			continue
		}
		fd, err := c.upload(ctx, conn, f)
		if err != nil {
			return nil, err
		}
		payload[i] = fd
	}

	eventID, err := c.submit(ctx, conn, name, payload)
	if err != nil {
		return nil, err
	}
	return c.await(ctx, conn, name, eventID)
}

func (c *Client) upload(ctx context.Context, conn *connection, f File) (FileData, error) {
	name := f.Name
	if name == "" {
		name = "image"
	}
	mimeType := f.ContentType
	if mimeType == "" {
		mimeType = http.DetectContentType(f.Data)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return FileData{}, fmt.Errorf("create upload part: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return FileData{}, fmt.Errorf("write upload part: %w", err)
	}
	if err := w.Close(); err != nil {
		return FileData{}, fmt.Errorf("close upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conn.host+conn.prefix+"/upload", &body)
	if err != nil {
		return FileData{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return FileData{}, transportError("upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FileData{}, remoteErrorFrom(resp)
	}
	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return FileData{}, fmt.Errorf("%w: decode upload response: %v", ErrProtocol, err)
	}
	if len(paths) == 0 {
		return FileData{}, fmt.Errorf("%w: upload returned no paths", ErrProtocol)
	}

	return FileData{
		Path:     paths[0],
		OrigName: name,
		Size:     len(f.Data),
		MimeType: mimeType,
		Meta:     fileMeta{Type: "gradio.FileData"},
	}, nil
}

func (c *Client) submit(ctx context.Context, conn *connection, name string, payload []any) (string, error) {
	body, err := json.Marshal(map[string]any{"data": payload})
	if err != nil {
		return "", fmt.Errorf("encode call payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conn.host+conn.prefix+"/call/"+name, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return "", transportError("call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", remoteErrorFrom(resp)
	}
	var out struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode call response: %v", ErrProtocol, err)
	}
	if out.EventID == "" {
		return "", fmt.Errorf("%w: call returned no event id", ErrProtocol)
	}
	return out.EventID, nil
}

func (c *Client) await(ctx context.Context, conn *connection, name, eventID string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, conn.host+conn.prefix+"/call/"+name+"/"+eventID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return nil, transportError("await result", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, remoteErrorFrom(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), maxEventSize)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			out, done, err := dispatch(event, data.String())
			if done || err != nil {
				return out, err
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, transportError("read event stream", err)
	}
	// Some servers close the stream without a trailing blank line.
	if event != "" {
		out, done, err := dispatch(event, data.String())
		if done || err != nil {
			return out, err
		}
	}
	return nil, fmt.Errorf("%w: event stream ended before completion", ErrProtocol)
}

func dispatch(event, data string) ([]json.RawMessage, bool, error) {
	switch event {
	case "complete":
		var out []json.RawMessage
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			return nil, true, fmt.Errorf("%w: complete event is not an array: %v", ErrProtocol, err)
		}
		return out, true, nil
	case "error":
		msg := strings.TrimSpace(data)
		var s string
		if json.Unmarshal([]byte(msg), &s) == nil {
			msg = s
		}
		if msg == "" || msg == "null" {
			msg = "prediction failed"
		}
		return nil, true, &RemoteError{Message: msg}
	default:
		return nil, false, nil
	}
}

func transportError(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || isRemote(err) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return connectError(step, err)
}
