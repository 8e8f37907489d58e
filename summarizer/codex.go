package summarizer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CodexBackend 는 Codex CLI(codex exec --experimental-json)를 실행해 요약을 받는다.
type CodexBackend struct {
	binary string
	run    func(ctx context.Context, name string, args []string, stdin []byte) (stdout, stderr []byte, err error)
}

func NewCodexBackend(binary string) *CodexBackend {
	if binary == "" {
		binary = "codex"
	}
	return &CodexBackend{binary: binary, run: runCommand}
}

func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

type codexInputText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type codexMessage struct {
	Role    string           `json:"role"`
	Content []codexInputText `json:"content"`
}

// CodexArgs 는 CLI 인자를 만든다.
func CodexArgs(model string, imagePaths []string) []string {
	args := []string{
		"exec",
		"--experimental-json",
		"--model", model,
		"--config", "agent.run_commands=false",
		"--config", "agent.plan=false",
	}
	for _, p := range imagePaths {
		args = append(args, "--image", p)
	}
	return args
}

func (c *CodexBackend) Generate(ctx context.Context, model string, req Request) (Response, error) {
	var stdin bytes.Buffer
	enc := json.NewEncoder(&stdin)
	enc.SetEscapeHTML(false)
	for _, m := range []codexMessage{
		{Role: "system", Content: []codexInputText{{Type: "input_text", Text: req.SystemPrompt}}},
		{Role: "user", Content: []codexInputText{{Type: "input_text", Text: req.UserPrompt}}},
	} {
		if err := enc.Encode(m); err != nil {
			return Response{}, err
		}
	}

	stdout, stderr, err := c.run(ctx, c.binary, CodexArgs(model, req.ImagePaths), stdin.Bytes())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, ctxErr
	}
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if IsQuotaMessage(msg) {
			return Response{}, &QuotaError{Model: model, Err: fmt.Errorf("%v: %s", err, msg)}
		}
		return Response{}, fmt.Errorf("codex CLI failed: %v: %s", err, msg)
	}

	text, streamErr := ParseCodexStream(stdout)
	if text == "" {
		if streamErr != "" {
			if IsQuotaMessage(streamErr) {
				return Response{}, &QuotaError{Model: model, Err: errors.New(streamErr)}
			}
			return Response{}, fmt.Errorf("codex CLI reported error: %s", streamErr)
		}
		return Response{}, errors.New("codex CLI returned no assistant message")
	}
	return Response{Text: text}, nil
}

type codexEvent struct {
	Type string `json:"type"`
	Item struct {
		ID       string `json:"id"`
		ItemType string `json:"item_type"`
		Text     string `json:"text"`
	} `json:"item"`
	Delta struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"delta"`
	Response struct {
		ID         string `json:"id"`
		OutputText struct {
			Final struct {
				Text string `json:"text"`
			} `json:"final"`
		} `json:"output_text"`
	} `json:"response"`
	Message string `json:"message"`
}

// ParseCodexStream 은 CLI 의 JSONL 이벤트 스트림에서 어시스턴트 메시지를 모은다.
// 두 번째 반환값은 스트림이 보고한 마지막 오류 메시지다.
func ParseCodexStream(out []byte) (string, string) {
	var (
		messages []string
		buffers  = map[string]*strings.Builder{}
		order    []string
		lastErr  string
	)
	appendTo := func(id, text string) {
		b, ok := buffers[id]
		if !ok {
			b = &strings.Builder{}
			buffers[id] = b
			order = append(order, id)
		}
		b.WriteString(text)
	}
	flush := func(id string) {
		if b, ok := buffers[id]; ok {
			if s := strings.TrimSpace(b.String()); s != "" {
				messages = append(messages, s)
			}
			delete(buffers, id)
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev codexEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "item.completed":
			if ev.Item.ItemType == "assistant_message" {
				if s := strings.TrimSpace(ev.Item.Text); s != "" {
					messages = append(messages, s)
				}
			}
		case "item.delta":
			if ev.Item.ItemType == "assistant_message" && ev.Item.Text != "" {
				id := ev.Item.ID
				if id == "" {
					id = "__default__"
				}
				appendTo(id, ev.Item.Text)
			}
		case "response.output_text.delta":
			if ev.Delta.Text != "" {
				id := ev.Delta.ID
				if id == "" {
					id = "__default_response__"
				}
				appendTo(id, ev.Delta.Text)
			}
		case "response.completed":
			if _, ok := buffers[ev.Response.ID]; ev.Response.ID != "" && ok {
				flush(ev.Response.ID)
			} else if s := strings.TrimSpace(ev.Response.OutputText.Final.Text); s != "" {
				messages = append(messages, s)
			}
		case "error":
			if ev.Message != "" {
				lastErr = ev.Message
			}
		}
	}
	for _, id := range order {
		flush(id)
	}

	// 연속된 같은 메시지는 한 번만 남긴다.
	var cleaned []string
	for _, m := range messages {
		if len(cleaned) == 0 || cleaned[len(cleaned)-1] != m {
			cleaned = append(cleaned, m)
		}
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n\n")), lastErr
}
