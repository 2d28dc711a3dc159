// Package process runs a local command as a chat model.
//
// The conversation is written to the command's stdin as JSON
// ({"messages": [...]}) and the last user message is also exposed in
// BRAID_INPUT. Whatever the command prints to stdout becomes the assistant
// reply: a JSON object is decoded as a message, anything else is used as
// plain text.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/braid/pkg/domain"
)

// DefaultGracePeriod is how long a cancelled command may take to exit after
// the interrupt before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Environment variables set for every run.
const (
	EnvInput        = "BRAID_INPUT"
	EnvMessageCount = "BRAID_MESSAGE_COUNT"
)

// Command is a trusted command line. Only commands configured by the
// operator are ever executed; message content never becomes an argument.
type Command struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
}

// Model implements ports.ChatModel by running a Command per call.
type Model struct {
	cmd     Command
	baseDir string
	grace   time.Duration
}

// Option configures the Model.
type Option func(*Model)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(m *Model) { m.baseDir = dir }
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Model) { m.grace = d }
}

// New creates a Model for cmd.
func New(cmd Command, opts ...Option) *Model {
	m := &Model{cmd: cmd, grace: DefaultGracePeriod}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type request struct {
	Messages []domain.Message `json:"messages"`
}

// Generate runs the command once. A non-zero exit fails with the command's
// stderr attached; cancellation interrupts the process and reports ctx.Err().
func (m *Model) Generate(ctx context.Context, msgs []domain.Message) (domain.Message, error) {
	if m.cmd.Command == "" {
		return domain.Message{}, errors.New("process: no command configured")
	}
	payload, err := json.Marshal(request{Messages: msgs})
	if err != nil {
		return domain.Message{}, fmt.Errorf("process: failed to encode conversation: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.cmd.Command, m.cmd.Args...)
	cmd.Dir = m.baseDir
	cmd.Env = append(cmd.Environ(), m.environ(msgs)...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = m.grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Message{}, fmt.Errorf("process %s: %w", m.cmd.Command, ctxErr)
		}
		return domain.Message{}, fmt.Errorf("process %s failed: %w. Stderr: %s", m.cmd.Command, err, strings.TrimSpace(stderr.String()))
	}
	return parseReply(stdout.String()), nil
}

func (m *Model) environ(msgs []domain.Message) []string {
	keys := make([]string, 0, len(m.cmd.Env))
	for k := range m.cmd.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		env = append(env, k+"="+m.cmd.Env[k])
	}
	env = append(env, EnvMessageCount+"="+strconv.Itoa(len(msgs)))
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			env = append(env, EnvInput+"="+msgs[i].Content)
			break
		}
	}
	return env
}

func parseReply(output string) domain.Message {
	trimmed := strings.TrimSpace(output)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var msg domain.Message
		if err := json.Unmarshal([]byte(trimmed), &msg); err == nil && msg.Content != "" {
			if msg.Role == "" {
				msg.Role = domain.RoleAssistant
			}
			return msg
		}
	}
	return domain.AssistantMessage(trimmed)
}
