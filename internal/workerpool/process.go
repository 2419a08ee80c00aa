package workerpool

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mireiodev/gemforge/internal/ipc"
)

// Process is the pooler-side handle to one worker OS process: its stdin
// encoder, stdout decoder, and the exec.Cmd itself, per spec §9's
// "re-executes the current binary" IPC model.
type Process interface {
	ID() uuid.UUID
	// Send writes m to the worker's stdin.
	Send(m ipc.Message) error
	// Recv blocks for the worker's next message, respecting ctx.
	Recv(ctx context.Context) (ipc.Message, error)
	// Alive reports whether the underlying process is still running.
	Alive() bool
	// Kill force-terminates the process.
	Kill() error
	// Wait blocks until the process exits.
	Wait() error
}

// Spawner creates worker Processes. Production wiring uses
// ExecSpawner; tests use a fake.
type Spawner interface {
	Spawn(ctx context.Context, id uuid.UUID) (Process, error)
}

// ExecSpawner spawns workers by re-executing the current binary with the
// hidden "internal-worker" subcommand (spec §9 "Inter-process IPC").
type ExecSpawner struct {
	// ExecutablePath is the binary to re-exec, typically from os.Executable().
	ExecutablePath string
	// DSN is passed to every spawned worker via --db.
	DSN string
	// ExtraArgs is appended verbatim after the fixed --id/--db flags.
	ExtraArgs []string
}

func (s ExecSpawner) Spawn(ctx context.Context, id uuid.UUID) (Process, error) {
	args := append([]string{"internal-worker", "--id", id.String(), "--db", s.DSN}, s.ExtraArgs...)
	cmd := exec.CommandContext(ctx, s.ExecutablePath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("workerpool: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("workerpool: stdout pipe: %w", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("workerpool: start worker %s: %w", id, err)
	}

	return &execProcess{
		id:  id,
		cmd: cmd,
		enc: ipc.NewEncoder(stdin),
		dec: ipc.NewDecoder(stdout),
		in:  stdin,
	}, nil
}

type execProcess struct {
	id  uuid.UUID
	cmd *exec.Cmd
	in  io.WriteCloser

	mu  sync.Mutex
	enc *ipc.Encoder
	dec *ipc.Decoder
}

func (p *execProcess) ID() uuid.UUID { return p.id }

func (p *execProcess) Send(m ipc.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(m)
}

func (p *execProcess) Recv(ctx context.Context) (ipc.Message, error) {
	type result struct {
		m   ipc.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := p.dec.Decode()
		ch <- result{m, err}
	}()
	select {
	case <-ctx.Done():
		return ipc.Message{}, ctx.Err()
	case r := <-ch:
		return r.m, r.err
	}
}

func (p *execProcess) Alive() bool {
	return p.cmd.ProcessState == nil
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	_ = p.in.Close()
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

// waitForAck blocks until Recv yields a TagAck for ackTag, or timeout
// elapses.
func waitForAck(ctx context.Context, p Process, ackTag ipc.Tag, timeout time.Duration) (ipc.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		m, err := p.Recv(ctx)
		if err != nil {
			return ipc.Message{}, err
		}
		if m.Tag == ipc.TagAck && m.AckTag == ackTag {
			return m, nil
		}
	}
}
