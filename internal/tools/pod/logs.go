package pod

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/giantswarm/mcp-hive/internal/k8s"
	"github.com/giantswarm/mcp-hive/internal/logging"
	"github.com/giantswarm/mcp-hive/internal/server"
	"github.com/giantswarm/mcp-hive/internal/tools"
	"github.com/giantswarm/mcp-hive/internal/tools/output"
)

func handleLogs(ctx context.Context, call *tools.Call, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	podName, err := call.RequiredString("podName")
	if err != nil {
		return nil, err
	}
	namespace := strings.TrimSpace(call.String("namespace"))
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	followSeconds, err := call.Int("followSeconds", 0)
	if err != nil {
		return nil, err
	}

	limitBytes := int64(output.MaxResultBytes) + 1
	opts := k8s.LogOptions{
		Container:  call.String("containerName"),
		Follow:     followSeconds > 0,
		Previous:   call.Bool("previous", false),
		Timestamps: call.Bool("timestamps", false),
		LimitBytes: &limitBytes,
	}
	if _, ok := call.Arguments["tailLines"]; ok {
		tail, err := call.Int("tailLines", 0)
		if err != nil {
			return nil, err
		}
		opts.TailLines = &tail
	}

	readCtx := ctx
	if opts.Follow {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, time.Duration(followSeconds)*time.Second)
		defer cancel()
	}

	stream, err := sc.K8sClient().Logs(readCtx, call.KubeContext(), namespace, podName, opts)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	stop := context.AfterFunc(readCtx, func() { _ = stream.Close() })
	defer stop()

	var emit func(string) error
	if call.CanStream() {
		emit = func(line string) error { return call.Progress(ctx, line) }
	}

	text, err := collectLines(stream, output.MaxResultBytes, emit, sc.Logger())
	if err != nil && !followEnded(ctx, readCtx, opts.Follow) {
		return nil, fmt.Errorf("reading logs of pod %s/%s: %w", namespace, podName, err)
	}

	text, _ = output.CapText(text, output.MaxResultBytes)
	if text == "" {
		text = fmt.Sprintf("No log output for pod %s/%s", namespace, podName)
	}
	return mcp.NewToolResultText(text), nil
}

// followEnded reports whether a read stopped because the follow window
// closed rather than because the call itself ended.
func followEnded(callCtx, readCtx context.Context, follow bool) bool {
	return follow && readCtx.Err() != nil && callCtx.Err() == nil
}

// progressChunkBytes is the read buffer size, and so roughly the largest
// progress message. Longer lines are streamed in pieces.
const progressChunkBytes = 16 << 10

// collectLines reads r line by line, handing each line to emit, until EOF
// or until limit+1 bytes were collected, so callers can tell the text was
// cut. Lines longer than progressChunkBytes reach emit in pieces that
// never split a rune. Once emit fails it is no longer called.
func collectLines(r io.Reader, limit int, emit func(string) error, logger *slog.Logger) (string, error) {
	reader := bufio.NewReaderSize(io.LimitReader(r, int64(limit)+1), progressChunkBytes)
	var collected strings.Builder
	var carry []byte

	send := func(piece []byte) {
		if emit == nil {
			return
		}
		if err := emit(string(piece)); err != nil {
			if !errors.Is(err, tools.ErrCallFinished) {
				logger.Debug("stopped streaming log lines", logging.Err(err))
			}
			emit = nil
		}
	}

	for {
		chunk, err := reader.ReadSlice('\n')
		collected.Write(chunk)

		piece := append(carry, chunk...)
		carry = nil
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			cut := runeBoundary(piece)
			carry = append([]byte(nil), piece[cut:]...)
			if cut > 0 {
				send(piece[:cut])
			}
			continue
		case len(piece) > 0:
			send(bytes.TrimSuffix(piece, []byte("\n")))
		}

		if errors.Is(err, io.EOF) {
			return collected.String(), nil
		}
		if err != nil {
			return collected.String(), err
		}
	}
}

// runeBoundary returns the length of the longest prefix of b that does not
// end inside a multi-byte rune.
func runeBoundary(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
