package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	clientauthv1 "k8s.io/client-go/pkg/apis/clientauthentication/v1"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/giantswarm/mcp-hive/internal/logging"
)

const (
	// DefaultExecTimeout bounds a single run of the authentication tool.
	DefaultExecTimeout = 30 * time.Second

	// ContextPlaceholder is replaced by the context name in command templates.
	ContextPlaceholder = "{context}"

	execInfoEnv    = "KUBERNETES_EXEC_INFO"
	execAPIVersion = "client.authentication.k8s.io/v1"
	execKind       = "ExecCredential"

	maxReasonLength = 200
)

// Command is one invocation of the authentication tool.
type Command struct {
	Path string
	Args []string
	Env  []string
}

// Runner executes a Command and returns what it wrote to stdout and stderr.
type Runner interface {
	Run(ctx context.Context, cmd Command) (stdout, stderr []byte, err error)
}

// OSRunner runs commands as subprocesses.
type OSRunner struct{}

// Run implements Runner.
func (OSRunner) Run(ctx context.Context, c Command) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CommandFromExecConfig builds the command described by a kubeconfig exec stanza.
func CommandFromExecConfig(cfg *clientcmdapi.ExecConfig) Command {
	cmd := Command{Path: cfg.Command, Args: append([]string(nil), cfg.Args...)}
	for _, env := range cfg.Env {
		cmd.Env = append(cmd.Env, env.Name+"="+env.Value)
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = execAPIVersion
	}
	cmd.Env = append(cmd.Env, execInfoEnv+"="+execInfo(apiVersion))
	return cmd
}

// CommandFromTemplate splits a command line on whitespace and substitutes
// ContextPlaceholder with contextName.
func CommandFromTemplate(template, contextName string) (Command, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return Command{}, errors.New("credential command is empty")
	}
	for i, field := range fields {
		fields[i] = strings.ReplaceAll(field, ContextPlaceholder, contextName)
	}
	return Command{
		Path: fields[0],
		Args: fields[1:],
		Env:  []string{execInfoEnv + "=" + execInfo(execAPIVersion)},
	}, nil
}

func execInfo(apiVersion string) string {
	info, _ := json.Marshal(map[string]interface{}{
		"apiVersion": apiVersion,
		"kind":       execKind,
		"spec":       map[string]interface{}{"interactive": false},
	})
	return string(info)
}

// ExecPlugin runs an authentication tool and parses its ExecCredential output.
type ExecPlugin struct {
	Runner  Runner
	Timeout time.Duration
	Now     func() time.Time
}

// Run invokes cmd for contextName. Failures are returned as *AuthError with
// Transient set when a retry may succeed.
func (p *ExecPlugin) Run(ctx context.Context, contextName string, cmd Command) (*Credential, error) {
	runner := p.Runner
	if runner == nil {
		runner = OSRunner{}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := runner.Run(runCtx, cmd)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return nil, &AuthError{
				Context:   contextName,
				Reason:    fmt.Sprintf("authentication tool timed out after %s", timeout),
				Transient: true,
				Err:       ErrPluginUnavailable,
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyExecFailure(contextName, err, stderr)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return parseExecCredential(contextName, stdout, now())
}

func parseExecCredential(contextName string, stdout []byte, now time.Time) (*Credential, error) {
	malformed := func(reason string) error {
		return &AuthError{Context: contextName, Reason: reason, Err: ErrMalformedOutput}
	}

	// v1 and v1beta1 share the status layout.
	var execCred clientauthv1.ExecCredential
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &execCred); err != nil {
		return nil, malformed("authentication tool did not print an ExecCredential")
	}
	if execCred.Kind != execKind {
		return nil, malformed(fmt.Sprintf("unexpected kind %q in authentication tool output", execCred.Kind))
	}
	if !strings.HasPrefix(execCred.APIVersion, "client.authentication.k8s.io/") {
		return nil, malformed(fmt.Sprintf("unsupported apiVersion %q in authentication tool output", execCred.APIVersion))
	}

	status := execCred.Status
	if status == nil || (status.Token == "" && status.ClientCertificateData == "") {
		return nil, malformed("authentication tool returned no token or client certificate")
	}
	if (status.ClientCertificateData == "") != (status.ClientKeyData == "") {
		return nil, malformed("authentication tool returned a client certificate without its key")
	}

	cred := &Credential{
		Token:  status.Token,
		Source: SourceExec,
	}
	if status.ClientCertificateData != "" {
		cred.ClientCertificateData = []byte(status.ClientCertificateData)
		cred.ClientKeyData = []byte(status.ClientKeyData)
	}
	if status.ExpirationTimestamp != nil {
		cred.ExpiresAt = status.ExpirationTimestamp.Time
		if !cred.ExpiresAt.After(now) {
			return nil, &AuthError{
				Context:   contextName,
				Reason:    "authentication tool returned an already expired credential",
				Transient: true,
				Err:       ErrPluginUnavailable,
			}
		}
	}
	return cred, nil
}

var (
	permissionPatterns = []string{
		"accessdenied",
		"access denied",
		"forbidden",
		"unauthorized",
		"permission denied",
		"not authorized",
		"invalid_grant",
	}
	invalidContextPatterns = []string{
		"context was not found",
		"no such context",
		"invalid context",
		"unknown context",
	}
	transientPatterns = []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"no such host",
		"temporarily unavailable",
		"service unavailable",
		"too many requests",
		"throttl",
		"rate exceeded",
		"429",
		"502",
		"503",
		"504",
		"eof",
	}
)

// classifyExecFailure maps a failed run onto an AuthError. Unrecognised
// failures are treated as permanent so a misconfigured tool is not hammered.
func classifyExecFailure(contextName string, err error, stderr []byte) *AuthError {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return &AuthError{
			Context: contextName,
			Reason:  "authentication tool not found",
			Err:     fmt.Errorf("%w: %w", ErrPluginFailed, err),
		}
	}

	detail := strings.ToLower(string(stderr))
	reason := stderrReason(stderr)

	switch {
	case containsAny(detail, invalidContextPatterns):
		return &AuthError{Context: contextName, Reason: reason, Err: ErrInvalidContext}
	case containsAny(detail, permissionPatterns):
		return &AuthError{Context: contextName, Reason: reason, Err: ErrPermissionDenied}
	case containsAny(detail, transientPatterns):
		return &AuthError{Context: contextName, Reason: reason, Transient: true, Err: ErrPluginUnavailable}
	default:
		return &AuthError{Context: contextName, Reason: reason, Err: fmt.Errorf("%w: %w", ErrPluginFailed, err)}
	}
}

// stderrReason returns the last non-empty stderr line with addresses
// redacted and length bounded, so it can travel to a client.
func stderrReason(stderr []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	reason := strings.TrimSpace(lines[len(lines)-1])
	if reason == "" {
		return "authentication tool exited with an error"
	}
	reason = logging.SanitizeHost(reason)
	if len(reason) > maxReasonLength {
		end := maxReasonLength
		for end > 0 && !utf8.RuneStart(reason[end]) {
			end--
		}
		reason = reason[:end] + "..."
	}
	return "authentication tool failed: " + reason
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
