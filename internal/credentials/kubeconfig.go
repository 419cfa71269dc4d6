package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"

	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// KubeconfigOptions configures a KubeconfigProvider.
type KubeconfigOptions struct {
	// CommandTemplate overrides the kubeconfig exec stanza for every context.
	// ContextPlaceholder is replaced with the context name.
	CommandTemplate string

	// Plugin runs the authentication tool. A zero value uses OSRunner.
	Plugin ExecPlugin
}

// KubeconfigProvider resolves credentials from the user a kubeconfig context
// points at.
type KubeconfigProvider struct {
	config *clientcmdapi.Config
	opts   KubeconfigOptions
}

// NewKubeconfigProvider returns a provider over an already loaded kubeconfig.
func NewKubeconfigProvider(config *clientcmdapi.Config, opts KubeconfigOptions) *KubeconfigProvider {
	return &KubeconfigProvider{config: config, opts: opts}
}

// Resolve implements Provider.
func (p *KubeconfigProvider) Resolve(ctx context.Context, contextName string) (*Credential, error) {
	kubeCtx, ok := p.config.Contexts[contextName]
	if !ok || kubeCtx == nil {
		return nil, &AuthError{
			Context: contextName,
			Reason:  "context not found in kubeconfig",
			Err:     ErrInvalidContext,
		}
	}

	if p.opts.CommandTemplate != "" {
		cmd, err := CommandFromTemplate(p.opts.CommandTemplate, contextName)
		if err != nil {
			return nil, &AuthError{Context: contextName, Reason: err.Error(), Err: ErrPluginFailed}
		}
		return p.opts.Plugin.Run(ctx, contextName, cmd)
	}

	authInfo, ok := p.config.AuthInfos[kubeCtx.AuthInfo]
	if !ok || authInfo == nil {
		return nil, &AuthError{
			Context: contextName,
			Reason:  fmt.Sprintf("user %q not found in kubeconfig", kubeCtx.AuthInfo),
			Err:     ErrInvalidContext,
		}
	}

	if authInfo.Exec != nil {
		return p.opts.Plugin.Run(ctx, contextName, CommandFromExecConfig(authInfo.Exec))
	}

	return staticCredential(contextName, authInfo)
}

// staticCredential returns the token or client certificate embedded in (or
// referenced by) a kubeconfig user. Static credentials never expire.
func staticCredential(contextName string, authInfo *clientcmdapi.AuthInfo) (*Credential, error) {
	cred := &Credential{Source: SourceStatic}

	switch {
	case authInfo.Token != "":
		cred.Token = authInfo.Token
	case authInfo.TokenFile != "":
		data, err := os.ReadFile(authInfo.TokenFile)
		if err != nil {
			return nil, &AuthError{Context: contextName, Reason: "token file is not readable", Err: err}
		}
		cred.Token = strings.TrimSpace(string(data))
	}

	certData, keyData := authInfo.ClientCertificateData, authInfo.ClientKeyData
	if len(certData) == 0 && authInfo.ClientCertificate != "" {
		var err error
		if certData, err = os.ReadFile(authInfo.ClientCertificate); err != nil {
			return nil, &AuthError{Context: contextName, Reason: "client certificate is not readable", Err: err}
		}
		if keyData, err = os.ReadFile(authInfo.ClientKey); err != nil {
			return nil, &AuthError{Context: contextName, Reason: "client key is not readable", Err: err}
		}
	}
	if len(certData) > 0 {
		cred.ClientCertificateData = certData
		cred.ClientKeyData = keyData
	}

	if cred.Empty() {
		return nil, &AuthError{
			Context: contextName,
			Reason:  "kubeconfig user has no exec plugin, token or client certificate",
			Err:     ErrNoCredential,
		}
	}
	return cred, nil
}
