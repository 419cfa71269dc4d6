package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	tests := []struct {
		attr      slog.Attr
		wantKey   string
		wantValue string
	}{
		{KubeContext("hive-cluster"), KeyKubeContext, "hive-cluster"},
		{Namespace("rhoai"), KeyNamespace, "rhoai"},
		{ResourceType("clusterclaims"), KeyResourceType, "clusterclaims"},
		{Tool("list_all_clusters"), KeyTool, "list_all_clusters"},
		{CallID("42"), KeyCallID, "42"},
		{Outcome("timeout"), KeyOutcome, "timeout"},
		{Duration(1500 * time.Millisecond), KeyDuration, "1.5s"},
		{Attempt(3), KeyAttempt, "3"},
		{Session("abc"), KeySession, "abc"},
		{Session(""), KeySession, "<none>"},
		{Err(nil), KeyError, ""},
		{Err(errors.New("boom")), KeyError, "boom"},
		{SanitizedErr(errors.New("dial tcp 10.1.2.3:6443: refused")), KeyError, "dial tcp <redacted-ip>:6443: refused"},
		{Host("https://10.1.2.3:6443"), KeyHost, "https://<redacted-ip>:6443"},
	}

	for _, tt := range tests {
		t.Run(tt.wantKey+"="+tt.wantValue, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.wantValue, tt.attr.Value.String())
		})
	}
}

func TestScopedLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	WithOperation(WithKubeContext(logger, "hive-cluster"), "list").Info("cluster operation completed")

	out := buf.String()
	assert.Contains(t, out, "kube_context=hive-cluster")
	assert.Contains(t, out, "operation=list")
}
