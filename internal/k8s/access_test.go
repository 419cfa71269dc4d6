package k8s_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authorizationv1 "k8s.io/api/authorization/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clienttesting "k8s.io/client-go/testing"

	credtestdata "github.com/giantswarm/mcp-hive/internal/credentials/testdata"
	"github.com/giantswarm/mcp-hive/internal/k8s"
	k8stestdata "github.com/giantswarm/mcp-hive/internal/k8s/testdata"
)

func TestCheckAccess(t *testing.T) {
	factory := k8stestdata.NewFakeConnectionFactory(nil)
	var seen *authorizationv1.ResourceAttributes
	factory.Clientset.PrependReactor("create", "selfsubjectaccessreviews", func(action clienttesting.Action) (bool, runtime.Object, error) {
		review := action.(clienttesting.CreateAction).GetObject().(*authorizationv1.SelfSubjectAccessReview)
		seen = review.Spec.ResourceAttributes
		allowed := review.Spec.ResourceAttributes.Verb != "delete"
		return true, &authorizationv1.SelfSubjectAccessReview{
			Status: authorizationv1.SubjectAccessReviewStatus{Allowed: allowed, Reason: "RBAC"},
		}, nil
	})
	client := newTestClient(t, credtestdata.NewFakeProvider(0), factory)

	result, err := client.CheckAccess(context.Background(), "", k8s.AccessCheck{
		Verb: "patch", Resource: "clusterdeployments", APIGroup: "hive.openshift.io", Namespace: "ai-dev",
	})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "RBAC", result.Reason)
	require.NotNil(t, seen)
	assert.Equal(t, "hive.openshift.io", seen.Group)
	assert.Equal(t, "ai-dev", seen.Namespace)

	result, err = client.CheckAccess(context.Background(), "", k8s.AccessCheck{Verb: "delete", Resource: "pods"})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestCheckAccess_Invalid(t *testing.T) {
	factory := k8stestdata.NewFakeConnectionFactory(nil)
	client := newTestClient(t, credtestdata.NewFakeProvider(0), factory)

	tests := []struct {
		name  string
		check k8s.AccessCheck
	}{
		{name: "unknown verb", check: k8s.AccessCheck{Verb: "destroy", Resource: "pods"}},
		{name: "no resource", check: k8s.AccessCheck{Verb: "get"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CheckAccess(context.Background(), "", tt.check)
			require.Error(t, err)
			assert.ErrorIs(t, err, k8s.ErrInvalidAccessCheck)
			assert.Equal(t, k8s.ClassInvalid, k8s.ClassOf(err))
		})
	}
	assert.Equal(t, 0, factory.Actions(), "invalid checks are not sent")
}
