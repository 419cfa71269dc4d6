package k8s

import (
	"context"
	"errors"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ErrInvalidAccessCheck is returned for access checks that cannot be sent.
var ErrInvalidAccessCheck = errors.New("invalid access check")

var accessVerbs = map[string]bool{
	"get":              true,
	"list":             true,
	"watch":            true,
	"create":           true,
	"update":           true,
	"patch":            true,
	"delete":           true,
	"deletecollection": true,
	"impersonate":      true,
	"bind":             true,
	"escalate":         true,
	"*":                true,
}

// AccessCheck is the action a SelfSubjectAccessReview asks about.
type AccessCheck struct {
	Verb        string `json:"verb"`
	Resource    string `json:"resource"`
	APIGroup    string `json:"apiGroup,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	Name        string `json:"name,omitempty"`
	Subresource string `json:"subresource,omitempty"`
}

// Validate rejects checks with an unknown verb or no resource.
func (c AccessCheck) Validate() error {
	if c.Resource == "" {
		return fmt.Errorf("%w: resource is required", ErrInvalidAccessCheck)
	}
	if !accessVerbs[c.Verb] {
		return fmt.Errorf("%w: unknown verb %q", ErrInvalidAccessCheck, c.Verb)
	}
	return nil
}

// AccessResult is the API server's answer to an AccessCheck.
type AccessResult struct {
	Allowed bool   `json:"allowed"`
	Denied  bool   `json:"denied,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// CheckAccess implements ClusterManager.
func (c *kubernetesClient) CheckAccess(ctx context.Context, kubeContext string, check AccessCheck) (*AccessResult, error) {
	if err := check.Validate(); err != nil {
		return nil, &ClusterError{Class: ClassInvalid, Operation: OpAccessReview, Context: kubeContext, Err: err}
	}

	var result *AccessResult
	err := c.Invoke(ctx, kubeContext, Operation{
		Name:         OpAccessReview,
		ResourceType: check.Resource,
		Namespace:    check.Namespace,
		Run: func(ctx context.Context, conn *Connection) error {
			review := &authorizationv1.SelfSubjectAccessReview{
				Spec: authorizationv1.SelfSubjectAccessReviewSpec{
					ResourceAttributes: &authorizationv1.ResourceAttributes{
						Verb:        check.Verb,
						Resource:    check.Resource,
						Group:       check.APIGroup,
						Namespace:   check.Namespace,
						Name:        check.Name,
						Subresource: check.Subresource,
					},
				},
			}
			resp, err := conn.Clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
			if err != nil {
				return err
			}
			result = &AccessResult{
				Allowed: resp.Status.Allowed,
				Denied:  resp.Status.Denied,
				Reason:  resp.Status.Reason,
			}
			return nil
		},
	})
	return result, err
}
