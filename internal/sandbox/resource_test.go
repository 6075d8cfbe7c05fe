package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessorFor(t *testing.T) {
	tests := []struct {
		resourceType ResourceType
		factory      string
		operation    string
	}{
		{ResourcePostgres, "database", OperationQuery},
		{ResourceMySQL, "database", OperationQuery},
		{ResourceStripe, "api", OperationRequest},
		{ResourceGitHub, "api", OperationRequest},
		{ResourceIntercom, "api", OperationRequest},
		{ResourceRestAPI, "api", OperationRequest},
	}

	for _, tt := range tests {
		t.Run(string(tt.resourceType), func(t *testing.T) {
			a, ok := AccessorFor(tt.resourceType)
			assert.True(t, ok)
			assert.Equal(t, tt.factory, a.Factory())
			assert.True(t, a.Allows(tt.operation))
			assert.False(t, a.Allows("drop"))
		})
	}

	_, ok := AccessorFor("mongo")
	assert.False(t, ok)
}

func TestSupportedResourceTypes(t *testing.T) {
	assert.Equal(t, []ResourceType{
		ResourceGitHub, ResourceIntercom, ResourceMySQL, ResourcePostgres, ResourceRestAPI, ResourceStripe,
	}, SupportedResourceTypes())
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{&QueueFullError{Limit: 1}, ErrorTypeQueueFull},
		{&CompileError{Message: "x"}, ErrorTypeCompile},
		{&RuntimeError{Name: "Error", Message: "x"}, ErrorTypeRuntime},
		{&TimeoutError{}, ErrorTypeTimeout},
		{&ShutdownError{}, ErrorTypeShutdown},
		{&MemoryLimitError{LimitMB: 1}, ErrorTypeMemoryLimit},
		{&ValidationError{Field: "f"}, ErrorTypeValidation},
		{causeError(assert.AnError), ErrorTypeInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorType(tt.err), "%v", tt.err)
	}

	assert.Equal(t, "TypeError: bad", (&RuntimeError{Name: "TypeError", Message: "bad"}).Error())
	assert.Equal(t, "bad", (&RuntimeError{Message: "bad"}).Error())
}
