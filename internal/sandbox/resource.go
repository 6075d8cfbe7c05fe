package sandbox

import (
	"context"
	"encoding/json"
	"sort"
)

// ResourceType identifies the kind of external system a resource points at
type ResourceType string

const (
	ResourcePostgres ResourceType = "postgres"
	ResourceMySQL    ResourceType = "mysql"
	ResourceStripe   ResourceType = "stripe"
	ResourceGitHub   ResourceType = "github"
	ResourceIntercom ResourceType = "intercom"
	ResourceRestAPI  ResourceType = "restapi"
)

// Operations understood by the resource gateway
const (
	OperationQuery   = "query"
	OperationRequest = "request"
)

// Accessor describes the capability set one resource category exposes to caller code
type Accessor interface {
	// Factory names the prelude builder that produces the in-sandbox object
	Factory() string
	// Allows reports whether operation belongs to this category
	Allows(operation string) bool
}

// databaseAccessor exposes query(sql, params)
type databaseAccessor struct{}

func (databaseAccessor) Factory() string { return "database" }

func (databaseAccessor) Allows(operation string) bool { return operation == OperationQuery }

// apiAccessor exposes request(method, path, options)
type apiAccessor struct{}

func (apiAccessor) Factory() string { return "api" }

func (apiAccessor) Allows(operation string) bool { return operation == OperationRequest }

var accessors = map[ResourceType]Accessor{
	ResourcePostgres: databaseAccessor{},
	ResourceMySQL:    databaseAccessor{},
	ResourceStripe:   apiAccessor{},
	ResourceGitHub:   apiAccessor{},
	ResourceIntercom: apiAccessor{},
	ResourceRestAPI:  apiAccessor{},
}

// AccessorFor returns the capability set for a resource type
func AccessorFor(t ResourceType) (Accessor, bool) {
	a, ok := accessors[t]
	return a, ok
}

// SupportedResourceTypes lists every type AccessorFor accepts, sorted
func SupportedResourceTypes() []ResourceType {
	types := make([]ResourceType, 0, len(accessors))
	for t := range accessors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// QueryRequest is one resource call forwarded out of the sandbox
type QueryRequest struct {
	OrganizationID string          `json:"organizationId"`
	EnvironmentID  string          `json:"environmentId"`
	ResourceID     string          `json:"resourceId"`
	ResourceName   string          `json:"resourceName"`
	ResourceType   ResourceType    `json:"resourceType"`
	Operation      string          `json:"operation"`
	Payload        json.RawMessage `json:"payload"`
}

// ResourceGateway performs resource calls on behalf of caller code.
// The returned bytes must be a single JSON document; errors surface in the
// sandbox as rejections carrying err.Error() verbatim.
type ResourceGateway interface {
	Query(ctx context.Context, req QueryRequest) (json.RawMessage, error)
}
