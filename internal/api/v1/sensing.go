package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/warden/internal/sim"
)

type ListServicesOutput struct {
	Body struct {
		Services []sim.Service `json:"services"`
	}
}

type GetServiceInput struct {
	ID string `path:"id" doc:"Service identifier"`
}

type GetServiceOutput struct {
	Body sim.Service
}

type ListAlertsOutput struct {
	Body struct {
		Alerts []sim.Alert `json:"alerts"`
	}
}

// RegisterSensingRoutes mounts the read-only view of the managed resource.
// These carry no side effect to govern, so they bypass the enforcement
// point.
func RegisterSensingRoutes(api huma.API, cluster *sim.Cluster) {
	huma.Register(api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/infra/services",
		Summary:     "List managed services",
		Tags:        []string{"Sensing"},
	}, func(_ context.Context, _ *struct{}) (*ListServicesOutput, error) {
		out := &ListServicesOutput{}
		out.Body.Services = cluster.Services()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-service",
		Method:      http.MethodGet,
		Path:        "/infra/services/{id}",
		Summary:     "Get one managed service",
		Tags:        []string{"Sensing"},
	}, func(_ context.Context, input *GetServiceInput) (*GetServiceOutput, error) {
		svc, ok := cluster.Service(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("service not found")
		}
		return &GetServiceOutput{Body: svc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "List alerts",
		Tags:        []string{"Sensing"},
	}, func(_ context.Context, _ *struct{}) (*ListAlertsOutput, error) {
		out := &ListAlertsOutput{}
		out.Body.Alerts = cluster.Alerts()
		return out, nil
	})
}
