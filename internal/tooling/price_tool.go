package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"titanflow/internal/domain"
)

// PriceTool looks up a service rate in the catalog.
type PriceTool struct {
	Catalog domain.Catalog
}

func (t *PriceTool) Name() string { return ToolGetServicePrice }

func (t *PriceTool) Description() string {
	return "Check if a service exists in the database and get its price."
}

func (t *PriceTool) Definition() string { return GenerateSchema(PriceInput{}) }

func (t *PriceTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in PriceInput
	if err := decodeArgs(t, args, &in); err != nil {
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}
	if t.Catalog == nil {
		return "", fmt.Errorf("%s: catalog not configured", t.Name())
	}

	svc, err := t.Catalog.FindService(ctx, in.ServiceName)
	if errors.Is(err, domain.ErrServiceNotFound) {
		return t.notFound(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}
	return fmt.Sprintf("Service: %s, Rate: $%d/hr, Scope: %s", svc.Name, svc.HourlyRate, svc.Description), nil
}

func (t *PriceTool) notFound(ctx context.Context) (string, error) {
	services, err := t.Catalog.ListServices(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name)
	}
	return fmt.Sprintf("Service not found. Available: %s.", strings.Join(names, ", ")), nil
}
