package backend

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// Request is a content request. Receive them
// with HandleContentRequest()
type Request struct {
	// Type is the slug of the content type
	Type string
	// ID is the record id, empty for create and list requests
	ID string
	// Operation for this request
	Operation core.Operation
	// Parameters are the query parameters from the request URL
	Parameters map[string]string
}

type requestHandler func(ctx context.Context, request Request, data []byte) ([]byte, error)

// HandleContentRequest installs an in-band interceptor for a content type and a set of operations.
// If no operations are specified, the handler will be installed for the Read operation only.
//
// Any returned non-nil error will abort the operation and result in a HTTP error status code,
// mapped the same way as engine errors.
//
// If the handler returns a non-nil []byte, this will replace the original data. In case of Read, the user will
// see the handler's version. In case of Create or Update, data are the incoming attributes before
// validation and the handler's version is validated and written instead. For the Delete operation,
// data will always be nil and the returned data is ignored.
func (b *Backend) HandleContentRequest(slug string, handler func(ctx context.Context, request Request, data []byte) ([]byte, error),
	operations ...core.Operation) {
	if len(operations) == 0 {
		operations = []core.Operation{core.OperationRead}
	}
	for _, operation := range operations {
		key := requestKey(slug, operation)
		if _, ok := b.interceptors[key]; ok {
			logger.Default().Fatalf("content request handler for %s already installed", key)
		}
		logger.Default().Debugf("install content request handler for %s", key)
		b.interceptors[key] = handler
	}
}

func requestKey(slug string, operation core.Operation) string {
	return slug + "(" + string(operation) + ")"
}

func (b *Backend) intercept(ctx context.Context, request Request, data []byte) ([]byte, error) {
	if interceptor, ok := b.interceptors[requestKey(request.Type, request.Operation)]; ok {
		return interceptor(ctx, request, data)
	}
	return nil, nil
}

// interceptAttributes runs the create or update interceptor on attributes
func (b *Backend) interceptAttributes(ctx context.Context, request Request, attributes map[string]any) (map[string]any, error) {
	if _, ok := b.interceptors[requestKey(request.Type, request.Operation)]; !ok {
		return attributes, nil
	}
	data, err := json.Marshal(attributes)
	if err != nil {
		return nil, err
	}
	replaced, err := b.intercept(ctx, request, data)
	if err != nil || replaced == nil {
		return attributes, err
	}
	result := map[string]any{}
	if err := json.Unmarshal(replaced, &result); err != nil {
		return nil, err
	}
	return result, nil
}
