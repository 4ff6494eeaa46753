package content

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes shared by every stage of the pipeline.
var (
	ErrStructuralParse     = errors.New("structural parse error")
	ErrSchemaViolation     = errors.New("schema violation")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrExternalService     = errors.New("external service error")
	ErrRateLimited         = errors.New("rate limited")
	ErrConfiguration       = errors.New("configuration error")
)

// ServiceError describes a failed call to an external collaborator.
type ServiceError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Service, e.StatusCode, body)
}

// Is matches ErrExternalService, and ErrRateLimited for 429 responses.
func (e *ServiceError) Is(target error) bool {
	switch target {
	case ErrExternalService:
		return true
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}
