package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/contact-intake/internal/ratelimit"
)

// Admission scopes. The contact scope is enforced inside the submission
// pipeline because its key includes the submitted email.
const (
	ScopeContact = "contact"
	ScopeAdmin   = "admin"
)

// RegisterRoutes registers the contact and admin routes.
func RegisterRoutes(
	api huma.API,
	contactHandler *ContactHandler,
	submissionsHandler *SubmissionsHandler,
	requireAdmin func(ctx huma.Context, next func(huma.Context)),
) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-contact",
		Method:      http.MethodPost,
		Path:        "/contact",
		Summary:     "Submit contact form",
		Description: "Stores a contact request. Rate limited per client and optionally protected by reCAPTCHA.",
		Tags:        []string{"Contact"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ScopeContact, Disabled: true},
		},
	}, contactHandler.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/admin/submissions",
		Summary:     "List or export submissions",
		Description: "Returns submissions newest first as JSON, or streams them as CSV when export is 1 or true.",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: huma.Middlewares{requireAdmin},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ScopeAdmin},
		},
	}, submissionsHandler.List)
}
