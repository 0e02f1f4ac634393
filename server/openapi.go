package server

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
)

// APISpec describes the HTTP surface as an OpenAPI 3 document. It is built
// once at registration time and served verbatim.
func APISpec(appName, appURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       appName + " API",
			Version:     "1.0.0",
			Description: "Account authentication: signup, login, email verification and password recovery by one-time code.",
		},
		Servers: openapi3.Servers{
			&openapi3.Server{URL: appURL},
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{},
			SecuritySchemes: openapi3.SecuritySchemes{
				"bearerAuth": &openapi3.SecuritySchemeRef{
					Value: &openapi3.SecurityScheme{
						Type:         "http",
						Scheme:       "bearer",
						BearerFormat: "JWT",
					},
				},
			},
		},
	}

	doc.Components.Schemas["TokenPair"] = schemaRef(objectSchema(map[string]*openapi3.Schema{
		"access_token":  stringSchema(),
		"refresh_token": stringSchema(),
		"token_type":    stringSchema(),
		"expires_in":    intSchema(),
	}))
	doc.Components.Schemas["User"] = schemaRef(objectSchema(map[string]*openapi3.Schema{
		"id":             intSchema(),
		"username":       stringSchema(),
		"email":          stringSchema(),
		"email_verified": boolSchema(),
	}))
	doc.Components.Schemas["Message"] = schemaRef(objectSchema(map[string]*openapi3.Schema{
		"message": stringSchema(),
	}))

	type endpoint struct {
		method  string
		path    string
		summary string
		secured bool
		reqBody map[string]*openapi3.Schema
		resRef  string
	}

	endpoints := []endpoint{
		{"POST", "/api/v1/auth/signup", "Create an account", false,
			map[string]*openapi3.Schema{"username": stringSchema(), "email": stringSchema(), "password": stringSchema()},
			"#/components/schemas/User"},
		{"POST", "/api/v1/auth/login", "Exchange credentials for tokens", false,
			map[string]*openapi3.Schema{"email": stringSchema(), "password": stringSchema(), "totp_code": stringSchema()},
			"#/components/schemas/TokenPair"},
		{"POST", "/api/v1/auth/logout", "Revoke a refresh token", false,
			map[string]*openapi3.Schema{"refresh_token": stringSchema()},
			"#/components/schemas/Message"},
		{"POST", "/api/v1/auth/refresh", "Rotate a refresh token", false,
			map[string]*openapi3.Schema{"refresh_token": stringSchema()},
			"#/components/schemas/TokenPair"},
		{"POST", "/api/v1/auth/send-verification-email", "Send an email verification code", false,
			map[string]*openapi3.Schema{"email": stringSchema()},
			"#/components/schemas/Message"},
		{"POST", "/api/v1/auth/verify-email", "Confirm an email verification code", false,
			map[string]*openapi3.Schema{"email": stringSchema(), "code": stringSchema()},
			"#/components/schemas/Message"},
		{"POST", "/api/v1/auth/forgot-password", "Send a password reset code", false,
			map[string]*openapi3.Schema{"email": stringSchema()},
			"#/components/schemas/Message"},
		{"POST", "/api/v1/auth/check-reset-code", "Check a password reset code without consuming it", false,
			map[string]*openapi3.Schema{"email": stringSchema(), "code": stringSchema()},
			"#/components/schemas/Message"},
		{"POST", "/api/v1/auth/reset-password", "Reset the password with a code", false,
			map[string]*openapi3.Schema{"code": stringSchema(), "new_password": stringSchema()},
			"#/components/schemas/Message"},
		{"POST", "/api/v1/auth/totp/verify", "Finish login with an authenticator code", true,
			map[string]*openapi3.Schema{"code": stringSchema()},
			"#/components/schemas/TokenPair"},
		{"POST", "/api/v1/auth/change-password", "Change the password of the signed-in account", true,
			map[string]*openapi3.Schema{"current_password": stringSchema(), "new_password": stringSchema()},
			"#/components/schemas/Message"},
		{"GET", "/api/v1/auth/sessions", "List active sessions", true, nil, ""},
		{"GET", "/api/v1/auth/me", "Fetch the signed-in account", true, nil, "#/components/schemas/User"},
		{"POST", "/api/v1/totp/setup", "Generate an authenticator secret", true, nil, ""},
		{"POST", "/api/v1/totp/enable", "Enable the authenticator second factor", true,
			map[string]*openapi3.Schema{"code": stringSchema()},
			"#/components/schemas/Message"},
		{"POST", "/api/v1/totp/disable", "Disable the authenticator second factor", true, nil,
			"#/components/schemas/Message"},
	}

	for _, ep := range endpoints {
		op := &openapi3.Operation{
			Summary:   ep.summary,
			Responses: openapi3.NewResponses(),
		}

		desc := "Success"
		response := &openapi3.Response{Description: &desc}
		if ep.resRef != "" {
			response.Content = openapi3.NewContentWithJSONSchemaRef(
				openapi3.NewSchemaRef(ep.resRef, nil))
		}
		op.Responses.Set("200", &openapi3.ResponseRef{Value: response})

		if ep.reqBody != nil {
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().
					WithRequired(true).
					WithJSONSchema(objectSchema(ep.reqBody)),
			}
		}

		if ep.secured {
			op.Security = openapi3.NewSecurityRequirements().
				With(openapi3.NewSecurityRequirement().Authenticate("bearerAuth"))
		}

		item := doc.Paths.Value(ep.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(ep.path, item)
		}
		item.SetOperation(ep.method, op)
	}

	return doc
}

func stringSchema() *openapi3.Schema { return openapi3.NewStringSchema() }
func intSchema() *openapi3.Schema    { return openapi3.NewIntegerSchema() }
func boolSchema() *openapi3.Schema   { return openapi3.NewBoolSchema() }

func objectSchema(props map[string]*openapi3.Schema) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()
	for name, prop := range props {
		schema.WithProperty(name, prop)
	}
	return schema
}

func schemaRef(schema *openapi3.Schema) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("", schema)
}

func (h *Handlers) OpenAPISpec(c echo.Context) error {
	return c.JSON(http.StatusOK, APISpec(h.cfg.App.Name, h.cfg.App.URL))
}
