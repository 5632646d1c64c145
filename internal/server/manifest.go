package server

import (
	"encoding/json"
	"strings"
)

// pluginManifest is the static descriptor served at
// /.well-known/ai-plugin.json identifying this service to a calling agent
type pluginManifest struct {
	SchemaVersion       string       `json:"schema_version"`
	NameForHuman        string       `json:"name_for_human"`
	NameForModel        string       `json:"name_for_model"`
	DescriptionForHuman string       `json:"description_for_human"`
	DescriptionForModel string       `json:"description_for_model"`
	Auth                manifestAuth `json:"auth"`
	API                 manifestAPI  `json:"api"`
	LogoURL             string       `json:"logo_url"`
	ContactEmail        string       `json:"contact_email"`
	LegalInfoURL        string       `json:"legal_info_url"`
}

type manifestAuth struct {
	Type string `json:"type"`
}

type manifestAPI struct {
	Type                string `json:"type"`
	URL                 string `json:"url"`
	IsUserAuthenticated bool   `json:"is_user_authenticated"`
}

// buildManifest renders the manifest once at construction so repeated
// fetches return byte-identical responses
func buildManifest(baseURL string) []byte {
	base := strings.TrimSuffix(baseURL, "/")
	if base == "" {
		base = "http://localhost:8000"
	}

	m := pluginManifest{
		SchemaVersion:       "v1",
		NameForHuman:        "Notebook Session",
		NameForModel:        "notebook_session",
		DescriptionForHuman: "Let an agent play with data in your running notebook session.",
		DescriptionForModel: "Plugin for a live notebook session. You can inspect variables and run code.",
		Auth:                manifestAuth{Type: "none"},
		API: manifestAPI{
			Type:                "openapi",
			URL:                 base + "/openapi.json",
			IsUserAuthenticated: false,
		},
		LogoURL:      base + "/logo.png",
		ContactEmail: "rgbkrk@gmail.com",
		LegalInfoURL: "https://github.com/rgbkrk/honchkrow/issues",
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		// The manifest is a fixed struct of strings; this cannot fail
		panic(err)
	}
	return data
}

// buildOpenAPI renders a static OpenAPI document describing the API
func buildOpenAPI(baseURL string) []byte {
	base := strings.TrimSuffix(baseURL, "/")
	if base == "" {
		base = "http://localhost:8000"
	}

	displayData := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"data":     map[string]any{"type": "object"},
			"metadata": map[string]any{"type": "object"},
		},
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       "Notebook Session",
			"description": "Inspect variables and run code in a live notebook session.",
			"version":     "1.0.0",
		},
		"servers": []map[string]any{
			{"url": base, "description": "Local server"},
		},
		"paths": map[string]any{
			"/api/run_cell": map[string]any{
				"post": map[string]any{
					"operationId": "runCell",
					"summary":     "Execute code in the notebook session",
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{
									"type":     "object",
									"required": []string{"code"},
									"properties": map[string]any{
										"code": map[string]any{"type": "string"},
									},
								},
							},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Execution outcome with captured output",
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": map[string]any{
										"type": "object",
										"properties": map[string]any{
											"success":        map[string]any{"type": "boolean"},
											"execute_result": displayData,
											"error":          map[string]any{"type": "string"},
											"stdout":         map[string]any{"type": "string"},
											"stderr":         map[string]any{"type": "string"},
											"displays": map[string]any{
												"type":  "array",
												"items": displayData,
											},
										},
									},
								},
							},
						},
					},
				},
			},
			"/api/variable/{name}": map[string]any{
				"get": map[string]any{
					"operationId": "getVariable",
					"summary":     "Get a variable from the notebook session by name",
					"parameters": []map[string]any{
						{
							"name":     "name",
							"in":       "path",
							"required": true,
							"schema":   map[string]any{"type": "string"},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Formatted variable value, or an error payload if undefined",
							"content": map[string]any{
								"application/json": map[string]any{"schema": displayData},
							},
						},
					},
				},
			},
			"/images/{name}": map[string]any{
				"get": map[string]any{
					"operationId": "getImage",
					"summary":     "Fetch an image produced during execution",
					"parameters": []map[string]any{
						{
							"name":     "name",
							"in":       "path",
							"required": true,
							"schema":   map[string]any{"type": "string"},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "PNG bytes",
							"content": map[string]any{
								"image/png": map[string]any{
									"schema": map[string]any{"type": "string", "format": "binary"},
								},
							},
						},
						"404": map[string]any{
							"description": "Unknown image name",
						},
					},
				},
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}
