// Package docs registers the Swagger document served at /openapi.json.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/webhook": {
            "post": {
                "description": "Receives a Telegram update and handles it synchronously. Always answers ok so Telegram does not redeliver.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Telegram"],
                "summary": "Telegram webhook",
                "parameters": [
                    {
                        "description": "Telegram Update",
                        "name": "update",
                        "in": "body",
                        "required": true,
                        "schema": {"type": "object"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/set_webhook": {
            "get": {
                "description": "Points Telegram at the configured WEBHOOK_URL.",
                "produces": ["text/plain"],
                "tags": ["Telegram"],
                "summary": "Register webhook",
                "responses": {
                    "200": {"description": "Webhook set successfully: <url>", "schema": {"type": "string"}},
                    "400": {"description": "WEBHOOK_URL environment variable not set", "schema": {"type": "string"}},
                    "500": {"description": "Failed to set webhook", "schema": {"type": "string"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Site"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/ledger/{update_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Site"],
                "summary": "Update ledger lookup",
                "parameters": [
                    {"type": "integer", "description": "Telegram update id", "name": "update_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}},
                    "404": {"description": "Ledger disabled", "schema": {"type": "object"}}
                }
            }
        },
        "/api/status": {
            "get": {
                "description": "Uptime, memory, update ledger statistics and the active analyzer backend.",
                "produces": ["application/json"],
                "tags": ["Site"],
                "summary": "Service status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/site.StatusData"}}
                }
            }
        }
    },
    "definitions": {
        "site.StatusData": {
            "type": "object",
            "properties": {
                "service": {"type": "string"},
                "backend": {"type": "string"},
                "started_at": {"type": "string"},
                "process_uptime_seconds": {"type": "integer"},
                "host_uptime_seconds": {"type": "integer"},
                "memory": {"type": "object"},
                "ledger": {"type": "object"},
                "counters": {"type": "object"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Plant Doctor Bot API",
	Description:      "Telegram webhook bot that diagnoses plant problems from photos.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
