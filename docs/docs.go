// Package docs registers the OpenAPI description served by Swagger UI.
//
// Regenerate with:
//
//	swag init -g cmd/spkd/main.go -o docs --parseInternal
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
        "/orders": {
            "post": {
                "description": "Consumes a reserved SPK. Fails with spk_not_reserved when the reservation has lapsed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Orders"],
                "summary": "Create an order with a reserved SPK",
                "operationId": "createOrder",
                "parameters": [
                    {
                        "description": "Order payload",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.CreateOrderRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Order"}},
                    "400": {"description": "Bad request or malformed spk", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "SPK expired or already used", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Verification unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/spk/counters": {
            "get": {
                "description": "Returns sequence counters, most recent month first.",
                "produces": ["application/json"],
                "tags": ["SPK"],
                "summary": "List monthly counters (paginated)",
                "operationId": "listCounters",
                "parameters": [
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListCountersResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/spk/generate": {
            "post": {
                "description": "Atomically allocates the next number of the current month and reserves it. Repeating the call with the same Idempotency-Key returns the same number while it is still reserved.",
                "produces": ["application/json"],
                "tags": ["SPK"],
                "summary": "Issue a new SPK number",
                "operationId": "generateSPK",
                "parameters": [
                    {"type": "string", "example": "order-form-7f3a", "description": "Replay-safe key", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "example": "desk-12", "description": "Calling workstation", "name": "X-Client-ID", "in": "header"}
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {"$ref": "#/definitions/handlers.GenerateResponse"},
                        "headers": {"Idempotent-Replayed": {"type": "string", "description": "true when an earlier number was returned"}}
                    },
                    "400": {"description": "Invalid Idempotency-Key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Monthly sequence exhausted", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Generation failed, retry", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/spk/verify": {
            "get": {
                "description": "Valid means the number is well formed, currently reserved, and not used by any order. A valid check slides the reservation forward.",
                "produces": ["application/json"],
                "tags": ["SPK"],
                "summary": "Verify an SPK number",
                "operationId": "verifySPK",
                "parameters": [
                    {"type": "string", "example": "06250001", "description": "SPK number", "name": "spk", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.VerifyResponse"}},
                    "400": {"description": "Missing spk", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Order": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "spk": {"type": "string"},
                "customer": {"type": "string"},
                "notes": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "domain.SequenceCounter": {
            "type": "object",
            "properties": {
                "prefix": {"type": "string"},
                "last_value": {"type": "integer"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.CreateOrderRequest": {
            "type": "object",
            "required": ["customer", "spk"],
            "properties": {
                "customer": {"type": "string", "maxLength": 255, "minLength": 1, "example": "PT Sinar Jaya"},
                "notes": {"type": "string", "maxLength": 2000, "example": "Rush job, 200 units"},
                "spk": {"type": "string", "example": "06250001"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "spk_not_reserved"},
                "message": {"type": "string", "example": "this number has expired, request a new one"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.GenerateResponse": {
            "type": "object",
            "properties": {
                "degraded": {"type": "boolean"},
                "expires_at": {"type": "string", "example": "2025-06-10T09:15:00Z"},
                "replayed": {"type": "boolean"},
                "spk": {"type": "string", "example": "06250001"}
            }
        },
        "handlers.ListCountersResponse": {
            "type": "object",
            "properties": {
                "counters": {"type": "array", "items": {"$ref": "#/definitions/domain.SequenceCounter"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "has_next": {"type": "boolean"},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "handlers.ReservationView": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "expires_at": {"type": "string"},
                "remaining_seconds": {"type": "integer", "example": 900},
                "spk": {"type": "string", "example": "06250001"}
            }
        },
        "handlers.VerifyResponse": {
            "type": "object",
            "properties": {
                "reason": {"type": "string", "example": "expired or unknown"},
                "reservation": {"$ref": "#/definitions/handlers.ReservationView"},
                "valid": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "SPK Service API",
	Description:      "Issues, reserves and verifies SPK work-order numbers (MMYY prefix plus a monthly sequence).",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
